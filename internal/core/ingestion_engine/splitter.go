package ingestion_engine

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// Split partitions units into token-bounded chunks.
//
// Units are cut on paragraph boundaries ("\n\n"), falling back to sentence
// boundaries when a paragraph alone does not fit. A sentence that still does
// not fit becomes its own oversized chunk; text is never truncated. Chunks do
// not span units. Every chunk after the first starts with roughly
// overlapTokens of the previous chunk's body, aligned to a word start.
//
// Concatenating every chunk's Body() in index order yields the concatenation
// of the units' texts byte for byte.
func Split(units []models.DocumentUnit, maxTokens, overlapTokens int) ([]models.Chunk, error) {
	if maxTokens <= 0 {
		return nil, core.Invalid("max_tokens", "must be positive, got %d", maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, core.Invalid("overlap_tokens", "must be in [0, %d), got %d", maxTokens, overlapTokens)
	}

	budget := maxTokens - overlapTokens
	var (
		chunks   []models.Chunk
		prevBody string
	)

	emit := func(body string, unit models.DocumentUnit) {
		overlap := ""
		if len(chunks) > 0 {
			overlap = tail(prevBody, overlapTokens)
		}
		text := overlap + body
		chunks = append(chunks, models.Chunk{
			Index:      len(chunks),
			Text:       text,
			OverlapLen: len(overlap),
			Tokens:     ApproxTokens(text),
			Source: models.SourceRef{
				OwnerID: unit.OwnerID,
				JobID:   unit.FileID,
				Page:    unit.Page,
			},
		})
		prevBody = body
	}

	for _, unit := range units {
		if unit.Text == "" {
			continue
		}

		var (
			buf      strings.Builder
			bufRunes int
		)
		flush := func() {
			if buf.Len() > 0 {
				emit(buf.String(), unit)
				buf.Reset()
				bufRunes = 0
			}
		}

		for _, seg := range segments(unit.Text, budget) {
			segRunes := utf8.RuneCountInString(seg)
			if bufRunes > 0 && tokensForRunes(bufRunes+segRunes) > budget {
				flush()
			}
			buf.WriteString(seg)
			bufRunes += segRunes
			if tokensForRunes(bufRunes) > budget {
				// a single sentence larger than the budget
				flush()
			}
		}
		flush()
	}

	return chunks, nil
}

// segments breaks text into paragraphs, and paragraphs over budget into
// sentences. Separators stay attached to the preceding piece.
func segments(text string, budget int) []string {
	var out []string
	for _, para := range paragraphs(text) {
		if ApproxTokens(para) <= budget {
			out = append(out, para)
			continue
		}
		out = append(out, sentences(para)...)
	}
	return out
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.SplitAfter(text, "\n\n") {
		if p == "" {
			continue
		}
		if strings.TrimSpace(p) == "" && len(out) > 0 {
			out[len(out)-1] += p
			continue
		}
		out = append(out, p)
	}
	return out
}

// sentences cuts after '.', '!' or '?' followed by whitespace, keeping the
// whitespace run with the sentence it ends.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		j := i + 1
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		out = append(out, text[start:j])
		start = j
		i = j - 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// tail returns about n tokens from the end of s, starting at a word boundary
// when one is available.
func tail(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	maxRunes := n * 4
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	cut := len(s)
	for r := 0; r < maxRunes; r++ {
		_, size := utf8.DecodeLastRuneInString(s[:cut])
		cut -= size
	}
	t := s[cut:]
	if r, _ := utf8.DecodeLastRuneInString(s[:cut]); unicode.IsSpace(r) {
		return t
	}

	if idx := strings.IndexFunc(t, unicode.IsSpace); idx >= 0 {
		rest := strings.TrimLeftFunc(t[idx:], unicode.IsSpace)
		if rest != "" {
			return rest
		}
	}
	return t
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f'
}

// ApproxTokens is a cheap token estimator (~4 chars ≈ 1 token).
// Every size limit in the pipeline is measured with it.
func ApproxTokens(s string) int {
	return tokensForRunes(utf8.RuneCountInString(s))
}

func tokensForRunes(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
