package simplify

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/Simplifai/internal/models"
)

// noLossSentinel is the reply the loss check asks for when nothing is missing.
const noLossSentinel = "NO_INFORMATION_LOST"

func dimensionPrompt(d models.Dimension, level int, text, preceding string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the text below for a reader whose %s is at level %d of %d, where %d means significant difficulty and %d means typical ability.\n\n",
		strings.ToUpper(string(d)), level, models.MaxLevel, models.MinLevel, models.MaxLevel)
	fmt.Fprintf(&b, "GUIDELINES:\n%s\n\n", guideline(d, level))
	b.WriteString("Keep every fact, number, name and concept. Change how things are said, never what is said.\n\n")
	if preceding != "" {
		fmt.Fprintf(&b, "PRECEDING CONTEXT (for reference only, do not rewrite or repeat it):\n%s\n\n", preceding)
	}
	fmt.Fprintf(&b, "TEXT:\n%s\n\nREWRITTEN TEXT:", text)
	return b.String()
}

func lossPrompt(original, adapted string) string {
	return fmt.Sprintf(`Compare an original text with an adapted version of it.
List every fact, number, concept or key detail present in the original but absent from the adapted text.
Changes of wording, order or style do not count as loss.
Write one missing item per line. If nothing important is missing, reply with exactly %s.

ORIGINAL TEXT:
%s

ADAPTED TEXT:
%s

MISSING ITEMS:`, noLossSentinel, original, adapted)
}

func reincorporatePrompt(adapted string, missing, context []string, profile models.Profile) string {
	var b strings.Builder
	b.WriteString("The text below was adapted for a reader with this profile (level per dimension, 5 is typical):\n")
	for _, d := range models.Dimensions {
		fmt.Fprintf(&b, "- %s: %d\n", d, profile.Level(d))
	}
	b.WriteString("\nSome information was lost during adaptation. Add it back where it fits best, at the same level of simplicity, keeping the current structure and all existing adaptations.\n\n")
	fmt.Fprintf(&b, "ADAPTED TEXT:\n%s\n\nMISSING INFORMATION:\n", adapted)
	for _, m := range missing {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	if len(context) > 0 {
		fmt.Fprintf(&b, "\nSOURCE EXCERPTS:\n%s\n", strings.Join(context, "\n\n"))
	}
	b.WriteString("\nUPDATED TEXT:")
	return b.String()
}

func consistencyPrompt(document string, profile models.Profile) string {
	var b strings.Builder
	b.WriteString("This document was adapted section by section for a reader with this profile (level per dimension, 5 is typical):\n")
	for _, d := range models.Dimensions {
		fmt.Fprintf(&b, "- %s: %d\n", d, profile.Level(d))
	}
	b.WriteString("\nMake only the edits needed for consistent terminology, style and flow between sections. Keep every adaptation and every fact.\n\n")
	fmt.Fprintf(&b, "DOCUMENT:\n%s\n\nCONSISTENT DOCUMENT:", document)
	return b.String()
}

// parseMissing reads the loss check reply. A reply carrying the sentinel, or
// the phrase "no important information lost", means nothing is missing.
func parseMissing(reply string) []string {
	lower := strings.ToLower(reply)
	if strings.Contains(lower, strings.ToLower(noLossSentinel)) || strings.Contains(lower, "no important information lost") {
		return nil
	}

	var items []string
	for _, line := range strings.Split(reply, "\n") {
		item := strings.TrimSpace(trimListMarker(strings.TrimSpace(line)))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// trimListMarker strips "-", "*", "•" and "1." / "1)" prefixes.
func trimListMarker(s string) string {
	for _, p := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(s, p) {
			return s[len(p):]
		}
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return s[i+1:]
	}
	return s
}
