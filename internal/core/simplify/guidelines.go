package simplify

import "github.com/markdave123-py/Simplifai/internal/models"

// guidelines[d][level-1] describes how to adapt text for level of dimension d.
// Level 5 needs no pass and has no entry.
var guidelines = map[models.Dimension][4]string{
	models.DimAttention: {
		"Severe difficulty staying focused. Use paragraphs of at most two or three sentences, bullet lists wherever possible, and a clear heading before every new topic. Drop anything non-essential.",
		"Attention is a real struggle. Keep paragraphs to three or four sentences, turn lists into bullets, and divide the text with clear headings. Remove tangents.",
		"Moderate attention challenges. Keep each paragraph on one point, highlight key terms, and break long sections with subheadings.",
		"Mild attention difficulties. Keep paragraphs a reasonable length with clear transitions and occasional emphasis on key points.",
	},
	models.DimMemory: {
		"Severe memory challenges. Open with a summary of the main points, repeat key facts at the start and end of each section, use exactly the same term for the same idea, and add short recaps often.",
		"Significant memory difficulties. Start with a short overview, repeat important facts, and remind the reader of earlier concepts when they come back.",
		"Moderate memory challenges. Add summaries at key points and tie new information back to what was already said.",
		"Mild memory difficulties. Recap key points now and then and keep terminology consistent.",
	},
	models.DimVisuospatial: {
		"Severe visuospatial challenges. Replace spatial descriptions and visual metaphors with numbered, step-by-step sequences. Describe any diagram as a list.",
		"Visuospatial processing is difficult. Simplify spatial descriptions and present information as a linear sequence.",
		"Moderate visuospatial challenges. Spell out spatial relationships and back visual descriptions with a plain explanation.",
		"Mild visuospatial difficulties. Give enough context for any visual or spatial reference to be clear.",
	},
	models.DimLanguage: {
		"Severe language challenges. Use very common words, sentences under eight words, active voice only, and no idioms or figures of speech. Repeat nouns instead of pronouns and define any uncommon word.",
		"Language processing is difficult. Use everyday vocabulary, sentences under twelve words, mostly active voice, and define specialist terms.",
		"Moderate language challenges. Keep sentences straightforward, explain idioms, and define technical vocabulary.",
		"Mild language difficulties. Prefer plain wording, avoid long nested sentences, and briefly explain jargon.",
	},
	models.DimReasoning: {
		"Severe reasoning challenges. Break every idea into explicit small steps, give a concrete example for each abstract point, and state every cause and effect outright.",
		"Reasoning is difficult. Explain complex ideas step by step, give examples for abstract concepts, and make each logical link explicit.",
		"Moderate reasoning challenges. Split multi-step processes into parts and support abstract ideas with examples.",
		"Mild reasoning difficulties. Keep the logical flow obvious and make key causal links explicit.",
	},
}

func guideline(d models.Dimension, level int) string {
	g, ok := guidelines[d]
	if !ok || level < models.MinLevel || level >= models.MaxLevel {
		return ""
	}
	return g[level-1]
}
