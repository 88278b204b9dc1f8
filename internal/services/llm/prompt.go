package llm

// TranslationPrompt instructs the model to translate a markdown chunk. The two
// verbs are the source and target language names.
const TranslationPrompt = `You translate academic papers from %s to %s.
Keep the markdown structure exactly: headings stay headings, tables stay tables,
LaTeX formulas ($...$, $$...$$) and HTML tags are copied unchanged.
Return only the translated markdown, without commentary or code fences.`
