package scanning

import (
	"strings"
)

// transcribePrompt is the shared prompt used by all LLM providers for reading labels
const transcribePrompt = `You are reading text printed, stamped or embossed on a product package, label or can lid.
Transcribe every piece of visible text exactly as printed, one line of output per printed line.

Important:
- Do not interpret, reformat or translate dates; copy digits and separators exactly
- Do not add commentary, headings or markdown code blocks
- If there is no readable text at all, answer with the single word NONE`

// digitsOnlyPrompt narrows the transcription to date-like tokens
const digitsOnlyPrompt = `
- Only transcribe digits and the separators . / - ; skip every other character`

func promptFor(hints Hints) string {
	if hints.DigitsOnly {
		return transcribePrompt + digitsOnlyPrompt
	}
	return transcribePrompt
}

// parseTranscript cleans an LLM transcription into recognized lines
func parseTranscript(text string) Text {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if strings.EqualFold(text, "none") {
		return Text{}
	}
	return NewText(text)
}

// filterAlphabet drops every rune outside alphabet, keeping spaces between tokens
func filterAlphabet(line, alphabet string) string {
	var b strings.Builder
	for _, r := range line {
		if r == ' ' || strings.ContainsRune(alphabet, r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// restrict applies the digits-only hint to backends that cannot enforce it natively
func restrict(t Text, hints Hints) Text {
	if !hints.DigitsOnly {
		return t
	}
	var lines []string
	for _, line := range t.Lines {
		if filtered := filterAlphabet(line, DateAlphabet); filtered != "" {
			lines = append(lines, filtered)
		}
	}
	return Text{Lines: lines}
}
