package evaluation

import (
	"fmt"
	"strings"
)

// TranscriptionPrefix opens every transcription the model returns.
const TranscriptionPrefix = "Thus the parsed text is:"

const transcriptionInstruction = `INSTRUCTION: PARSE TEXT ONLY. DO NOT SOLVE.
You transcribe the handwritten content of the attached image exactly as written. You do not analyze it, solve it or hint at a solution.
Rules:
1. Write down exactly what is on the page, mistakes and notation included.
2. Keep every mathematical symbol, number and special character.
3. Write [illegible] wherever you cannot read the text with confidence.
4. Keep the original structure and line breaks where you can.
5. Never correct the handwritten content.
6. Never solve a problem, equation or question that appears in the image.
7. Never add explanations, suggestions or commentary.
Begin your response with "` + TranscriptionPrefix + `" followed by the verbatim transcription.
However simple the problem looks, you only transcribe it.`

// TranscriptionInstruction is the system instruction for the transcribing stage.
func TranscriptionInstruction() string {
	return transcriptionInstruction
}

// BuildComparePrompt asks the model to grade transcription against canonical.
func BuildComparePrompt(transcription, canonical string) string {
	var b strings.Builder
	b.WriteString("You are grading a student's handwritten solution against the reference solution.\n\n")
	fmt.Fprintf(&b, "Student answer:\n%s\n\n", strings.TrimSpace(transcription))
	fmt.Fprintf(&b, "Reference answer (correct solution):\n%s\n\n", strings.TrimSpace(canonical))
	b.WriteString("Evaluate both answers on these criteria:\n\n")
	b.WriteString("1. Solution approach: is the student's method valid? Point out conceptual errors, shortcuts or alternative valid methods.\n\n")
	b.WriteString("2. Final answer: does the student's final answer agree with the reference? Accept equivalent values, units and formats.\n\n")
	b.WriteString("3. Feedback: list what the student did correctly, every error in understanding, calculation or method, and how to improve.\n\n")
	b.WriteString("Write the feedback the way a tutor would speak to the student. ")
	b.WriteString(`End with exactly one sentence of the form: "The student's solution approach is [CORRECT|PARTIALLY CORRECT|INCORRECT] and the final answer is [MATCHES|DOES NOT MATCH] the reference answer."`)
	b.WriteString("\n")
	return b.String()
}

// NormalizeTranscription collapses every doubled backslash so LaTeX
// commands survive the model's JSON escaping.
func NormalizeTranscription(text string) string {
	for strings.Contains(text, `\\`) {
		text = strings.ReplaceAll(text, `\\`, `\`)
	}
	return strings.TrimSpace(text)
}
