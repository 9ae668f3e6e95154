package structured

import "strings"

const fewShotExample = `{"type":"recommendation","match_id":"m-1042","market":"match_winner","selection":"Home","odds":2.1,"confidence":0.62,"stake_recommendation":"small","rationale":"Home side unbeaten in six with the away striker suspended."}`

// Instruction returns the text appended to the user message for a structured
// attempt. Attempt 1 asks politely; later attempts insist on bare JSON.
func Instruction(attempt int, fewShot bool) string {
	var b strings.Builder
	if attempt <= 1 {
		b.WriteString("Respond with a single JSON object that matches this JSON Schema. ")
		b.WriteString("Do not add any text before or after the object.\n")
	} else {
		b.WriteString("Your previous reply was not a valid JSON object for the schema below. ")
		b.WriteString("Reply with ONLY the JSON object: no prose, no markdown, no code fences, ")
		b.WriteString("no extra fields. odds must be a number >= 1.01, confidence a number between 0 and 1, ")
		b.WriteString("stake_recommendation one of small, medium, large.\n")
	}
	b.WriteString("Schema:\n")
	b.WriteString(RecommendationSchema)
	if fewShot {
		b.WriteString("\nExample:\n")
		b.WriteString(fewShotExample)
	}
	return b.String()
}
