package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecommendation() map[string]any {
	return map[string]any{
		"type":                 "recommendation",
		"match_id":             "m1",
		"market":               "match_winner",
		"selection":            "Team A",
		"odds":                 1.95,
		"confidence":           0.7,
		"stake_recommendation": "small",
		"rationale":            "x",
	}
}

func TestValidateRecommendation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
		valid  bool
	}{
		{name: "valid", mutate: func(map[string]any) {}, valid: true},
		{name: "odds as text", mutate: func(m map[string]any) { m["odds"] = "1.95" }, valid: false},
		{name: "confidence above one", mutate: func(m map[string]any) { m["confidence"] = 1.5 }, valid: false},
		{name: "confidence below zero", mutate: func(m map[string]any) { m["confidence"] = -0.1 }, valid: false},
		{name: "unknown field", mutate: func(m map[string]any) { m["bonus"] = true }, valid: false},
		{name: "odds below minimum", mutate: func(m map[string]any) { m["odds"] = 1.0 }, valid: false},
		{name: "odds at minimum", mutate: func(m map[string]any) { m["odds"] = 1.01 }, valid: true},
		{name: "confidence bounds inclusive", mutate: func(m map[string]any) { m["confidence"] = 1.0 }, valid: true},
		{name: "stake outside enum", mutate: func(m map[string]any) { m["stake_recommendation"] = "huge" }, valid: false},
		{name: "stake large", mutate: func(m map[string]any) { m["stake_recommendation"] = "large" }, valid: true},
		{name: "missing rationale", mutate: func(m map[string]any) { delete(m, "rationale") }, valid: false},
		{name: "missing type", mutate: func(m map[string]any) { delete(m, "type") }, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := validRecommendation()
			tt.mutate(obj)

			result := ValidateRecommendation(obj)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.valid {
				assert.NoError(t, result.Err())
				return
			}
			assert.NotEmpty(t, result.Reason)
			assert.NotEmpty(t, result.Errors)
			assert.True(t, IsValidationError(result.Err()))
		})
	}
}

func TestValidateRecommendation_NonObject(t *testing.T) {
	assert.False(t, ValidateRecommendation(nil).Valid)
	assert.False(t, ValidateRecommendation("prose").Valid)
	assert.False(t, ValidateRecommendation([]any{1, 2}).Valid)
}

func TestValidateRecommendation_DecodedJSON(t *testing.T) {
	raw, err := json.Marshal(validRecommendation())
	require.NoError(t, err)

	obj, err := ParseObject(string(raw))
	require.NoError(t, err)
	assert.True(t, ValidateRecommendation(obj).Valid)
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantKey string
		wantErr bool
	}{
		{name: "bare object", reply: `{"a":1}`, wantKey: "a"},
		{name: "fenced with language", reply: "```json\n{\"b\":2}\n```", wantKey: "b"},
		{name: "fenced without language", reply: "```\n{\"c\":3}\n```", wantKey: "c"},
		{name: "surrounded by prose", reply: `Sure! Here it is: {"d":4} Hope that helps.`, wantKey: "d"},
		{name: "prose only", reply: "I think the home team will win.", wantErr: true},
		{name: "empty", reply: "   ", wantErr: true},
		{name: "array", reply: `[1,2,3]`, wantErr: true},
		{name: "broken braces", reply: `{"a": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseObject(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, obj, tt.wantKey)
		})
	}
}

func TestInstruction(t *testing.T) {
	first := Instruction(1, false)
	assert.Contains(t, first, "single JSON object")
	assert.Contains(t, first, `"stake_recommendation"`)
	assert.NotContains(t, first, "Example:")

	withExample := Instruction(1, true)
	assert.Contains(t, withExample, "Example:")

	retry := Instruction(2, false)
	assert.Contains(t, retry, "ONLY the JSON object")
	assert.NotEqual(t, first, retry)
}

func TestFewShotExampleIsValid(t *testing.T) {
	obj, err := ParseObject(fewShotExample)
	require.NoError(t, err)
	assert.True(t, ValidateRecommendation(obj).Valid)
}
