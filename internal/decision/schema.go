package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"tradecouncil/internal/gateway/provider"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	VoteSchemaName       = "trade_vote"
	DefaultThinkingLimit = 1000
	MinRating            = 1.0
	MaxRating            = 5.0
)

// RequestSchema is the schema sent to backends with a strict output mode.
// Strict modes reject range keywords, so limits live in the descriptions.
func RequestSchema(maxThinking int) map[string]any {
	if maxThinking <= 0 {
		maxThinking = DefaultThinkingLimit
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"Decision", "Rating", "Thinking"},
		"properties": map[string]any{
			"Decision": map[string]any{
				"type": "string",
				"enum": actionNames(),
			},
			"Rating": map[string]any{
				"type":        "number",
				"description": "conviction from 1 (weak) to 5 (strong)",
			},
			"Thinking": map[string]any{
				"type":        "string",
				"description": fmt.Sprintf("short rationale, at most %d characters", maxThinking),
			},
		},
	}
}

// ResponseFormat wraps RequestSchema for provider clients.
func ResponseFormat(maxThinking int) provider.ResponseFormat {
	return provider.ResponseFormat{Name: VoteSchemaName, Schema: RequestSchema(maxThinking)}
}

func validationSchema(maxThinking int) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"Decision", "Rating"},
		"properties": map[string]any{
			"Decision": map[string]any{"type": "string", "enum": actionNames()},
			"Rating":   map[string]any{"type": "number", "minimum": MinRating, "maximum": MaxRating},
			"Thinking": map[string]any{"type": "string", "maxLength": maxThinking},
		},
	}
}

func compileSchema(data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("vote.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("vote.json")
}

func actionNames() []string {
	out := make([]string, 0, len(actionPriority))
	for _, a := range actionPriority {
		out = append(out, string(a))
	}
	return out
}

// SchemaHint is the human readable form of the response contract.
func SchemaHint(maxThinking int) string {
	if maxThinking <= 0 {
		maxThinking = DefaultThinkingLimit
	}
	var b strings.Builder
	b.WriteString("Reply with exactly one JSON object and nothing else:\n")
	b.WriteString(`{"Decision": "BUY|SELL|HOLD|WAIT", "Rating": <number 1-5>, "Thinking": "<rationale>"}`)
	b.WriteString("\n- Decision must be one of BUY, SELL, HOLD, WAIT.\n")
	b.WriteString("- Rating is your conviction, a number from 1 to 5.\n")
	fmt.Fprintf(&b, "- Thinking is at most %d characters.", maxThinking)
	return b.String()
}
