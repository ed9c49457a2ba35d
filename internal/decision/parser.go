package decision

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"tradecouncil/internal/pkg/convert"
	"tradecouncil/internal/pkg/jsonutil"
	"tradecouncil/internal/pkg/text"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Parser turns a provider's final answer into a Vote.
type Parser struct {
	schema      *jsonschema.Schema
	maxThinking int
}

func NewParser(maxThinking int) (*Parser, error) {
	if maxThinking <= 0 {
		maxThinking = DefaultThinkingLimit
	}
	compiled, err := compileSchema(validationSchema(maxThinking))
	if err != nil {
		return nil, fmt.Errorf("compile vote schema: %w", err)
	}
	return &Parser{schema: compiled, maxThinking: maxThinking}, nil
}

// Parse tries, in order, the whole text, the first fenced code block and the
// span between the first '{' and the last '}'. The first candidate that is
// valid JSON is used. Anything other than an object has no fields, so it
// yields no vote.
func (p *Parser) Parse(providerID, raw string) (Vote, error) {
	candidate, ok := extractJSON(raw)
	if !ok {
		return Vote{}, fmt.Errorf("%w: provider %s: no JSON found", ErrNoVote, providerID)
	}
	obj, ok := decodeObject(candidate)
	if !ok {
		return Vote{}, fmt.Errorf("%w: provider %s: answer is not a JSON object", ErrNoVote, providerID)
	}
	fields := lowerKeys(obj)

	rawAction, _ := fields["decision"].(string)
	action, ok := ParseAction(rawAction)
	if !ok {
		return Vote{}, fmt.Errorf("%w: provider %s: invalid Decision %q", ErrNoVote, providerID, rawAction)
	}
	rating, ok := convert.ToFiniteFloat(fields["rating"])
	if !ok {
		return Vote{}, fmt.Errorf("%w: provider %s: Rating missing or not a finite number", ErrNoVote, providerID)
	}
	thinking := ""
	switch v := fields["thinking"].(type) {
	case string:
		thinking = strings.TrimSpace(v)
	case nil:
	default:
		thinking = strings.TrimSpace(fmt.Sprint(v))
	}
	thinking = text.TruncateRunes(thinking, p.maxThinking)

	normalized := map[string]any{
		"Decision": string(action),
		"Rating":   rating,
		"Thinking": thinking,
	}
	if err := p.schema.Validate(normalized); err != nil {
		return Vote{}, fmt.Errorf("%w: provider %s: %v", ErrNoVote, providerID, err)
	}
	return Vote{ProviderID: providerID, Action: action, Rating: rating, Rationale: thinking}, nil
}

func extractJSON(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	candidates := []func(string) (string, bool){
		func(s string) (string, bool) { return s, true },
		jsonutil.FencedBlock,
		jsonutil.BraceSpan,
	}
	for _, extract := range candidates {
		candidate, ok := extract(trimmed)
		if !ok {
			continue
		}
		candidate = strings.TrimSpace(candidate)
		if gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func decodeObject(candidate string) (map[string]any, bool) {
	if !gjson.Parse(candidate).IsObject() {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

// lowerKeys folds top-level keys; on a collision the first spelling seen in
// sorted order is kept.
func lowerKeys(obj map[string]any) map[string]any {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(obj))
	for _, k := range keys {
		lk := strings.ToLower(strings.TrimSpace(k))
		if _, exists := out[lk]; exists {
			continue
		}
		out[lk] = obj[k]
	}
	return out
}
