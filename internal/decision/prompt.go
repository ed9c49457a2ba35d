package decision

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"tradecouncil/internal/gateway/provider"
	"tradecouncil/internal/pkg/text"

	"gopkg.in/yaml.v3"
)

const (
	defaultSystemPrompt = "You are one member of a panel of independent crypto market analysts. " +
		"Each round you see the market context and the latest positions of the other analysts, " +
		"tagged with their ids. Argue from the data, change your mind only for a concrete reason, " +
		"and always answer with a single JSON object."
	defaultTaskPrompt = "Decide the next action for %s. BUY opens or adds to a long position, SELL reduces it, " +
		"HOLD keeps the current exposure, WAIT stays out of the market."
	newsSummaryLimit = 280
)

// PromptTemplates overrides the fixed wording of the prompt. Empty fields
// keep the defaults.
type PromptTemplates struct {
	System string `yaml:"system"`
	Task   string `yaml:"task"`
}

// LoadPromptTemplates reads a prompts.yaml file. Unknown keys are an error.
func LoadPromptTemplates(path string) (PromptTemplates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptTemplates{}, fmt.Errorf("read prompt templates failed: %w", err)
	}
	var tpl PromptTemplates
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&tpl); err != nil {
		return PromptTemplates{}, fmt.Errorf("parse prompt templates failed: %w", err)
	}
	return tpl, nil
}

type PromptBuilder struct {
	templates   PromptTemplates
	maxThinking int
}

func NewPromptBuilder(tpl PromptTemplates, maxThinking int) *PromptBuilder {
	if strings.TrimSpace(tpl.System) == "" {
		tpl.System = defaultSystemPrompt
	}
	if strings.TrimSpace(tpl.Task) == "" {
		tpl.Task = defaultTaskPrompt
	}
	if maxThinking <= 0 {
		maxThinking = DefaultThinkingLimit
	}
	return &PromptBuilder{templates: tpl, maxThinking: maxThinking}
}

// Build renders the opening system and user messages of a debate.
func (b *PromptBuilder) Build(mctx Context) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: b.templates.System},
		{Role: provider.RoleUser, Content: b.Instruction(mctx)},
	}
}

// Instruction renders the market context and the response contract.
func (b *PromptBuilder) Instruction(mctx Context) string {
	var sb strings.Builder
	task := b.templates.Task
	if strings.Contains(task, "%s") {
		task = fmt.Sprintf(task, mctx.Symbol)
	}
	sb.WriteString(task)
	sb.WriteString("\n\n## Market\n")
	fmt.Fprintf(&sb, "Symbol: %s\n", mctx.Symbol)
	if !mctx.At.IsZero() {
		fmt.Fprintf(&sb, "Time: %s\n", mctx.At.UTC().Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&sb, "Last: %s  Bid: %s  Ask: %s\n",
		formatPrice(mctx.Ticker.Last), formatPrice(mctx.Ticker.Bid), formatPrice(mctx.Ticker.Ask))

	if len(mctx.Indicators) > 0 {
		sb.WriteString("\n## Indicators\n")
		for _, tf := range sortedKeys(mctx.Indicators) {
			set := mctx.Indicators[tf]
			if len(set) == 0 {
				continue
			}
			names := make([]string, 0, len(set))
			for name := range set {
				names = append(names, name)
			}
			sort.Strings(names)
			parts := make([]string, 0, len(names))
			for _, name := range names {
				parts = append(parts, fmt.Sprintf("%s=%s", name, formatNumber(set[name])))
			}
			fmt.Fprintf(&sb, "- %s: %s\n", tf, strings.Join(parts, ", "))
		}
	}

	if len(mctx.Derivatives) > 0 {
		sb.WriteString("\n## Derivatives\n")
		names := make([]string, 0, len(mctx.Derivatives))
		for name := range mctx.Derivatives {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "- %s: %s\n", name, formatNumber(mctx.Derivatives[name]))
		}
	}

	if len(mctx.News) > 0 {
		sb.WriteString("\n## Recent news\n")
		for i, item := range mctx.News {
			title := strings.TrimSpace(item.Title)
			if title == "" {
				continue
			}
			fmt.Fprintf(&sb, "%d. %s\n", i+1, title)
			if summary := strings.TrimSpace(item.Summary); summary != "" {
				fmt.Fprintf(&sb, "   %s\n", text.Truncate(summary, newsSummaryLimit))
			}
		}
	}

	sb.WriteString("\n## Response format\n")
	sb.WriteString(SchemaHint(b.maxThinking))
	return sb.String()
}

func sortedKeys(m map[string]IndicatorSet) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatPrice(v float64) string {
	if v <= 0 {
		return "n/a"
	}
	return formatNumber(v)
}

func formatNumber(v float64) string {
	s := fmt.Sprintf("%.6f", v)
	if strings.Contains(s, ".") {
		s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}
