package decision

import (
	"context"
	"fmt"

	"tradecouncil/internal/logger"
)

// Result is everything a cycle needs to record about one decision.
type Result struct {
	Decision   Decision
	Votes      []Vote
	Dropped    map[string]string
	Transcript Transcript
}

// Engine runs prompt, debate, parsing and aggregation for one Context.
type Engine struct {
	prompts     *PromptBuilder
	coordinator *Coordinator
	parser      *Parser
	size        float64
}

func NewEngine(prompts *PromptBuilder, coordinator *Coordinator, parser *Parser, size float64) *Engine {
	return &Engine{prompts: prompts, coordinator: coordinator, parser: parser, size: size}
}

// Decide never fails: provider and parse problems only remove votes.
func (e *Engine) Decide(ctx context.Context, mctx Context) Result {
	transcript := e.coordinator.Run(ctx, e.prompts.Build(mctx))

	votes := make([]Vote, 0, len(e.coordinator.clients))
	dropped := make(map[string]string)
	for _, id := range e.coordinator.Providers() {
		msg, ok := transcript.LastFrom(id)
		if !ok {
			dropped[id] = "no answer before deadline"
			logger.Warnf("decision: provider %s has no answer", id)
			continue
		}
		if IsErrorEntry(msg) {
			dropped[id] = msg.Content
			continue
		}
		vote, err := e.parser.Parse(id, msg.Content)
		if err != nil {
			dropped[id] = err.Error()
			logger.Warnf("decision: %v", err)
			continue
		}
		votes = append(votes, vote)
	}

	d := Aggregate(mctx.Symbol, e.size, votes)
	logger.Infof("decision: %s confidence=%.2f votes=%d dropped=%d", d.Action, d.Confidence, len(votes), len(dropped))
	if len(dropped) > 0 && len(votes) > 0 {
		d = d.WithNote(fmt.Sprintf("dropped=%d", len(dropped)))
	}
	return Result{Decision: d, Votes: votes, Dropped: dropped, Transcript: transcript}
}
