package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradecouncil/internal/gateway/notifier"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/pkg/circuit"
	"tradecouncil/internal/store"
)

const notifyTimeout = 15 * time.Second

// notify reports cycles that touched the exchange or failed. Quiet cycles
// stay quiet.
func (r *CycleRunner) notify(ctx context.Context, out Outcome, log *slog.Logger) {
	if r.p.Notifier == nil {
		return
	}
	if out.Order == nil && out.Status != store.CycleFailed {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := r.p.Notifier.SendText(ctx, r.outcomeMessage(out).RenderMarkdown()); err != nil {
		log.Warn("notify failed", "err", err)
	}
}

// onBreakerChange runs on its own goroutine, outside the breaker lock.
func (r *CycleRunner) onBreakerChange(name string, from, to circuit.State) {
	logger.Warnf("circuit %s: %s -> %s", name, from, to)
	if r.p.Notifier == nil || to != circuit.StateOpen {
		return
	}
	msg := notifier.StructuredMessage{
		Title: fmt.Sprintf("%s cycles paused", r.p.Symbol),
		Sections: []notifier.MessageSection{{
			Title: "Breaker",
			Lines: []string{fmt.Sprintf("%s opened after repeated failed cycles", name)},
		}},
		Timestamp: r.now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := r.p.Notifier.SendText(ctx, msg.RenderMarkdown()); err != nil {
		logger.Warnf("notify breaker change: %v", err)
	}
}

func (r *CycleRunner) outcomeMessage(out Outcome) notifier.StructuredMessage {
	d := out.Result.Decision
	msg := notifier.StructuredMessage{
		Footer:    "cycle " + out.CycleID,
		Timestamp: out.Finished,
	}

	switch {
	case out.Status == store.CycleFailed:
		msg.Title = fmt.Sprintf("%s cycle failed", r.p.Symbol)
	case out.Watch != nil:
		msg.Title = fmt.Sprintf("%s %s %s", strings.ToUpper(string(out.Order.Side)), r.p.Symbol, out.Watch.Outcome)
	default:
		msg.Title = fmt.Sprintf("%s %s %s", strings.ToUpper(string(out.Order.Side)), r.p.Symbol, out.Order.Status)
	}

	if d.Action != "" {
		msg.Sections = append(msg.Sections, notifier.MessageSection{
			Title: "Decision",
			Lines: []string{
				fmt.Sprintf("%s confidence=%.2f", d.Action, d.Confidence),
				d.Reason,
			},
		})
	}
	if len(out.Result.Votes) > 0 {
		lines := make([]string, 0, len(out.Result.Votes))
		for _, v := range out.Result.Votes {
			lines = append(lines, fmt.Sprintf("%s %s %s", v.ProviderID, v.Action, fmtFloat(v.Rating)))
		}
		msg.Sections = append(msg.Sections, notifier.MessageSection{Title: "Votes", Lines: lines})
	}
	if o := out.Order; o != nil {
		lines := []string{
			fmt.Sprintf("id %s", o.ID),
			fmt.Sprintf("%s size=%s", o.Type, fmtFloat(o.Amount)),
		}
		if w := out.Watch; w != nil && w.Trade != nil {
			lines = append(lines, fmt.Sprintf("filled %s @ %s", fmtFloat(w.Trade.FilledSize), fmtFloat(w.Trade.AveragePrice)))
		}
		msg.Sections = append(msg.Sections, notifier.MessageSection{Title: "Order", Lines: lines})
	}
	if out.Err != nil {
		msg.Sections = append(msg.Sections, notifier.MessageSection{Title: "Error", Lines: []string{out.Err.Error()}})
	}
	return msg
}
