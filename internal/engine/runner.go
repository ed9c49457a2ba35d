// Package engine runs one trading cycle end to end and records its outcome.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/executor"
	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/gateway/notifier"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/pkg/circuit"
	"tradecouncil/internal/pkg/symbol"
	"tradecouncil/internal/risk"
	"tradecouncil/internal/store"

	"github.com/google/uuid"
)

type ContextBuilder interface {
	Build(ctx context.Context, symbol string, news []decision.NewsItem) (decision.Context, error)
}

type NewsFeed interface {
	Latest(ctx context.Context) []decision.NewsItem
}

type Decider interface {
	Decide(ctx context.Context, mctx decision.Context) decision.Result
}

type OrderExecutor interface {
	Execute(ctx context.Context, cycleID string, v risk.Verdict) (exchange.Order, error)
}

type OrderWatcher interface {
	Watch(ctx context.Context, cycleID string, order exchange.Order) (executor.WatchResult, error)
}

// Params collects the runner's collaborators. News, Cycles, Monitor and
// Notifier may be nil.
type Params struct {
	Symbol        string
	QuoteCurrency string
	Exchange      exchange.Adapter
	Market        ContextBuilder
	News          NewsFeed
	Decider       Decider
	Gate          *risk.Gate
	Executor      OrderExecutor
	Monitor       OrderWatcher
	Cycles        store.CycleSink
	// Notifier hears about placed orders and failed cycles.
	Notifier notifier.TextNotifier

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Outcome summarizes a finished cycle.
type Outcome struct {
	CycleID  string
	Status   store.CycleStatus
	Result   decision.Result
	Verdict  *risk.Verdict
	Order    *exchange.Order
	Watch    *executor.WatchResult
	Log      []string
	Err      error
	Started  time.Time
	Finished time.Time
}

// CycleRunner executes cycles one at a time. It never lets an error or panic
// escape a cycle.
type CycleRunner struct {
	p       Params
	quote   string
	breaker *circuit.CircuitBreaker
	newID   func() string
	now     func() time.Time
}

func NewCycleRunner(p Params) *CycleRunner {
	quote := strings.ToUpper(strings.TrimSpace(p.QuoteCurrency))
	if quote == "" {
		quote = symbol.Parse(p.Symbol).Quote
	}
	threshold := p.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := p.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 2 * time.Minute
	}
	r := &CycleRunner{
		p:       p,
		quote:   quote,
		breaker: circuit.NewCircuitBreaker("CycleRunner", threshold, cooldown),
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
	r.breaker.SetStateChangeHandler(r.onBreakerChange)
	return r
}

// Tick is the scheduler task. Consecutive failed cycles open a breaker that
// skips ticks until its cool-down passes.
func (r *CycleRunner) Tick(ctx context.Context) {
	if !r.breaker.Allow() {
		logger.Warnf("CycleRunner: circuit breaker open, skipping cycle")
		return
	}
	out := r.RunCycle(ctx)
	if out.Status == store.CycleFailed {
		r.breaker.RecordFailure()
		return
	}
	r.breaker.RecordSuccess()
}

// RunCycle runs context, debate, risk, execution and monitoring once.
func (r *CycleRunner) RunCycle(ctx context.Context) (out Outcome) {
	out = Outcome{CycleID: r.newID(), Started: r.now().UTC(), Status: store.CycleRunning}
	log := logger.With("cycle_id", out.CycleID, "symbol", r.p.Symbol)
	log.Info("cycle started")
	r.saveCycle(ctx, store.CycleRecord{
		ID:        out.CycleID,
		Symbol:    r.p.Symbol,
		StartedAt: out.Started,
		Status:    store.CycleRunning,
	}, log)

	defer func() {
		if rec := recover(); rec != nil {
			out.Err = fmt.Errorf("panic: %v", rec)
			log.Error("cycle panicked", "panic", rec, "stack", string(debug.Stack()))
		}
		out.Finished = r.now().UTC()
		out.Status = store.CycleCompleted
		if out.Err != nil {
			out.Status = store.CycleFailed
			out.note("error: %v", out.Err)
		}
		r.saveCycle(context.WithoutCancel(ctx), store.CycleRecord{
			ID:       out.CycleID,
			Symbol:   r.p.Symbol,
			EndedAt:  out.Finished,
			Status:   out.Status,
			Log:      strings.Join(out.Log, "\n"),
			Decision: out.decisionJSON(),
		}, log)
		log.Info("cycle finished", "status", string(out.Status), "elapsed", out.Finished.Sub(out.Started).String())
		r.notify(context.WithoutCancel(ctx), out, log)
	}()

	out.Err = r.run(ctx, &out)
	return out
}

func (r *CycleRunner) run(ctx context.Context, out *Outcome) error {
	var news []decision.NewsItem
	if r.p.News != nil {
		news = r.p.News.Latest(ctx)
	}
	mctx, err := r.p.Market.Build(ctx, r.p.Symbol, news)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}
	out.note("context: last=%s timeframes=%d news=%d", fmtFloat(mctx.Ticker.Last), len(mctx.Indicators), len(mctx.News))

	out.Result = r.p.Decider.Decide(ctx, mctx)
	d := out.Result.Decision
	out.note("decision: %s size=%s confidence=%.2f reason=%s", d.Action, fmtFloat(d.Size), d.Confidence, d.Reason)
	ids := make([]string, 0, len(out.Result.Dropped))
	for id := range out.Result.Dropped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out.note("dropped: %s: %s", id, out.Result.Dropped[id])
	}

	balance := 0.0
	if d.Action.IsTrade() {
		bals, err := r.p.Exchange.GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		balance = bals.Free(r.quote)
	}
	verdict := r.p.Gate.Evaluate(d, balance, mctx.Ticker.Last)
	out.Verdict = &verdict
	out.note("risk: approved=%v size=%s balance=%s %s", verdict.Approved, fmtFloat(verdict.Decision.Size), fmtFloat(balance), r.quote)

	if !verdict.Approved || !verdict.Decision.Action.IsTrade() || verdict.Decision.Size <= 0 {
		out.note("execution: skipped")
		return nil
	}

	order, err := r.p.Executor.Execute(ctx, out.CycleID, verdict)
	if err != nil {
		out.note("execution: failed: %v", err)
		return fmt.Errorf("execute: %w", err)
	}
	out.Order = &order
	out.note("execution: order %s %s %s %s status=%s", order.ID, order.Type, order.Side, fmtFloat(order.Amount), order.Status)

	if r.p.Monitor == nil {
		return nil
	}
	res, err := r.p.Monitor.Watch(ctx, out.CycleID, order)
	out.Watch = &res
	switch res.Outcome {
	case executor.OutcomeFilled:
		out.note("monitor: filled %s @ %s after %d polls", fmtFloat(res.Trade.FilledSize), fmtFloat(res.Trade.AveragePrice), res.Attempts)
	default:
		out.note("monitor: %s after %d polls (status %s)", res.Outcome, res.Attempts, res.Order.Status)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

func (r *CycleRunner) saveCycle(ctx context.Context, rec store.CycleRecord, log *slog.Logger) {
	if r.p.Cycles == nil {
		return
	}
	if err := r.p.Cycles.SaveCycle(ctx, rec); err != nil {
		log.Warn("save cycle failed", "status", string(rec.Status), "err", err)
	}
}

func (o *Outcome) note(format string, args ...any) {
	o.Log = append(o.Log, fmt.Sprintf(format, args...))
}

type cycleDecision struct {
	Decision decision.Decision  `json:"decision"`
	Votes    []decision.Vote    `json:"votes"`
	Dropped  map[string]string  `json:"dropped,omitempty"`
	Approved *bool              `json:"approved,omitempty"`
	Final    *decision.Decision `json:"final,omitempty"`
	OrderID  string             `json:"order_id,omitempty"`
}

func (o *Outcome) decisionJSON() json.RawMessage {
	if o.Result.Decision.Action == "" {
		return nil
	}
	rec := cycleDecision{
		Decision: o.Result.Decision,
		Votes:    o.Result.Votes,
		Dropped:  o.Result.Dropped,
	}
	if o.Verdict != nil {
		approved := o.Verdict.Approved
		final := o.Verdict.Decision
		rec.Approved = &approved
		rec.Final = &final
	}
	if o.Order != nil {
		rec.OrderID = o.Order.ID
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	return raw
}

func fmtFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}
