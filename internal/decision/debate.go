package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradecouncil/internal/gateway/provider"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/pkg/circuit"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultRounds      = 3
	defaultCallTimeout = 60 * time.Second
	errorEntryPrefix   = "[provider error]"
)

// Transcript is the shared, append-only debate history.
type Transcript []provider.Message

// LastFrom returns the final message attributed to providerID.
func (t Transcript) LastFrom(providerID string) (provider.Message, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == provider.RoleAssistant && t[i].ProviderID == providerID {
			return t[i], true
		}
	}
	return provider.Message{}, false
}

// IsErrorEntry reports whether msg is a synthetic entry for a failed call.
func IsErrorEntry(msg provider.Message) bool {
	return strings.HasPrefix(msg.Content, errorEntryPrefix)
}

type CoordinatorConfig struct {
	Rounds      int
	CallTimeout time.Duration
	// CycleDeadline bounds the whole debate; zero means no bound beyond ctx.
	CycleDeadline time.Duration
	Parallel      bool
	// BreakerThreshold consecutive failures open a provider's breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Coordinator drives a fixed number of debate rounds over a fixed provider
// order. Every enabled provider is asked once per round; failures become
// transcript entries and never abort the debate.
type Coordinator struct {
	clients  []provider.Client
	cfg      CoordinatorConfig
	breakers map[string]*circuit.CircuitBreaker
}

func NewCoordinator(clients []provider.Client, cfg CoordinatorConfig) *Coordinator {
	if cfg.Rounds <= 0 {
		cfg.Rounds = DefaultRounds
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 5 * time.Minute
	}
	active := make([]provider.Client, 0, len(clients))
	breakers := make(map[string]*circuit.CircuitBreaker, len(clients))
	for _, c := range clients {
		if c == nil {
			continue
		}
		if !c.Enabled() {
			logger.Warnf("debate: provider %s disabled, skipped", c.ID())
			continue
		}
		active = append(active, c)
		breakers[c.ID()] = circuit.NewCircuitBreaker("provider:"+c.ID(), cfg.BreakerThreshold, cfg.BreakerCooldown)
	}
	return &Coordinator{clients: active, cfg: cfg, breakers: breakers}
}

// Providers returns the ids taking part, in call order.
func (c *Coordinator) Providers() []string {
	ids := make([]string, 0, len(c.clients))
	for _, cl := range c.clients {
		ids = append(ids, cl.ID())
	}
	return ids
}

type callResult struct {
	providerID string
	content    string
	err        error
}

// Run executes all rounds starting from the opening messages. When the cycle
// deadline passes, answers already received in the current round are kept,
// cut-off calls leave no entry and no further rounds start.
func (c *Coordinator) Run(ctx context.Context, opening []provider.Message) Transcript {
	transcript := make(Transcript, 0, len(opening)+len(c.clients)*c.cfg.Rounds)
	transcript = append(transcript, opening...)
	if len(c.clients) == 0 {
		logger.Warnf("debate: no enabled providers")
		return transcript
	}

	runCtx := ctx
	if c.cfg.CycleDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.CycleDeadline)
		defer cancel()
	}

	for round := 0; round < c.cfg.Rounds; round++ {
		if runCtx.Err() != nil {
			logger.Warnf("debate: deadline reached before round %d", round+1)
			break
		}
		start := time.Now()
		var results []callResult
		if c.cfg.Parallel {
			results = c.roundParallel(runCtx, transcript)
			transcript = appendResults(runCtx, transcript, results)
		} else {
			transcript, results = c.roundSequential(runCtx, transcript)
		}
		logger.Infof("debate: round %d/%d done in %s (%s)", round+1, c.cfg.Rounds,
			time.Since(start).Truncate(time.Millisecond), summarizeRound(results))
	}
	return transcript
}

// roundParallel gives every provider the same round-start snapshot and waits
// for all of them before returning results in provider order.
func (c *Coordinator) roundParallel(ctx context.Context, snapshot Transcript) []callResult {
	results := make([]callResult, len(c.clients))
	view := append(Transcript(nil), snapshot...)
	eg, egCtx := errgroup.WithContext(ctx)
	for i, cl := range c.clients {
		i, cl := i, cl
		eg.Go(func() error {
			results[i] = c.invokeSafe(egCtx, cl, view)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// roundSequential lets later providers see earlier answers of the same round.
func (c *Coordinator) roundSequential(ctx context.Context, transcript Transcript) (Transcript, []callResult) {
	results := make([]callResult, 0, len(c.clients))
	for _, cl := range c.clients {
		if ctx.Err() != nil {
			break
		}
		res := c.invokeSafe(ctx, cl, transcript)
		results = append(results, res)
		transcript = appendResults(ctx, transcript, []callResult{res})
	}
	return transcript, results
}

func appendResults(ctx context.Context, transcript Transcript, results []callResult) Transcript {
	for _, res := range results {
		if res.err != nil {
			if ctx.Err() != nil && isContextErr(res.err) {
				logger.Warnf("debate: provider %s cut off by cycle deadline", res.providerID)
				continue
			}
			transcript = append(transcript, provider.Message{
				Role:       provider.RoleAssistant,
				ProviderID: res.providerID,
				Content:    fmt.Sprintf("%s %v", errorEntryPrefix, res.err),
			})
			continue
		}
		transcript = append(transcript, provider.Message{
			Role:       provider.RoleAssistant,
			ProviderID: res.providerID,
			Content:    res.content,
		})
	}
	return transcript
}

func (c *Coordinator) invokeSafe(ctx context.Context, cl provider.Client, transcript Transcript) (out callResult) {
	id := cl.ID()
	out.providerID = id
	breaker := c.breakers[id]
	if breaker != nil && !breaker.Allow() {
		out.err = &provider.Error{ProviderID: id, Kind: provider.KindNetwork, Err: errors.New("circuit open, call skipped")}
		return out
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("debate: provider %s panic: %v", id, r)
			out = callResult{providerID: id, err: &provider.Error{ProviderID: id, Kind: provider.KindPanic, Err: fmt.Errorf("panic: %v", r)}}
			if breaker != nil {
				breaker.RecordFailure()
			}
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	start := time.Now()
	content, err := cl.Send(cctx, []provider.Message(transcript))
	if err == nil && strings.TrimSpace(content) == "" {
		err = &provider.Error{ProviderID: id, Kind: provider.KindEmpty, Err: errors.New("empty response")}
	}
	if err != nil {
		err = provider.Wrap(id, err)
		logger.Warnf("debate: provider %s failed elapsed=%s err=%v", id, time.Since(start).Truncate(time.Millisecond), err)
		if breaker != nil && ctx.Err() == nil {
			breaker.RecordFailure()
		}
		return callResult{providerID: id, err: err}
	}
	if breaker != nil {
		breaker.RecordSuccess()
	}
	logger.Debugf("debate: provider %s answered in %s", id, time.Since(start).Truncate(time.Millisecond))
	return callResult{providerID: id, content: content}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func summarizeRound(results []callResult) string {
	ok, failed := 0, 0
	for _, r := range results {
		if r.err != nil {
			failed++
			continue
		}
		ok++
	}
	return fmt.Sprintf("ok=%d failed=%d", ok, failed)
}
