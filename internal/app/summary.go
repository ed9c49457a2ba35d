package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"tradecouncil/internal/config"
	statushttp "tradecouncil/internal/transport/http"
)

type StartupSummary struct {
	Symbol    string
	Exchange  string
	Providers []string
	Cycle     CycleSummary
	Risk      config.RiskConfig
	News      string
	HTTPAddr  string
}

type CycleSummary struct {
	IntervalMinutes int
	Aligned         bool
	RunOnce         bool
	Rounds          int
	Timeframes      []string
	OrderType       string
	DefaultSize     float64
}

func newStartupSummary(cfg *config.Config, exchangeName string, providers []string, srv *statushttp.Server) *StartupSummary {
	s := &StartupSummary{
		Symbol:    cfg.Trading.Symbol,
		Exchange:  exchangeName,
		Providers: providers,
		Cycle: CycleSummary{
			IntervalMinutes: cfg.Trading.CycleIntervalMinutes,
			Aligned:         cfg.Trading.AlignToInterval,
			RunOnce:         cfg.Trading.RunOnce,
			Rounds:          cfg.Debate.Rounds,
			Timeframes:      cfg.Trading.Timeframes,
			OrderType:       cfg.Trading.OrderType,
			DefaultSize:     cfg.Trading.DefaultSize,
		},
		Risk: cfg.Risk,
		News: "disabled",
	}
	if cfg.News.Enabled {
		s.News = cfg.News.URL
	}
	if srv != nil {
		s.HTTPAddr = srv.Addr()
	}
	return s
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	if s == nil {
		return
	}
	title := "STARTUP SUMMARY"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[MARKET]")
	fmt.Fprintf(w, "  symbol:     %s\n", s.Symbol)
	fmt.Fprintf(w, "  exchange:   %s\n", s.Exchange)
	fmt.Fprintf(w, "  timeframes: %s\n", formatList(s.Cycle.Timeframes))
	fmt.Fprintf(w, "  news:       %s\n", s.News)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[DEBATE]")
	fmt.Fprintf(w, "  providers: %s\n", formatList(s.Providers))
	fmt.Fprintf(w, "  rounds:    %d\n", s.Cycle.Rounds)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[CYCLE]")
	mode := fmt.Sprintf("every %dm", s.Cycle.IntervalMinutes)
	if s.Cycle.Aligned {
		mode += " (aligned)"
	}
	if s.Cycle.RunOnce {
		mode = "once"
	}
	fmt.Fprintf(w, "  schedule: %s\n", mode)
	fmt.Fprintf(w, "  order:    %s size=%g\n", s.Cycle.OrderType, s.Cycle.DefaultSize)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[RISK]")
	fmt.Fprintf(w, "  max_position_size:  %g\n", s.Risk.MaxPositionSize)
	fmt.Fprintf(w, "  per_trade_risk_cap: %g\n", s.Risk.PerTradeRiskCap)
	if s.Risk.Watch {
		fmt.Fprintln(w, "  hot reload: on")
	}
	if s.HTTPAddr != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "[HTTP] status api on %s\n", s.HTTPAddr)
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
