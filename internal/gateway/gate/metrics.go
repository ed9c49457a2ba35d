// Package gate reads USDT-settled perpetual metrics from Gate.io to give the
// debate a view of derivatives positioning next to spot indicators.
package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"tradecouncil/internal/decision"
	symbolpkg "tradecouncil/internal/pkg/symbol"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"
)

const (
	settle        = "usdt"
	maxStatsLimit = 2000
)

// Metric names as they appear in the decision context.
const (
	MetricFundingRate     = "funding_rate_pct"
	MetricOpenInterestUSD = "open_interest_usd"
	MetricOIChange        = "open_interest_change_pct"
)

type Source struct {
	cfg  Config
	rest *gateapi.APIClient
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	rest, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: final, rest: rest}, nil
}

func newRESTClient(cfg Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = cfg.RESTBaseURL

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

// Derivatives returns the funding rate of the perpetual contract matching
// sym, plus the latest open interest and its change across the window.
// Metrics the venue cannot supply are left out; an error means none could.
func (s *Source) Derivatives(ctx context.Context, sym string) (decision.IndicatorSet, error) {
	if s == nil || s.rest == nil {
		return nil, fmt.Errorf("gate source not initialized")
	}
	contract := symbolpkg.Parse(sym).Gate()
	if contract == "" {
		return nil, fmt.Errorf("invalid symbol: %s", sym)
	}

	out := make(decision.IndicatorSet, 3)
	var errs []string

	if rate, err := s.fundingRate(ctx, contract); err != nil {
		errs = append(errs, "funding: "+err.Error())
	} else {
		out[MetricFundingRate] = rate * 100
	}

	if latest, change, ok, err := s.openInterest(ctx, contract); err != nil {
		errs = append(errs, "open interest: "+err.Error())
	} else if ok {
		out[MetricOpenInterestUSD] = latest
		out[MetricOIChange] = change
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("gate %s: %s", contract, strings.Join(errs, "; "))
	}
	return out, nil
}

func (s *Source) fundingRate(ctx context.Context, contract string) (float64, error) {
	res, _, err := s.rest.FuturesApi.GetFuturesContract(ctx, settle, contract)
	if err != nil {
		return 0, err
	}
	return parseFloat(res.FundingRate), nil
}

func (s *Source) openInterest(ctx context.Context, contract string) (latest, changePct float64, ok bool, err error) {
	opts := &gateapi.ListContractStatsOpts{
		Interval: optional.NewString(s.cfg.Period),
		Limit:    optional.NewInt32(int32(s.cfg.Limit)),
	}
	stats, _, err := s.rest.FuturesApi.ListContractStats(ctx, settle, contract, opts)
	if err != nil {
		return 0, 0, false, err
	}
	if len(stats) == 0 {
		return 0, 0, false, nil
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Time < stats[j].Time })
	first := stats[0].OpenInterestUsd
	latest = stats[len(stats)-1].OpenInterestUsd
	if first > 0 {
		changePct = (latest - first) / first * 100
	}
	return latest, changePct, true, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
