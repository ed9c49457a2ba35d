package gate

import (
	"strings"
	"time"
)

const (
	defaultRESTBaseURL = "https://api.gateio.ws/api/v4"
	defaultPeriod      = "1h"
	defaultLimit       = 24
)

type Config struct {
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	RESTProxyURL string
	// Period and Limit select the open-interest window, e.g. 24 x 1h.
	Period string
	Limit  int
}

func (c Config) withDefaults() Config {
	out := c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultRESTBaseURL
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	out.Period = strings.ToLower(strings.TrimSpace(out.Period))
	if out.Period == "" {
		out.Period = defaultPeriod
	}
	if out.Limit <= 1 {
		out.Limit = defaultLimit
	}
	if out.Limit > maxStatsLimit {
		out.Limit = maxStatsLimit
	}
	return out
}
