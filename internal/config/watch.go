package config

import (
	"fmt"
	"strings"
	"sync"

	"tradecouncil/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RiskListener receives a validated risk section after each change.
type RiskListener func(RiskConfig)

// RiskWatcher re-reads the risk section of the top-level config file on
// every write. Invalid edits are logged and the last good values stay.
type RiskWatcher struct {
	path string
	v    *viper.Viper

	mu        sync.Mutex
	current   RiskConfig
	listeners []RiskListener
}

func WatchRisk(path string, initial RiskConfig) (*RiskWatcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("risk watcher requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	w := &RiskWatcher{path: path, v: v, current: initial}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		w.reload()
	})
	v.WatchConfig()
	logger.Infof("config: watching %s for risk changes", path)
	return w, nil
}

func (w *RiskWatcher) Subscribe(fn RiskListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *RiskWatcher) Current() RiskConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *RiskWatcher) reload() {
	next, err := riskFromSettings(w.v.AllSettings())
	if err != nil {
		logger.Errorf("config: risk reload failed (%s): %v", w.path, err)
		return
	}
	w.apply(next)
}

func (w *RiskWatcher) apply(next RiskConfig) {
	w.mu.Lock()
	if next == w.current {
		w.mu.Unlock()
		return
	}
	w.current = next
	listeners := append([]RiskListener(nil), w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config: risk listener panic: %v", r)
				}
			}()
			fn(next)
		}()
	}
}

func riskFromSettings(settings map[string]any) (RiskConfig, error) {
	v := viper.New()
	if err := v.MergeConfigMap(settings); err != nil {
		return RiskConfig{}, err
	}
	cfg, err := decode(v)
	if err != nil {
		return RiskConfig{}, err
	}
	if err := cfg.Risk.validate(); err != nil {
		return RiskConfig{}, err
	}
	cfg.Risk.Watch = true
	return cfg.Risk, nil
}
