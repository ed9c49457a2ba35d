package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"tradecouncil/internal/app"
	"tradecouncil/internal/config"
	"tradecouncil/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	var cfgPath string
	var closers []io.Closer

	root := &cobra.Command{
		Use:          "tradecouncil",
		Short:        "Multi-model debate trading engine",
		SilenceUsage: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			for _, c := range closers {
				_ = c.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default $TRADECOUNCIL_CONFIG or "+defaultConfigPath+")")

	load := func() (*config.Config, error) {
		_ = godotenv.Load()
		path := resolveConfigPath(cfgPath)
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		files, err := setupLogging(cfg.App)
		if err != nil {
			return nil, err
		}
		closers = append(closers, files...)
		logger.Infof("config loaded from %s (env=%s symbol=%s)", path, cfg.App.Env, cfg.Trading.Symbol)
		return cfg, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run decision cycles on the configured schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single decision cycle and print its log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out, err := a.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %s %s\n", out.CycleID, out.Status)
			for _, line := range out.Log {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", line)
			}
			return out.Err
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print the startup summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()
			a.Summary.Fprint(cmd.OutOrStdout())
			return nil
		},
	}

	root.AddCommand(runCmd, onceCmd, checkCmd)
	// Bare invocation behaves like "run".
	root.RunE = runCmd.RunE
	return root
}

func resolveConfigPath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("TRADECOUNCIL_CONFIG")); p != "" {
		return p
	}
	return defaultConfigPath
}

func setupLogging(cfg config.AppConfig) ([]io.Closer, error) {
	var closers []io.Closer
	logFile, err := openAppend(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if logFile != nil {
		mw := io.MultiWriter(os.Stdout, logFile)
		log.SetOutput(mw)
		logger.SetOutput(mw)
		closers = append(closers, logFile)
	}
	logger.SetLLMWriter(nil)
	if cfg.LLMDump {
		llmFile, err := openAppend(cfg.LLMLog)
		if err != nil {
			return closers, fmt.Errorf("open llm log file: %w", err)
		}
		if llmFile != nil {
			logger.SetLLMWriter(llmFile)
			closers = append(closers, llmFile)
		}
	}
	logger.SetLevel(cfg.LogLevel)
	logger.EnableLLMPayloadDump(cfg.LLMDump)
	return closers, nil
}

func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
