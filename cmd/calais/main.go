package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iishyfishyy/calais/internal/completion"
	"github.com/iishyfishyy/calais/internal/config"
	"github.com/iishyfishyy/calais/internal/executor"
	"github.com/iishyfishyy/calais/internal/hints"
	"github.com/iishyfishyy/calais/internal/llm"
	"github.com/iishyfishyy/calais/internal/prompt"
	"github.com/iishyfishyy/calais/internal/safety"
	"github.com/iishyfishyy/calais/internal/session"
	"github.com/iishyfishyy/calais/internal/ui"
)

var (
	// version is set by goreleaser at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// CLI flags
	debug      bool
	chatMode   bool
	model      string
	configPath string

	log = zap.NewNop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "calais [request]",
		Short:   "Natural language interface for your terminal",
		Long:    "calais turns a plain-language request into a shell command, streams it as it is written, and asks before running it",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		RunE:    runRequest,

		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			log, err = newLogger(debug)
			return err
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default ~/.calais/config.yaml)")
	rootCmd.Flags().BoolVarP(&chatMode, "chat", "c", false, "Chat without generating commands")
	rootCmd.Flags().StringVarP(&model, "model", "m", "", "Model to use instead of the configured one")

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Set the API key and model",
		RunE:  runConfigure,
	}

	hintsCmd := &cobra.Command{
		Use:   "hints",
		Short: "List the tool hints added to the system prompt",
		RunE:  runHints,
	}

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(hintsCmd)

	err := rootCmd.Execute()
	log.Sync()
	os.Exit(exitCode(err, os.Stderr))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// loadConfig reads and validates the configuration, applying flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if model != "" {
		cfg.Model = model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug("configuration loaded",
		zap.String("model", cfg.Model),
		zap.String("base_url", cfg.BaseURL),
		zap.Int("max_attempts", cfg.Retry.MaxAttempts))
	return cfg, nil
}

func newClient(cfg *config.Config) *completion.Client {
	return completion.New(llm.NewOpenAI(cfg.APIKey, cfg.BaseURL), cfg.RetryPolicy(), log)
}

func runRequest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	policy, err := prompt.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	hintsDir, err := config.GetHintsDir()
	if err != nil {
		return err
	}
	set, err := hints.Load(hintsDir, log)
	if err != nil {
		return err
	}

	prompter := ui.NewPrompter(os.Stdin, os.Stdout)
	s := session.New(session.Options{
		Client:   newClient(cfg),
		Prompter: prompter,
		Printer:  ui.NewPrinter(os.Stdout, !color.NoColor),
		Runner:   executor.New(log),
		Checker:  safety.New(cfg.UnsafePatterns...),
		Prompts: &prompt.Builder{
			Policy: policy,
			Env:    prompt.DetectEnvironment(),
			Hints:  set,
		},
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Log:         log,
	})

	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		request, err = askRequest(ctx, prompter)
		if err != nil || request == "" {
			return err
		}
	}
	log.Debug("starting session", zap.String("request", request), zap.Bool("chat", chatMode))

	conv := session.NewConversation("")
	if chatMode {
		return s.Chat(ctx, conv, request)
	}
	_, err = s.Run(ctx, conv, request)
	return err
}

// askRequest reads the first request when none was given as arguments.
func askRequest(ctx context.Context, p ui.Prompter) (string, error) {
	request, err := p.Ask(ctx, "> Prompt: ")
	if err != nil {
		if errors.Is(err, ui.ErrInterrupted) {
			return "", session.ErrCancelled
		}
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(request), nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	// Environment values are used for the check but never written out.
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := ui.Configure(cfg); err != nil {
		if errors.Is(err, ui.ErrInterrupted) {
			return session.ErrCancelled
		}
		return err
	}
	effective := *cfg
	effective.ApplyEnv(os.Getenv)
	if err := effective.Validate(); err != nil {
		return err
	}

	ui.ShowInfo("Verifying API access...")
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	_, err = newClient(&effective).Complete(ctx, completion.Request{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "Reply with OK."}},
		Model:     effective.Model,
		MaxTokens: 5,
	})
	if err != nil {
		ui.ShowWarning(fmt.Sprintf("Could not reach the model: %v", err))
	} else {
		ui.ShowSuccess("API access works!")
	}

	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	path := configPath
	if path == "" {
		path, _ = config.GetConfigPath()
	}
	ui.ShowSuccess(fmt.Sprintf("Configuration saved to %s", path))
	return nil
}

func runHints(cmd *cobra.Command, args []string) error {
	dir, err := config.GetHintsDir()
	if err != nil {
		return err
	}
	set, err := hints.Load(dir, log)
	if err != nil {
		return err
	}

	if set.Len() == 0 {
		ui.ShowInfo(fmt.Sprintf("No hints found. Add Markdown files to %s", dir))
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold)
	for _, doc := range set.Docs() {
		cyan.Println(doc.Tool)
		if len(doc.Aliases) > 0 {
			fmt.Printf("  Aliases:  %s\n", strings.Join(doc.Aliases, ", "))
		}
		if len(doc.Keywords) > 0 {
			fmt.Printf("  Keywords: %s\n", strings.Join(doc.Keywords, ", "))
		}
		fmt.Printf("  Examples: %d\n", len(doc.Examples))
	}
	return nil
}
