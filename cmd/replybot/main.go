package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"replybot/internal/bus"
	"replybot/internal/channel"
	"replybot/internal/config"
	"replybot/internal/domain"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	envFile    string // overridable via --env-file flag
)

func main() {
	logger = newLogger("info", "text")

	root := &cobra.Command{
		Use:   "replybot",
		Short: "replybot: Telegram front end for completion, image and speech APIs",
		Long: "replybot answers each Telegram message with a text reply, an image when one\n" +
			"is asked for, and a voice rendition of the reply.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadDotEnv()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.replybot/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")

	root.AddCommand(runCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(configCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(setupCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadDotEnv reads --env-file, or ./.env when present. Variables already in
// the environment win.
func loadDotEnv() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("cannot read .env", "err", err)
	}
	return nil
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config and switches the logger to its settings.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General.LogLevel, cfg.General.LogFormat)
	slog.SetDefault(logger)
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the Telegram bot",
		Long:  "Polls Telegram for messages and answers each one. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram bot token is not set (set %s or telegram.token)", config.EnvBotToken)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	messageBus := bus.New(100, logger)
	a.startBackground(ctx)

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		a.dispatcher(messageBus).Run(ctx)
	}()

	telegramCh := channel.NewTelegram(channel.TelegramConfig{
		Token:     cfg.Telegram.Token,
		AllowFrom: cfg.Telegram.AllowFrom,
		ParseMode: cfg.Telegram.ParseMode,
		Logger:    logger,
	})
	tgErr := make(chan error, 1)
	go func() { tgErr <- telegramCh.Start(ctx, messageBus) }()

	logger.Info("replybot started. Press Ctrl+C to stop.", "version", version)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-tgErr:
		if err != nil {
			runErr = err
			logger.Error("telegram channel error", "err", err)
		}
		stop()
	}
	logger.Info("shutting down...")

	messageBus.Close()
	if err := waitForDispatcher(dispatcherDone, shutdownTimeout); err != nil && runErr == nil {
		runErr = err
	}
	_ = telegramCh.Stop()
	return runErr
}

const shutdownTimeout = 10 * time.Second

// waitForDispatcher blocks until in-flight turns have drained or timeout
// passes.
func waitForDispatcher(done <-chan struct{}, timeout time.Duration) error {
	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-time.After(timeout):
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func chatCmd() *cobra.Command {
	var voiceDir string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal session against the real services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			// Runs last, after the dispatcher has drained.
			defer a.Close()

			messageBus := bus.New(10, logger)
			a.startBackground(ctx)
			dispatcherDone := make(chan struct{})
			go func() {
				defer close(dispatcherDone)
				a.dispatcher(messageBus).Run(ctx)
			}()

			cli := channel.NewCLI(channel.CLIConfig{
				Logger:   logger,
				In:       cmd.InOrStdin(),
				Out:      cmd.OutOrStdout(),
				VoiceDir: voiceDir,
			})
			runErr := cli.Start(ctx, messageBus)
			_ = cli.Stop()

			stop()
			messageBus.Close()
			if err := waitForDispatcher(dispatcherDone, shutdownTimeout); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&voiceDir, "voice-dir", "", "directory to save voice replies in")
	return cmd
}

func askCmd() *cobra.Command {
	var voiceDir, caption string
	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Answer one message and print the actions",
		Long: "Runs a single reply turn for the given text (or --caption) and prints the\n" +
			"text, photo and voice actions that would be sent to Telegram.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cli := channel.NewCLI(channel.CLIConfig{Logger: logger, Out: cmd.OutOrStdout(), VoiceDir: voiceDir})
			msg := domain.InboundMessage{
				Channel:   cli.Name(),
				ChatID:    "direct",
				SenderID:  "user",
				Text:      strings.TrimSpace(strings.Join(args, " ")),
				Caption:   caption,
				Timestamp: time.Now(),
			}

			turn := a.orch.Handle(cmd.Context(), msg, cli)
			completion, image, speech := turn.Outcomes()
			logger.Info("turn summary",
				"turn", turn.ID,
				"completion", completion,
				"image", image,
				"speech", speech,
				"elapsed", turn.Elapsed,
			)
			if turn.Failed() {
				return turn.CompletionErr
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&voiceDir, "voice-dir", "", "directory to save the voice reply in")
	cmd.Flags().StringVar(&caption, "caption", "", "treat the input as a photo caption")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Show, get, set and initialize configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := yaml.Marshal(config.Sanitize(cfg))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. completion.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. completion.maxTokens 1800)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.ListPaths(config.Sanitize(cfg)), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			// Keep secrets out of the file; they come from the environment.
			cfg.Telegram.Token = "${" + config.EnvBotToken + "}"
			cfg.Completion.APIKey = "${" + config.EnvCompletionKey + "}"
			cfg.Image.APIKey = "${" + config.EnvImageKey + "}"
			cfg.Speech.APIKey = "${" + config.EnvSpeechKey + "}"
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.AddCommand(initCmd)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "replybot %s\n", version)
		},
	}
}
