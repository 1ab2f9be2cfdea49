package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"replybot/internal/config"
	"replybot/internal/provider"
)

// doctorReport counts check results and prints them in a fixed layout.
type doctorReport struct {
	out                    io.Writer
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.out, "  [PASS] %-20s %s\n", check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.out, "  [WARN] %-20s %s\n", check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.out, "  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your replybot setup",
		Long: `Verifies configuration, credentials, the journal database and the
completion API. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &doctorReport{out: cmd.OutOrStdout()}
			fmt.Fprintf(r.out, "replybot doctor v%s\n", version)
			fmt.Fprintf(r.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			runDoctorChecks(cmd.Context(), r, cfg, offline)
			return r.summary()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the network reachability check")
	return cmd
}

func runDoctorChecks(ctx context.Context, r *doctorReport, cfg *config.Config, offline bool) {
	if cfg.Telegram.Token == "" {
		r.fail("Telegram token", fmt.Sprintf("not set (%s)", config.EnvBotToken))
	} else {
		r.pass("Telegram token", "set")
	}

	services := provider.NewServices(cfg, nil, logger)
	creds := services.Credentials()
	envs := map[string]string{
		"completion": config.EnvCompletionKey,
		"image":      config.EnvImageKey,
		"speech":     config.EnvSpeechKey,
	}
	for _, name := range []string{"completion", "image", "speech"} {
		ok, enabled := creds[name]
		switch {
		case !enabled:
			r.warn("Service: "+name, "disabled")
		case !ok && name == "completion":
			r.fail("Service: "+name, fmt.Sprintf("no API key (%s); every message will get an error reply", envs[name]))
		case !ok:
			r.warn("Service: "+name, fmt.Sprintf("no API key (%s); this reply part will be skipped", envs[name]))
		default:
			r.pass("Service: "+name, "API key set")
		}
	}

	if !offline && creds["completion"] {
		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := services.Completion.Healthy(hctx)
		cancel()
		if err != nil {
			r.fail("Completion API", err.Error())
		} else {
			r.pass("Completion API", fmt.Sprintf("%s reachable", cfg.Completion.APIBase))
		}
	}

	if cfg.Journal.Enabled {
		if err := checkDatabase(cfg.Journal.DBPath); err != nil {
			r.fail("Journal database", err.Error())
		} else {
			r.pass("Journal database", cfg.Journal.DBPath)
		}
	}

	if cfg.Metrics.Enabled {
		if err := checkListen(cfg.Metrics.Listen); err != nil {
			r.warn("Metrics listener", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
		} else {
			r.pass("Metrics listener", cfg.Metrics.Listen+" available")
		}
	}
}

func (r *doctorReport) summary() error {
	fmt.Fprintf(r.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(r.out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Fprintf(r.out, "\nPlease fix the failed checks before running replybot.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Fprintf(r.out, "\nreplybot should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(r.out, "\nAll checks passed! replybot is ready to run.\n")
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
