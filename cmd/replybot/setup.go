package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"replybot/internal/config"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: bot token → services → access → save config",
		Long: "Guides you through the Telegram token, the completion, image and speech\n" +
			"services, and the user allow list. Writes config to the path used by --config or default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd.InOrStdin(), cmd.OutOrStdout(), resolveConfigPath())
		},
	}
}

// wizard reads answers line by line; an empty answer keeps the default.
type wizard struct {
	in  *bufio.Reader
	out io.Writer
}

func (w *wizard) ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", question)
	}
	line, err := w.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	s := strings.TrimSpace(line)
	if s == "" {
		return def, nil
	}
	return s, nil
}

func (w *wizard) confirm(question string, def bool) (bool, error) {
	d := "n"
	if def {
		d = "y"
	}
	ans, err := w.ask(question+" (y/n)", d)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(ans), "y"), nil
}

func runSetup(in io.Reader, out io.Writer, cfgPath string) error {
	cfg, err := config.LoadRaw(cfgPath)
	if err != nil {
		return err
	}
	w := &wizard{in: bufio.NewReader(in), out: out}

	secret := func(current, env string) string {
		if current != "" && !strings.HasPrefix(current, "${") {
			return current
		}
		return "${" + env + "}"
	}

	fmt.Fprintln(out, "\n--- Step 1: Telegram ---")
	fmt.Fprintln(out, "Paste the token from @BotFather, or keep the placeholder to read it from the environment.")
	if cfg.Telegram.Token, err = w.ask("Bot token", secret(cfg.Telegram.Token, config.EnvBotToken)); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n--- Step 2: Completion ---")
	if cfg.Completion.APIBase, err = w.ask("API base", cfg.Completion.APIBase); err != nil {
		return err
	}
	if cfg.Completion.Model, err = w.ask("Model", cfg.Completion.Model); err != nil {
		return err
	}
	if cfg.Completion.APIKey, err = w.ask("API key", secret(cfg.Completion.APIKey, config.EnvCompletionKey)); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n--- Step 3: Images ---")
	if cfg.Image.Enabled, err = w.confirm("Generate images when asked", cfg.Image.Enabled); err != nil {
		return err
	}
	if cfg.Image.Enabled {
		if cfg.Image.APIKey, err = w.ask("fal.ai API key", secret(cfg.Image.APIKey, config.EnvImageKey)); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\n--- Step 4: Voice ---")
	if cfg.Speech.Enabled, err = w.confirm("Send voice replies", cfg.Speech.Enabled); err != nil {
		return err
	}
	if cfg.Speech.Enabled {
		if cfg.Speech.Provider, err = w.ask("Provider (elevenlabs/openai)", cfg.Speech.Provider); err != nil {
			return err
		}
		if cfg.Speech.APIKey, err = w.ask("Speech API key", secret(cfg.Speech.APIKey, config.EnvSpeechKey)); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\n--- Step 5: Access ---")
	allow, err := w.ask("Allowed Telegram user IDs, comma separated (empty = everyone)", strings.Join(cfg.Telegram.AllowFrom, ","))
	if err != nil {
		return err
	}
	cfg.Telegram.AllowFrom = nil
	for _, id := range strings.Split(allow, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Telegram.AllowFrom = append(cfg.Telegram.AllowFrom, id)
		}
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConfig saved to %s\n", config.ExpandPath(cfgPath))
	fmt.Fprintln(out, "Next: run 'replybot doctor', then 'replybot run'.")
	return nil
}
