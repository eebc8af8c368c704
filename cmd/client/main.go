package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tuannm99/sqlmission/sqlclient"
)

const (
	prompt     = "mission> "
	contPrompt = "   ...> "
)

type options struct {
	addr     string
	timeout  time.Duration
	histPath string
	histMax  int
	command  string
	expect   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "sqlmission",
		Short:         "Interactive client for sqlmission-server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "127.0.0.1:7654", "server address")
	f.DurationVar(&o.timeout, "timeout", 3*time.Second, "dial and request timeout")
	f.StringVar(&o.histPath, "history", defaultHistoryPath(), "history file path")
	f.IntVar(&o.histMax, "history-max", 2000, "max history lines loaded into memory")
	f.StringVarP(&o.command, "command", "c", "", "execute one statement and exit")
	f.StringVarP(&o.expect, "expect", "e", "", "grade statements against this query")
	return cmd
}

func run(ctx context.Context, o options, in io.Reader, out io.Writer) error {
	cli, err := sqlclient.DialContext(ctx, o.addr, o.timeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = cli.Close() }()
	cli.SetRWTimeout(o.timeout)

	// one-shot mode
	if strings.TrimSpace(o.command) != "" {
		sh := newShell(cli, out, nil)
		sh.expected = strings.TrimSuffix(strings.TrimSpace(o.expect), ";")
		sh.run(ctx, o.command)
		return nil
	}

	h := NewHistory(o.histPath)
	_ = h.Load(o.histMax)
	sh := newShell(cli, out, h)
	sh.expected = strings.TrimSuffix(strings.TrimSpace(o.expect), ";")

	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		// piped input: no prompt, no history
		sh.hist = nil
		return runScript(ctx, sh, in)
	}
	return runInteractive(ctx, sh, h, o.addr)
}

func runScript(ctx context.Context, sh *shell, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if _, done := sh.feed(ctx, sc.Text()); done {
			return nil
		}
	}
	return sc.Err()
}

func runInteractive(ctx context.Context, sh *shell, h *History, addr string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// preload history so the up arrow works immediately
	for _, line := range h.Lines() {
		_ = rl.SaveHistory(line)
	}

	_, _ = fmt.Fprintf(sh.out, "connected to %s\n", addr)
	_, _ = fmt.Fprintln(sh.out, `type \help for help`)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			// Ctrl+C clears the current statement
			if sh.pending() {
				sh.clear()
				rl.SetPrompt(prompt)
				continue
			}
			_, _ = fmt.Fprintln(sh.out, "^C")
			continue
		}
		if err != nil {
			// EOF
			_, _ = fmt.Fprintln(sh.out)
			return nil
		}

		stmt, done := sh.feed(ctx, line)
		if done {
			return nil
		}
		if stmt != "" {
			_ = rl.SaveHistory(compactOneLine(stmt))
		}
		if sh.pending() {
			rl.SetPrompt(contPrompt)
		} else {
			rl.SetPrompt(prompt)
		}
	}
}
