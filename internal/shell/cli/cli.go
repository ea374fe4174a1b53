// Package cli defines the gush command-line entrypoint.
package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gush-sh/gush/internal/log"
	"github.com/gush-sh/gush/internal/shell"
	"github.com/gush-sh/gush/internal/shell/term"
)

var (
	logFlag     = flag.String("log", "", "path to diagnostic log file; empty discards diagnostics")
	debugFlag   = flag.Bool("debug", false, "log at debug level")
	historyFlag = flag.String("history", defaultHistory(), "path to line history file; empty disables history")
)

const (
	ecSuccess = iota
	// ecTerminal indicates stdin is not a controlling terminal.
	ecTerminal
	// ecSetup indicates the shell could not be constructed.
	ecSetup
	// ecRun indicates the evaluation loop failed.
	ecRun
)

// Run is the entrypoint of the gush CLI.
func Run() int {
	flag.Parse()

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gush: %s\n", err)
		return ecSetup
	}
	defer func() {
		_ = logger.Sync()
	}()

	sh, err := shell.New(shell.Config{
		HistoryFile: *historyFlag,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "gush: %s\n", err)
		if errors.Is(err, term.ErrNotTerminal) {
			return ecTerminal
		}
		return ecSetup
	}

	if err := sh.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "gush: %s\n", err)
		return ecRun
	}
	return ecSuccess
}

func newLogger() (*log.Logger, error) {
	if *logFlag == "" {
		return log.NewNop(), nil
	}

	fd, err := os.OpenFile(*logFlag, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	return log.New(fd, "gush", *debugFlag), nil
}

func defaultHistory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gush_history")
}
