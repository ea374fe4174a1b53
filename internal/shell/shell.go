// Package shell implements the interactive loop: reading lines, dispatching
// single commands and pipelines, attending the foreground job, and
// reporting background jobs between prompts.
package shell

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/gush-sh/gush/internal/log"
	"github.com/gush-sh/gush/internal/shell/builtin"
	"github.com/gush-sh/gush/internal/shell/job"
	"github.com/gush-sh/gush/internal/shell/launch"
	"github.com/gush-sh/gush/internal/shell/pipeline"
	"github.com/gush-sh/gush/internal/shell/redirect"
	"github.com/gush-sh/gush/internal/shell/term"
	"github.com/gush-sh/gush/internal/shell/token"
)

const prompt = "# "

// Config parameterizes a Shell.
type Config struct {
	// HistoryFile persists line history across sessions. Empty disables
	// persistence.
	HistoryFile string
	Logger      *log.Logger
}

// New constructs a Shell attached to the controlling terminal. It fails if
// stdin is not a terminal.
//
// SIGCHLD is routed to the reaper goroutine, which records every state
// change the kernel reports; the only other writer of process states is the
// job table's Resume. SIGTSTP, SIGTTIN and SIGTTOU are swallowed at shell level by
// catching them into a drained channel; because the disposition is a caught
// handler rather than SIG_IGN, exec gives children the default behaviour
// back without any child-side code.
func New(cfg Config) (*Shell, error) {
	tty, err := term.Open()
	if err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
	})
	if err != nil {
		tty.Close()
		return nil, errors.Wrap(err, "init line reader")
	}

	s := &Shell{
		rl:     rl,
		tty:    tty,
		pgid:   unix.Getpgrp(),
		table:  job.NewTable(cfg.Logger),
		logger: cfg.Logger,
		chld:   make(chan os.Signal, 1),
		stops:  make(chan os.Signal, 1),
		done:   make(chan struct{}),
	}
	signal.Notify(s.chld, unix.SIGCHLD)
	// SIGINT is caught so a stray interrupt cannot kill the shell; the
	// terminal delivers keyboard interrupts to the foreground job's group,
	// and at the prompt the line reader consumes ^C in raw mode.
	signal.Notify(s.stops, unix.SIGINT, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU)
	go s.reapLoop()
	go s.drainStops()

	s.logger.Infof("shell ready; pgid: %d", s.pgid)
	return s, nil
}

// Shell is one interactive session on a controlling terminal.
type Shell struct {
	rl     *readline.Instance
	tty    *term.Terminal
	pgid   int
	table  *job.Table
	logger *log.Logger

	chld  chan os.Signal
	stops chan os.Signal
	done  chan struct{}
}

// reapLoop turns SIGCHLD deliveries into reap passes.
func (s *Shell) reapLoop() {
	for {
		select {
		case <-s.chld:
			s.table.Reap()
		case <-s.done:
			return
		}
	}
}

func (s *Shell) drainStops() {
	for {
		select {
		case <-s.stops:
		case <-s.done:
			return
		}
	}
}

// Run grabs the terminal for the shell and evaluates lines until EOF or
// quit, then shuts the job table down. A ^C during reading discards the
// line and redraws the prompt; no job state changes across that path.
func (s *Shell) Run() error {
	if err := s.tty.SetForeground(s.pgid); err != nil {
		return err
	}

	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read line")
		}

		quit := false
		if line = strings.TrimSpace(line); line != "" {
			quit = s.eval(line)
		}
		s.reportFinished()
		if quit {
			break
		}
	}

	s.shutdown()
	return nil
}

// eval runs one command line and reports whether the shell should quit.
func (s *Shell) eval(line string) bool {
	toks, err := token.Lex(line)
	if err != nil {
		s.printError(err)
		return false
	}
	toks, background, err := token.StripBackground(toks)
	if err != nil {
		s.printError(err)
		return false
	}
	if len(toks) == 0 {
		return false
	}

	if token.HasPipe(toks) {
		s.runJob(toks, background)
		return false
	}

	if name := toks[0].Lit; toks[0].Kind == token.Word {
		if name == "quit" {
			return true
		}
		if _, ok := builtin.Names[name]; ok {
			builtin.Run(s.builtinEnv(), name, token.Words(toks)[1:])
			return false
		}
	}

	s.runJob(toks, background)
	return false
}

func (s *Shell) builtinEnv() builtin.Env {
	return builtin.Env{
		Table:     s.table,
		Tty:       s.tty,
		ShellPgid: s.pgid,
		Out:       os.Stdout,
		Err:       os.Stderr,
	}
}

// runJob launches the tokens as one job, foreground or background.
func (s *Shell) runJob(toks []token.Token, background bool) {
	class := job.FG
	if background {
		class = job.BG
	}

	j, idx, err := pipeline.Run(s.table, toks, class, s.logger)
	if err != nil {
		s.printError(err)
		if j == nil {
			return
		}
	}

	// A stage may have exited before it was registered, consuming its
	// SIGCHLD; one synchronous pass closes that window.
	s.table.Reap()

	if background {
		if info, ok := s.table.Lookup(idx); ok {
			fmt.Printf("[%d] running '%s'\n", info.Index, info.Command)
		}
		return
	}

	out := s.table.MonitorForeground(s.tty, s.pgid)
	if out.Stopped {
		fmt.Printf("[%d] stopped (%s)\n", out.Slot, out.Command)
	}
	s.logger.Debugf("foreground job done; exit code: %d", out.ExitCode)
}

// reportFinished announces and reaps background jobs that finished since
// the last prompt.
func (s *Shell) reportFinished() {
	for _, info := range s.table.CollectFinished() {
		fmt.Printf("[%d] finished '%s' exit code %d\n", info.Index, info.Command, info.ExitCode)
	}
}

// printError renders the user-visible diagnostic for an evaluation error.
// Pipe and fork failures indicate kernel exhaustion and abort the shell.
func (s *Shell) printError(err error) {
	switch {
	case errors.Is(err, pipeline.ErrFatal):
		s.logger.Errorf("fatal: %s", err)
		fmt.Fprintf(os.Stderr, "gush: %s\n", err)
		os.Exit(1)
	case errors.Is(err, launch.ErrNotFound):
		fmt.Fprintf(os.Stderr, "%s\n", err)
	case errors.Is(err, redirect.ErrMalformed), errors.Is(err, token.ErrSyntax):
		fmt.Fprintf(os.Stderr, "gush: %s\n", err)
	default:
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", pathErr.Path, pathErr.Err)
			return
		}
		fmt.Fprintf(os.Stderr, "gush: %s\n", err)
	}
}

// shutdown resumes every stopped job, terminates all of them, waits for the
// table to drain, and releases the terminal resources.
func (s *Shell) shutdown() {
	s.logger.Infof("shutting down")

	for _, info := range s.table.Jobs() {
		if info.State == job.Finished {
			continue
		}
		if info.State == job.Stopped {
			if err := unix.Kill(-info.Pgid, unix.SIGCONT); err != nil {
				s.logger.Errorf("continue job %d; error: %s", info.Index, err)
			}
		}
		if err := unix.Kill(-info.Pgid, unix.SIGTERM); err != nil {
			s.logger.Errorf("terminate job %d; error: %s", info.Index, err)
		}
	}
	s.table.WaitAllFinished()
	s.reportFinished()

	close(s.done)
	signal.Stop(s.chld)
	signal.Stop(s.stops)

	if err := s.rl.Close(); err != nil {
		s.logger.Errorf("close line reader; error: %s", err)
	}
	if err := s.tty.Close(); err != nil {
		s.logger.Errorf("close terminal; error: %s", err)
	}
}
