// Package builtin implements the commands that run inside the shell
// process: the job-control set (jobs, fg, bg, kill) and cd. Each built-in
// returns its exit status.
package builtin

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/gush-sh/gush/internal/shell/job"
)

var (
	// ErrNotFound indicates the referenced job slot is empty or finished.
	ErrNotFound = errors.New("job not found")
	// ErrUsage indicates malformed built-in arguments.
	ErrUsage = errors.New("usage")
)

// Env carries the shell state the built-ins operate on.
type Env struct {
	Table     *job.Table
	Tty       job.Terminal
	ShellPgid int
	// Out receives user-visible listings and announcements, Err the
	// diagnostics.
	Out io.Writer
	Err io.Writer
}

// Names are the built-ins dispatched through Run.
var Names = map[string]struct{}{
	"jobs": {},
	"fg":   {},
	"bg":   {},
	"kill": {},
	"cd":   {},
}

// Run dispatches one built-in by name and returns its exit status.
func Run(env Env, name string, args []string) int {
	switch name {
	case "jobs":
		return Jobs(env)
	case "fg":
		return Fg(env, args)
	case "bg":
		return Bg(env, args)
	case "kill":
		return Kill(env, args)
	case "cd":
		return Cd(env, args)
	}
	fmt.Fprintf(env.Err, "%s: not a builtin\n", name)
	return 1
}

// Jobs lists every occupied slot with its state and command, then reaps
// the finished entries.
func Jobs(env Env) int {
	for _, info := range env.Table.Jobs() {
		if info.State == job.Finished {
			fmt.Fprintf(env.Out, "[%d] %s (%s) exit code %d\n", info.Index, info.State, info.Command, info.ExitCode)
			continue
		}
		fmt.Fprintf(env.Out, "[%d] %s (%s)\n", info.Index, info.State, info.Command)
	}
	env.Table.CollectFinished()
	return 0
}

// Fg resumes the selected job in the foreground: SIGCONT to its group, a
// move into the foreground slot, then the monitor until it stops or
// finishes again.
func Fg(env Env, args []string) int {
	info, err := selectJob(env.Table, args)
	if err != nil {
		fmt.Fprintf(env.Err, "fg: %s\n", err)
		return 1
	}

	if err := env.Table.Resume(info.Index); err != nil {
		fmt.Fprintf(env.Err, "fg: %s\n", err)
		return 1
	}
	if err := env.Table.Move(info.Index, job.Foreground); err != nil {
		fmt.Fprintf(env.Err, "fg: %s\n", err)
		return 1
	}

	out := env.Table.MonitorForeground(env.Tty, env.ShellPgid)
	if out.Stopped {
		fmt.Fprintf(env.Out, "[%d] stopped (%s)\n", out.Slot, out.Command)
		return 0
	}
	return out.ExitCode
}

// Bg resumes the selected job in its background slot.
func Bg(env Env, args []string) int {
	info, err := selectJob(env.Table, args)
	if err != nil {
		fmt.Fprintf(env.Err, "bg: %s\n", err)
		return 1
	}

	if err := env.Table.Resume(info.Index); err != nil {
		fmt.Fprintf(env.Err, "bg: %s\n", err)
		return 1
	}
	fmt.Fprintf(env.Out, "[%d] running '%s'\n", info.Index, info.Command)
	return 0
}

// Kill sends SIGTERM to the process group of job %n.
func Kill(env Env, args []string) int {
	n, err := parseJobRef(args)
	if err != nil {
		fmt.Fprintf(env.Err, "kill: %s\n", err)
		return -1
	}

	info, ok := env.Table.Lookup(n)
	if !ok || info.State == job.Finished {
		fmt.Fprintf(env.Err, "kill: %s\n", ErrNotFound)
		return 1
	}

	if err := unix.Kill(-info.Pgid, unix.SIGTERM); err != nil {
		fmt.Fprintf(env.Err, "kill: %s\n", err)
		return 1
	}
	return 0
}

// Cd changes the working directory. Without an argument it targets $HOME.
func Cd(env Env, args []string) int {
	dir := os.Getenv("HOME")
	if len(args) > 0 {
		dir = args[0]
	}

	if err := os.Chdir(dir); err != nil {
		fmt.Fprintf(env.Err, "cd: %s: %s\n", dir, reason(err))
		return 1
	}
	return 0
}

// selectJob resolves an optional slot-number argument, defaulting to the
// greatest slot holding a live job.
func selectJob(t *job.Table, args []string) (job.Info, error) {
	if len(args) == 0 {
		info, ok := t.HighestActive()
		if !ok {
			return job.Info{}, ErrNotFound
		}
		return info, nil
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return job.Info{}, errors.Wrapf(ErrUsage, "bad job number %q", args[0])
	}
	info, ok := t.Lookup(n)
	if !ok || info.State == job.Finished {
		return job.Info{}, ErrNotFound
	}
	return info, nil
}

// parseJobRef parses kill's single "%n" argument.
func parseJobRef(args []string) (int, error) {
	if len(args) == 0 || !strings.HasPrefix(args[0], "%") {
		return 0, errors.Wrap(ErrUsage, "expected '%n' job argument")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(args[0], "%"))
	if err != nil {
		return 0, errors.Wrapf(ErrUsage, "bad job number %q", args[0])
	}
	return n, nil
}

// reason strips the syscall wrapper so cd diagnostics read "name: reason".
func reason(err error) string {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}
