// Package launch starts a single external command as a process-group member
// with its standard streams wired up.
package launch

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrNotFound indicates no PATH entry resolved the command name.
var ErrNotFound = errors.New("command not found")

// Command describes one process to start.
type Command struct {
	// Pgid is the process group the child joins. Zero means the child leads
	// a new group under its own pid.
	Pgid int
	// Stdin and Stdout override the child's standard streams. Nil inherits
	// the shell's.
	Stdin  *os.File
	Stdout *os.File
	// Argv is the command name followed by its arguments.
	Argv []string
}

// Start forks and execs cmd and returns the child's pid. The kernel applies
// the process-group move in the child between fork and exec; Start repeats
// it in the parent so a later stage can join the group before the child has
// run a single instruction. Children come up with default dispositions for
// the terminal stop signals, since exec resets caught handlers.
func Start(cmd Command) (int, error) {
	path, err := lookPath(cmd.Argv[0])
	if err != nil {
		return 0, err
	}

	stdin := cmd.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := cmd.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	proc, err := os.StartProcess(path, cmd.Argv, &os.ProcAttr{
		Files: []*os.File{stdin, stdout, os.Stderr},
		Sys: &syscall.SysProcAttr{
			Setpgid: true,
			Pgid:    cmd.Pgid,
		},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "start %s", cmd.Argv[0])
	}

	pgid := cmd.Pgid
	if pgid == 0 {
		pgid = proc.Pid
	}
	// EACCES here means the child already exec'd and moved itself.
	_ = unix.Setpgid(proc.Pid, pgid)

	pid := proc.Pid
	_ = proc.Release()
	return pid, nil
}

// lookPath resolves the command name. A name containing a slash is used
// verbatim; anything else walks $PATH.
func lookPath(name string) (string, error) {
	if strings.ContainsRune(name, '/') {
		return name, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrap(ErrNotFound, name)
	}
	return path, nil
}
