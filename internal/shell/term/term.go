// Package term owns the shell's handle on its controlling terminal and the
// foreground process-group arbitration done through it.
package term

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrNotTerminal indicates standard input is not a terminal.
var ErrNotTerminal = errors.New("standard input is not a terminal")

// Open asserts stdin is a terminal and returns a Terminal backed by a
// close-on-exec duplicate of it, so children never inherit the handle.
func Open() (*Terminal, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil, ErrNotTerminal
	}

	fd, err := unix.FcntlInt(os.Stdin.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "dup terminal fd")
	}
	return &Terminal{fd: fd}, nil
}

// Terminal is the shell's controlling-terminal handle.
type Terminal struct {
	fd int
}

// SetForeground installs pgid as the terminal's foreground process group.
func (t *Terminal) SetForeground(pgid int) error {
	return errors.Wrap(
		unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid),
		"tcsetpgrp",
	)
}

// Foreground reports the terminal's current foreground process group.
func (t *Terminal) Foreground() (int, error) {
	pgid, err := unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
	return pgid, errors.Wrap(err, "tcgetpgrp")
}

// Close releases the terminal fd.
func (t *Terminal) Close() error {
	return errors.Wrap(unix.Close(t.fd), "close terminal fd")
}
