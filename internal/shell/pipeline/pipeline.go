// Package pipeline assembles multi-stage commands: it threads a pipe
// between each pair of neighbouring stages, launches every stage into one
// process group, and registers the result as a single job.
package pipeline

import (
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/gush-sh/gush/internal/log"
	"github.com/gush-sh/gush/internal/shell/job"
	"github.com/gush-sh/gush/internal/shell/launch"
	"github.com/gush-sh/gush/internal/shell/redirect"
	"github.com/gush-sh/gush/internal/shell/token"
)

// ErrFatal marks kernel-exhaustion failures (pipe or fork) the shell cannot
// recover from.
var ErrFatal = errors.New("fatal")

// Run launches the tokens as a job of one or more stages. The first stage's
// pid becomes the job's process group; every later stage joins it.
//
// After each iteration the parent holds no descriptor belonging to the
// launched stage: the kernel dup'd what the child needed at exec, and both
// pipe ends plus any redirection targets are closed here immediately. The
// read end feeding the next stage survives exactly one iteration longer.
//
// When a stage fails to resolve or launch, that stage and everything after
// it are abandoned; stages already launched remain as the returned job, and
// the caller decides how to attend it. A nil job with a non-nil error means
// nothing was launched.
func Run(t *job.Table, toks []token.Token, class job.Class, logger *log.Logger) (*job.Job, int, error) {
	stages, err := token.Split(toks)
	if err != nil {
		return nil, 0, err
	}

	var (
		j     *job.Job
		idx   int
		pgid  int
		input *os.File
	)
	for i, stage := range stages {
		argv, files, err := redirect.Resolve(stage)
		if err == nil && len(argv) == 0 {
			err = errors.Wrap(token.ErrSyntax, "stage has no command")
		}
		if err != nil {
			files.Close()
			if input != nil {
				input.Close()
			}
			return j, idx, err
		}

		var nextInput, output *os.File
		if i < len(stages)-1 {
			nextInput, output, err = os.Pipe()
			if err != nil {
				files.Close()
				if input != nil {
					input.Close()
				}
				return j, idx, errors.Wrapf(ErrFatal, "pipe: %s", err)
			}
		}

		stdin := files.In
		if stdin == nil {
			stdin = input
		}
		stdout := files.Out
		if stdout == nil {
			stdout = output
		}

		pid, err := launch.Start(launch.Command{
			Pgid:   pgid,
			Stdin:  stdin,
			Stdout: stdout,
			Argv:   argv,
		})

		// The child dup'd its ends before this point; drop ours either way.
		files.Close()
		if input != nil {
			input.Close()
		}
		if output != nil {
			output.Close()
		}

		if err != nil {
			if nextInput != nil {
				nextInput.Close()
			}
			// Only a failed fork is kernel exhaustion; a lookup or exec
			// failure abandons the stage like a redirection failure.
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM) {
				return j, idx, errors.Wrapf(ErrFatal, "fork: %s", err)
			}
			return j, idx, err
		}

		if i == 0 {
			pgid = pid
			j, idx = t.Add(pgid, class)
		}
		t.AddProc(j, pid, argv)
		logger.Debugf("stage launched; job: %s, pid: %d, argv: %v", j.ID, pid, argv)

		input = nextInput
	}

	return j, idx, nil
}
