// Package job implements the shell's job table: ordered slots of jobs, each
// a process group of one or more child processes, together with the reaper
// that consumes child state changes and the monitor that attends the
// foreground job.
package job

import (
	"github.com/google/uuid"
)

// State is the lifecycle state of a process or of a whole job.
type State int

const (
	// Running indicates the process is scheduled or runnable.
	Running State = iota
	// Stopped indicates the process was stopped by a terminal or signal.
	Stopped
	// Finished indicates the process exited or was killed.
	Finished
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// NoExit is the exit code of a process that has not finished.
const NoExit = -1

// Process is one launched child of a job. It never moves between jobs and
// is released with its job.
type Process struct {
	pid      int
	state    State
	exitCode int
}

// Job is a set of processes sharing one process group. Index 0 of procs is
// the leftmost pipeline stage.
type Job struct {
	// ID correlates log entries; the user-visible identity of a job is its
	// slot index.
	ID uuid.UUID

	pgid    int
	procs   []*Process
	command string
	state   State
}

// derive recomputes the aggregate state from the member states: running if
// any member runs, else stopped if any member is stopped, else finished.
func (j *Job) derive() State {
	stopped := false
	for _, p := range j.procs {
		switch p.state {
		case Running:
			return Running
		case Stopped:
			stopped = true
		}
	}
	if stopped {
		return Stopped
	}
	return Finished
}

// exit reports the job's exit code, the exit code of its last stage.
func (j *Job) exit() int {
	if len(j.procs) == 0 {
		return NoExit
	}
	return j.procs[len(j.procs)-1].exitCode
}
