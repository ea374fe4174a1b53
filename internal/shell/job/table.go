package job

import (
	"sync"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/gush-sh/gush/internal/log"
)

// Foreground is the slot reserved for the job owning the terminal.
const Foreground = 0

// Class selects which slot family a new job occupies.
type Class int

const (
	// FG places the job in the foreground slot.
	FG Class = iota
	// BG places the job in the lowest free background slot.
	BG
)

var (
	// ErrNoJob indicates the slot is empty or out of range.
	ErrNoJob = errors.New("no such job")
	// ErrSlotOccupied indicates a move target already holds a job.
	ErrSlotOccupied = errors.New("slot occupied")
	// ErrNotFinished indicates a delete of a live job.
	ErrNotFinished = errors.New("job not finished")
)

// NewTable creates an empty job table.
func NewTable(logger *log.Logger) *Table {
	t := &Table{
		slots:  make([]*Job, 1),
		logger: logger,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Table is the ordered container of job slots. Slot 0 is reserved for the
// foreground job; the index of a background slot is the user-visible job
// number. The table grows on demand and never shrinks, so indices are
// stable for the shell's lifetime.
//
// The single mutex serializes the reaper goroutine against every other
// accessor. Process states are written by the reaper and by Resume, which
// marks stopped processes running when it sends SIGCONT. The cond is
// broadcast after every reap so waiters can re-examine state they care
// about under the lock.
type Table struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slots  []*Job
	logger *log.Logger
}

// Info is a point-in-time view of one occupied slot.
type Info struct {
	Index    int
	Pgid     int
	State    State
	Command  string
	ExitCode int
}

func (t *Table) info(idx int) Info {
	j := t.slots[idx]
	return Info{
		Index:    idx,
		Pgid:     j.pgid,
		State:    j.state,
		Command:  j.command,
		ExitCode: j.exit(),
	}
}

// Add creates a running job for the given process group. A foreground job
// takes slot 0, which must be empty; a background job takes the lowest free
// slot at index 1 or above. The new job and its slot index are returned.
func (t *Table) Add(pgid int, class Class) (*Job, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := Foreground
	if class == BG {
		idx = t.freeSlot()
	} else if t.slots[Foreground] != nil {
		panic("job: foreground slot occupied")
	}

	j := &Job{
		ID:    uuid.New(),
		pgid:  pgid,
		state: Running,
	}
	t.slots[idx] = j

	t.logger.Infof("job added; id: %s, pgid: %d, slot: %d", j.ID, pgid, idx)
	return j, idx
}

// freeSlot returns the lowest empty background slot, growing the table when
// every slot is occupied. Caller holds t.mu.
func (t *Table) freeSlot() int {
	for i := Foreground + 1; i < len(t.slots); i++ {
		if t.slots[i] == nil {
			return i
		}
	}
	t.slots = append(t.slots, nil)
	return len(t.slots) - 1
}

// AddProc appends a running process to the job and extends its command text
// with the stage's argv, stages separated by " | ".
func (t *Table) AddProc(j *Job, pid int, argv []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j.procs = append(j.procs, &Process{
		pid:      pid,
		state:    Running,
		exitCode: NoExit,
	})

	text := shellquote.Join(argv...)
	if j.command == "" {
		j.command = text
	} else {
		j.command += " | " + text
	}
}

// Lookup returns a view of slot idx.
func (t *Table) Lookup(idx int) (Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx < 0 || idx >= len(t.slots) || t.slots[idx] == nil {
		return Info{}, false
	}
	return t.info(idx), true
}

// Jobs returns a view of every occupied slot in ascending slot order.
func (t *Table) Jobs() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	var infos []Info
	for i := range t.slots {
		if t.slots[i] != nil {
			infos = append(infos, t.info(i))
		}
	}
	return infos
}

// HighestActive returns the occupied slot with the greatest index whose
// state is not finished.
func (t *Table) HighestActive() (Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.slots) - 1; i >= 0; i-- {
		if t.slots[i] != nil && t.slots[i].state != Finished {
			return t.info(i), true
		}
	}
	return Info{}, false
}

// Move relocates the job in slot from to the empty slot to.
func (t *Table) Move(from, to int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to)
}

// move is Move without locking. Caller holds t.mu.
func (t *Table) move(from, to int) error {
	if from < 0 || from >= len(t.slots) || t.slots[from] == nil {
		return errors.Wrapf(ErrNoJob, "slot %d", from)
	}
	if to < 0 || to >= len(t.slots) || t.slots[to] != nil {
		return errors.Wrapf(ErrSlotOccupied, "slot %d", to)
	}

	t.slots[to] = t.slots[from]
	t.slots[from] = nil
	t.logger.Infof("job moved; id: %s, from: %d, to: %d", t.slots[to].ID, from, to)
	return nil
}

// Delete releases the finished job in slot idx.
func (t *Table) Delete(idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx < 0 || idx >= len(t.slots) || t.slots[idx] == nil {
		return errors.Wrapf(ErrNoJob, "slot %d", idx)
	}
	if t.slots[idx].state != Finished {
		return errors.Wrapf(ErrNotFinished, "slot %d", idx)
	}

	t.logger.Infof("job deleted; id: %s, slot: %d", t.slots[idx].ID, idx)
	t.slots[idx] = nil
	return nil
}

// Resume delivers SIGCONT to the job's process group and optimistically
// marks its stopped processes running; the reaper confirms once the kernel
// reports the continue.
func (t *Table) Resume(idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx < 0 || idx >= len(t.slots) || t.slots[idx] == nil {
		return errors.Wrapf(ErrNoJob, "slot %d", idx)
	}
	j := t.slots[idx]

	if err := unix.Kill(-j.pgid, unix.SIGCONT); err != nil {
		return errors.Wrapf(err, "continue pgid %d", j.pgid)
	}
	for _, p := range j.procs {
		if p.state == Stopped {
			p.state = Running
		}
	}
	j.state = j.derive()

	t.logger.Infof("job resumed; id: %s, slot: %d", j.ID, idx)
	return nil
}

// CollectFinished removes every finished background job and returns their
// final views, for reporting between prompts.
func (t *Table) CollectFinished() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()

	var infos []Info
	for i := Foreground + 1; i < len(t.slots); i++ {
		if t.slots[i] == nil || t.slots[i].state != Finished {
			continue
		}
		infos = append(infos, t.info(i))
		t.logger.Infof("job collected; id: %s, slot: %d", t.slots[i].ID, i)
		t.slots[i] = nil
	}
	return infos
}

// WaitAllFinished blocks until no occupied slot holds a live job. The
// reaper's broadcasts drive the re-checks.
func (t *Table) WaitAllFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		live := false
		for _, j := range t.slots {
			if j != nil && j.state != Finished {
				live = true
				break
			}
		}
		if !live {
			return
		}
		t.cond.Wait()
	}
}
