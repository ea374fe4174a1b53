package job

import (
	"golang.org/x/sys/unix"
)

// Reap performs one non-blocking collection pass: every non-finished
// process of every occupied slot is polled for a state change, requesting
// stop and continue notifications as well as exits. Coalesced SIGCHLD
// deliveries are covered because the pass visits every process. After a
// job's processes are visited its aggregate state is recomputed, and
// waiters are woken.
func (t *Table) Reap() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, j := range t.slots {
		if j == nil {
			continue
		}

		changed := false
		for _, p := range j.procs {
			if p.state == Finished {
				continue
			}

			var ws unix.WaitStatus
			pid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
			if err != nil || pid != p.pid {
				continue
			}

			switch {
			case ws.Exited():
				p.state = Finished
				p.exitCode = ws.ExitStatus()
			case ws.Signaled():
				p.state = Finished
				p.exitCode = int(ws.Signal())
			case ws.Continued():
				p.state = Running
			case ws.Stopped():
				p.state = Stopped
			}
			changed = true

			t.logger.Debugf("reaped process; job: %s, pid: %d, state: %s", j.ID, p.pid, p.state)
		}

		if changed {
			j.state = j.derive()
			t.logger.Infof("job state; id: %s, state: %s", j.ID, j.state)
		}
	}

	t.cond.Broadcast()
}
