package job

import (
	"os/exec"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gush-sh/gush/internal/shell/launch"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

// reapUntil drives the reaper until the slot reaches the wanted state or
// the deadline passes.
func reapUntil(t *testing.T, tbl *Table, idx int, want State) Info {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tbl.Reap()
		if info, ok := tbl.Lookup(idx); ok && info.State == want {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	info, _ := tbl.Lookup(idx)
	t.Fatalf("slot %d never reached %s; last: %+v", idx, want, info)
	return Info{}
}

func startJob(t *testing.T, tbl *Table, argv ...string) (*Job, int, int) {
	t.Helper()
	pid, err := launch.Start(launch.Command{Argv: argv})
	if err != nil {
		t.Fatalf("start %v; error: %s", argv, err)
	}
	j, idx := tbl.Add(pid, BG)
	tbl.AddProc(j, pid, argv)
	return j, idx, pid
}

func TestReapExitedProcess(t *testing.T) {
	requireTool(t, "true")

	tbl := newTestTable()
	_, idx, _ := startJob(t, tbl, "true")

	info := reapUntil(t, tbl, idx, Finished)
	if info.ExitCode != 0 {
		t.Fatalf("unexpected exit code; actual: %d, expected: 0", info.ExitCode)
	}
	if err := tbl.Delete(idx); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestReapFailedProcess(t *testing.T) {
	requireTool(t, "false")

	tbl := newTestTable()
	_, idx, _ := startJob(t, tbl, "false")

	info := reapUntil(t, tbl, idx, Finished)
	if info.ExitCode == 0 {
		t.Fatalf("expected nonzero exit code")
	}
}

func TestReapStopContinueTerminate(t *testing.T) {
	requireTool(t, "sleep")

	tbl := newTestTable()
	_, idx, pid := startJob(t, tbl, "sleep", "60")

	if err := unix.Kill(-pid, unix.SIGSTOP); err != nil {
		t.Fatalf("stop; error: %s", err)
	}
	reapUntil(t, tbl, idx, Stopped)

	if err := tbl.Resume(idx); err != nil {
		t.Fatalf("resume; error: %s", err)
	}
	reapUntil(t, tbl, idx, Running)

	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		t.Fatalf("terminate; error: %s", err)
	}
	info := reapUntil(t, tbl, idx, Finished)
	if info.ExitCode != int(unix.SIGTERM) {
		t.Fatalf("unexpected exit code; actual: %d, expected: %d", info.ExitCode, int(unix.SIGTERM))
	}
}

// fgTTY records foreground handoffs in place of a real terminal.
type fgTTY struct {
	pgids []int
}

func (f *fgTTY) SetForeground(pgid int) error {
	f.pgids = append(f.pgids, pgid)
	return nil
}

func TestMonitorForegroundFinishes(t *testing.T) {
	requireTool(t, "true")

	tbl := newTestTable()
	pid, err := launch.Start(launch.Command{Argv: []string{"true"}})
	if err != nil {
		t.Fatalf("start; error: %s", err)
	}
	j, _ := tbl.Add(pid, FG)
	tbl.AddProc(j, pid, []string{"true"})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				tbl.Reap()
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	tty := &fgTTY{}
	const shellPgid = 42
	out := tbl.MonitorForeground(tty, shellPgid)

	if out.Stopped {
		t.Fatalf("expected finished outcome; actual: %+v", out)
	}
	if out.ExitCode != 0 {
		t.Fatalf("unexpected exit code; actual: %d", out.ExitCode)
	}
	if _, ok := tbl.Lookup(Foreground); ok {
		t.Fatalf("expected foreground slot to be empty")
	}
	if n := len(tty.pgids); n == 0 || tty.pgids[n-1] != shellPgid {
		t.Fatalf("expected terminal reclaimed for shell; handoffs: %v", tty.pgids)
	}
}

func TestMonitorForegroundStopDemotes(t *testing.T) {
	requireTool(t, "sleep")

	tbl := newTestTable()
	pid, err := launch.Start(launch.Command{Argv: []string{"sleep", "60"}})
	if err != nil {
		t.Fatalf("start; error: %s", err)
	}
	j, _ := tbl.Add(pid, FG)
	tbl.AddProc(j, pid, []string{"sleep", "60"})
	defer func() {
		_ = unix.Kill(-pid, unix.SIGKILL)
		var ws unix.WaitStatus
		_, _ = unix.Wait4(pid, &ws, 0, nil)
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				tbl.Reap()
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	if err := unix.Kill(-pid, unix.SIGSTOP); err != nil {
		t.Fatalf("stop; error: %s", err)
	}

	out := tbl.MonitorForeground(&fgTTY{}, 42)
	if !out.Stopped || out.Slot != 1 {
		t.Fatalf("expected demotion to slot 1; actual: %+v", out)
	}
	if out.ExitCode != NoExit {
		t.Fatalf("unexpected exit code; actual: %d", out.ExitCode)
	}

	info, ok := tbl.Lookup(1)
	if !ok || info.State != Stopped {
		t.Fatalf("unexpected slot 1 info: %+v", info)
	}
	if _, ok := tbl.Lookup(Foreground); ok {
		t.Fatalf("expected foreground slot to be empty")
	}
}

func TestWaitAllFinished(t *testing.T) {
	requireTool(t, "sleep")

	tbl := newTestTable()
	_, _, pid := startJob(t, tbl, "sleep", "60")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				tbl.Reap()
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		t.Fatalf("terminate; error: %s", err)
	}

	done := make(chan struct{})
	go func() {
		tbl.WaitAllFinished()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("table never drained")
	}
}
