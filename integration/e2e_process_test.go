//go:build dodeca_e2e

// This file exercises spec.md §8 scenarios 5 and 6, which inherently
// need a second OS process: a cell crash, and a SIGUSR1 fan-out across
// a process tree. It re-execs this same test binary as the "cell"
// (the self-reexec harness pattern used for daemon-spawning test
// suites, grounded on the teacher pack's
// cmd/dev-console/test_daemon_cleanup_test.go TestMain convention) so
// no separate helper binary needs building. Run with:
//
//	go test -tags dodeca_e2e ./integration/...
package integration

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/cell"
	"github.com/dodeca-dev/dodeca/control"
	"github.com/dodeca-dev/dodeca/host"
	"github.com/dodeca-dev/dodeca/rpc"
)

// helperRoleEnv selects which role this re-exec'd process plays;
// os.Args carries the role-specific parameters instead of flags, since
// this binary's normal flag set belongs to `go test`.
const helperRoleEnv = "DODECA_E2E_HELPER_ROLE"

const (
	slowEchoServiceID uint16 = 0xfff1
	slowEchoMethodID  uint16 = 1
)

func TestMain(m *testing.M) {
	switch os.Getenv(helperRoleEnv) {
	case "slowcell":
		runSlowCellHelper()
		os.Exit(0)
	case "probecell":
		runProbeCellHelper()
		os.Exit(0)
	default:
		os.Exit(m.Run())
	}
}

// runSlowCellHelper attaches as a cell, registers a service that
// sleeps before echoing so the test has a reliable in-flight window to
// kill -9 it within, and blocks until the session terminates.
func runSlowCellHelper() {
	logger := log.New(os.Stderr, "[e2e-slowcell] ", log.LstdFlags|log.Lmicroseconds)
	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}
	rt.Register(slowEchoServiceID, rpc.ServiceHandlerFunc(
		func(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
			time.Sleep(2 * time.Second)
			return payload, nil
		}))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rt.Run(ctx, os.Getpid(), []uint16{slowEchoServiceID})
}

// runProbeCellHelper attaches as a cell and appends one line to the
// marker file named in os.Args[1] every time its SIGUSR1 diagnostic
// callback fires, so the host-side test can observe a callback that
// ran in a different process.
func runProbeCellHelper() {
	logger := log.New(os.Stderr, "[e2e-probecell] ", log.LstdFlags|log.Lmicroseconds)
	markerPath := os.Args[len(os.Args)-1]

	var fired int64
	stop := cell.InstallSIGUSR1Handler(logger, func() any {
		n := atomic.AddInt64(&fired, 1)
		f, err := os.OpenFile(markerPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			f.WriteString("fired\n")
			f.Close()
		}
		return n
	})
	defer stop()

	rt, err := cell.Attach(logger)
	if err != nil {
		logger.Fatalf("attach: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rt.Run(ctx, os.Getpid(), nil)
}

// TestCellCrashSurfacesOnceThenRespawns reproduces spec.md §8 scenario
// 5: while one call is in flight, the cell is killed with SIGKILL; the
// in-flight call resolves with PeerGone, and the next request against
// the same cell name triggers a fresh spawn and succeeds.
func TestCellCrashSurfacesOnceThenRespawns(t *testing.T) {
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	os.Setenv(helperRoleEnv, "slowcell")
	defer os.Unsetenv(helperRoleEnv)

	logger := log.New(os.Stderr, "[e2e-host] ", log.LstdFlags|log.Lmicroseconds)
	sup := host.NewSupervisor(logger, host.DefaultSegmentParams(), nil, control.NewDebugProbes())
	defer sup.Shutdown()

	spec := host.CellSpec{Name: "slowcell", Path: self}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := sup.Ensure(ctx, spec)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	callErrCh := make(chan error, 1)
	go func() {
		_, callErr := session.Call(context.Background(), slowEchoServiceID, slowEchoMethodID, []byte("hello"))
		callErrCh <- callErr
	}()

	time.Sleep(300 * time.Millisecond) // let the call land inside the helper's sleep
	pid, ok := sup.PID("slowcell")
	if !ok {
		t.Fatal("supervisor has no pid for slowcell")
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		t.Fatalf("kill -9 %d: %v", pid, err)
	}

	select {
	case callErr := <-callErrCh:
		if callErr != apierr.ErrPeerGone {
			t.Fatalf("expected ErrPeerGone, got %v", callErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight call never resolved after the cell was killed")
	}

	session2, err := sup.Ensure(ctx, spec)
	if err != nil {
		t.Fatalf("Ensure after crash: %v", err)
	}
	resp, err := session2.Call(ctx, slowEchoServiceID, slowEchoMethodID, []byte("again"))
	if err != nil {
		t.Fatalf("Call after respawn: %v", err)
	}
	if string(resp) != "again" {
		t.Fatalf("unexpected echo after respawn: %q", resp)
	}

	newPID, _ := sup.PID("slowcell")
	if newPID == pid {
		t.Fatal("respawn did not allocate a new process")
	}
}

// TestSIGUSR1FanOut reproduces spec.md §8 scenario 6: two diagnostic
// callbacks registered on the host (plus the supervisor's own
// "host.cells" probe) and three spawned cells each with one callback
// must all fire once the host receives SIGUSR1.
func TestSIGUSR1FanOut(t *testing.T) {
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	os.Setenv(helperRoleEnv, "probecell")
	defer os.Unsetenv(helperRoleEnv)

	logger := log.New(os.Stderr, "[e2e-host] ", log.LstdFlags|log.Lmicroseconds)
	probes := control.NewDebugProbes()
	probes.RegisterProbe("diagnostic.one", func() any { return "one" })
	probes.RegisterProbe("diagnostic.two", func() any { return "two" })

	sup := host.NewSupervisor(logger, host.DefaultSegmentParams(), nil, probes)
	defer sup.Shutdown()

	markerPaths := make([]string, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for i := range markerPaths {
		markerPaths[i] = t.TempDir() + "/fired"
		spec := host.CellSpec{Name: "probecell" + string(rune('a'+i)), Path: self, Args: []string{markerPaths[i]}}
		if _, err := sup.Ensure(ctx, spec); err != nil {
			t.Fatalf("Ensure probecell %d: %v", i, err)
		}
	}

	dump := probes.DumpState()
	if len(dump) != 3 {
		t.Fatalf("expected 3 host-side probes (2 explicit + host.cells), got %d: %v", len(dump), dump)
	}

	host.ForwardSIGUSR1(probes, logger)

	for i, path := range markerPaths {
		deadline := time.Now().Add(3 * time.Second)
		for {
			data, err := os.ReadFile(path)
			if err == nil && len(data) > 0 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("probecell %d never fired its SIGUSR1 callback", i)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
}
