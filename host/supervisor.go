package host

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/cell"
	"github.com/dodeca-dev/dodeca/control"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	hostsvc "github.com/dodeca-dev/dodeca/services/host"
	"github.com/dodeca-dev/dodeca/services/lifecycle"
	"github.com/dodeca-dev/dodeca/shm"
)

// CellSpec is a cell binary's static declaration: which executable to
// run and which services it implements, used to size its ticket and
// its slot in the signal-forwarding/crash-respawn registry.
type CellSpec struct {
	Name       string
	Path       string
	Args       []string
	ServiceIDs []uint16
}

// SegmentParams sizes every cell's SHM segment; the fabric uses one
// fixed configuration for all cells rather than per-cell tuning.
type SegmentParams struct {
	SlotSize     uint32
	SlotCount    uint32
	RingCapacity uint32
}

// DefaultSegmentParams mirrors the teacher's DefaultConfig
// (facade/hioload.go) baseline-for-most-use-cases convention.
func DefaultSegmentParams() SegmentParams {
	return SegmentParams{SlotSize: 64 * 1024, SlotCount: 256, RingCapacity: 256}
}

const (
	readyTimeout      = 5 * time.Second
	readyRetryBackoff = 100 * time.Millisecond
	readyMaxRetries   = 3
	shutdownGrace     = 5 * time.Second
)

// cellState is the supervisor's lazily-created per-cell record.
type cellState struct {
	mu          sync.Mutex
	spec        CellSpec
	cmd         *exec.Cmd
	segment     *shm.Segment
	transport   *shm.Transport
	session     *rpc.Session
	ready       bool
	dead        bool
	clients     map[uint16]any
	readySignal chan struct{}
	exited      chan struct{} // closed once this cell's process has been reaped
}

// Supervisor implements spec.md §4.8: lazy per-cell spawn, SHM ticket
// minting, readiness handshake, crash detection and respawn-on-next-
// use, signal fan-out, and graceful shutdown. Its one-call wiring
// style (New, then per-request lazy Cell lookups) mirrors the
// teacher's facade.New single entry point (facade/hioload.go),
// generalized from a static WebSocket pipeline to a dynamic process
// supervisor.
type Supervisor struct {
	logger   *log.Logger
	params   SegmentParams
	probes   *control.DebugProbes
	boot     *BootStateManager
	hostImpl hostsvc.Server

	mu    sync.Mutex
	cells map[string]*cellState

	generation uint64 // atomic-ish, guarded by mu

	shutdownOnce sync.Once
}

// NewSupervisor constructs a Supervisor. hostImpl answers the
// HostService calls cells make back into the host (ContentFetch,
// ResolveData, Log); probes, if non-nil, receives a "host.cells" debug
// probe reporting live cell state for SIGUSR1 dumps.
func NewSupervisor(logger *log.Logger, params SegmentParams, hostImpl hostsvc.Server, probes *control.DebugProbes) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	s := &Supervisor{
		logger:   logger,
		params:   params,
		probes:   probes,
		boot:     NewBootStateManager(),
		hostImpl: hostImpl,
		cells:    make(map[string]*cellState),
	}
	if probes != nil {
		probes.RegisterProbe("host.cells", s.debugSnapshot)
	}
	return s
}

// BootState exposes the supervisor's boot state machine to the boot
// gate.
func (s *Supervisor) BootState() *BootStateManager { return s.boot }

func (s *Supervisor) debugSnapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.cells))
	for name, cs := range s.cells {
		cs.mu.Lock()
		out[name] = map[string]any{
			"ready": cs.ready,
			"dead":  cs.dead,
			"pid": func() int {
				if cs.cmd != nil && cs.cmd.Process != nil {
					return cs.cmd.Process.Pid
				}
				return -1
			}(),
		}
		cs.mu.Unlock()
	}
	return out
}

// PID returns the OS process id of the named cell's current instance,
// for callers that need to observe or signal it directly (tests
// exercising crash recovery in particular). ok is false if the cell
// has never been spawned.
func (s *Supervisor) PID(name string) (pid int, ok bool) {
	s.mu.Lock()
	cs, exists := s.cells[name]
	s.mu.Unlock()
	if !exists {
		return 0, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.cmd == nil || cs.cmd.Process == nil {
		return 0, false
	}
	return cs.cmd.Process.Pid, true
}

// Ensure returns a ready session for spec, spawning and handshaking it
// lazily if this is the first use, or respawning it if the previous
// instance was observed dead.
func (s *Supervisor) Ensure(ctx context.Context, spec CellSpec) (*rpc.Session, error) {
	s.mu.Lock()
	cs, ok := s.cells[spec.Name]
	if ok {
		cs.mu.Lock()
		dead := cs.dead
		ready := cs.ready
		cs.mu.Unlock()
		if !dead && ready {
			s.mu.Unlock()
			return cs.session, nil
		}
	}
	cs = &cellState{spec: spec, clients: make(map[uint16]any)}
	s.cells[spec.Name] = cs
	s.mu.Unlock()

	if err := s.spawn(ctx, cs); err != nil {
		return nil, err
	}
	return cs.session, nil
}

// spawn runs the full sequence from spec.md §4.8 steps 1-7, with a
// bounded exponential retry across premature-exit failures.
func (s *Supervisor) spawn(ctx context.Context, cs *cellState) error {
	var lastErr error
	backoff := readyRetryBackoff
	for attempt := 0; attempt < readyMaxRetries; attempt++ {
		if err := s.spawnOnce(ctx, cs); err != nil {
			lastErr = err
			s.logger.Printf("host: spawn %s attempt %d failed: %v", cs.spec.Name, attempt+1, err)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		return nil
	}
	s.boot.MarkFatal(FatalCellStartupFailed)
	return fmt.Errorf("host: spawn %s exhausted retries: %w", cs.spec.Name, lastErr)
}

func (s *Supervisor) spawnOnce(ctx context.Context, cs *cellState) error {
	segName := fmt.Sprintf("dodeca-%s-%d-%d", cs.spec.Name, os.Getpid(), time.Now().UnixNano())
	seg, err := shm.Create(segName, s.params.SlotSize, s.params.SlotCount, s.params.RingCapacity)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}

	cmd := exec.Command(cs.spec.Path, cs.spec.Args...)
	cmd.Env = append(os.Environ(),
		cell.EnvSHMPath+"="+seg.Path(),
		fmt.Sprintf("%s=%d", cell.EnvRingCapacity, s.params.RingCapacity),
		fmt.Sprintf("%s=%d", cell.EnvSlotSize, s.params.SlotSize),
		fmt.Sprintf("%s=%d", cell.EnvSlotCount, s.params.SlotCount),
		cell.EnvRole+"=B",
		cell.EnvCellName+"="+cs.spec.Name,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setDetachedProcess(cmd)

	if err := cmd.Start(); err != nil {
		seg.Close()
		return fmt.Errorf("fork/exec %s: %w", cs.spec.Path, err)
	}
	registerChildPID(cmd.Process.Pid)

	transport := shm.NewTransport(seg, func() bool { return processAlive(cmd.Process.Pid) })
	dispatcher := rpc.NewDispatcher()
	session := rpc.NewSession(transport, 1, dispatcher, s.logger)
	dispatcher.Register(services.CellLifecycleServiceID, lifecycle.NewHandler(s.readyObserver(cs)))
	if s.hostImpl != nil {
		dispatcher.Register(services.HostServiceID, hostsvc.NewHandler(s.hostImpl, session))
	}

	cs.mu.Lock()
	cs.cmd = cmd
	cs.segment = seg
	cs.transport = transport
	cs.session = session
	cs.exited = make(chan struct{})
	cs.mu.Unlock()

	// Reap the child as soon as it exits, on any path: the ring
	// transport has no peer-death signal of its own, and processAlive's
	// signal(0) probe would otherwise keep reporting an unreaped,
	// zombie child as alive indefinitely. Marking the transport
	// peer-gone here unblocks any Send/Recv that is waiting on a free
	// slot or a frame from the dead cell immediately, rather than
	// waiting out waitPollMs.
	go func() {
		cmd.Wait()
		transport.MarkPeerGone()
		close(cs.exited)
	}()

	go func() {
		err := session.Run(context.Background())
		cs.mu.Lock()
		cs.dead = true
		cs.ready = false
		cs.mu.Unlock()
		s.logger.Printf("host: cell %s session terminated: %v", cs.spec.Name, err)
	}()

	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	select {
	case <-cs.readyCh(readyCtx):
	case <-readyCtx.Done():
		cmd.Process.Kill()
		return apierr.ErrReadyTimeout
	}

	cs.mu.Lock()
	if cs.dead {
		cs.mu.Unlock()
		return apierr.ErrCellCrashed
	}
	cs.ready = true
	cs.mu.Unlock()
	return nil
}

// readyCh lazily creates (once) the channel readyObserver closes when
// this cell's Ready RPC arrives, so spawnOnce can select on it.
func (cs *cellState) readyCh(ctx context.Context) <-chan struct{} {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.readySignal == nil {
		cs.readySignal = make(chan struct{})
	}
	return cs.readySignal
}

func (s *Supervisor) readyObserver(cs *cellState) lifecycle.Server {
	return readyObserverFunc(func(ctx context.Context, msg lifecycle.ReadyMsg) (lifecycle.ReadyAck, error) {
		s.mu.Lock()
		s.generation++
		gen := s.generation
		s.mu.Unlock()

		cs.mu.Lock()
		if cs.readySignal == nil {
			cs.readySignal = make(chan struct{})
		}
		select {
		case <-cs.readySignal:
		default:
			close(cs.readySignal)
		}
		cs.mu.Unlock()

		cs.session.ReleaseGate()
		s.logger.Printf("host: cell %s ready, generation %d", msg.CellName, gen)
		return lifecycle.ReadyAck{Generation: gen}, nil
	})
}

type readyObserverFunc func(ctx context.Context, msg lifecycle.ReadyMsg) (lifecycle.ReadyAck, error)

func (f readyObserverFunc) Ready(ctx context.Context, msg lifecycle.ReadyMsg) (lifecycle.ReadyAck, error) {
	return f(ctx, msg)
}

// Shutdown sends SIGTERM to every child, waits up to shutdownGrace,
// then SIGKILLs stragglers, and closes every segment mapping.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		cells := make([]*cellState, 0, len(s.cells))
		for _, cs := range s.cells {
			cells = append(cells, cs)
		}
		s.mu.Unlock()

		for _, cs := range cells {
			cs.mu.Lock()
			cmd := cs.cmd
			cs.mu.Unlock()
			if cmd != nil && cmd.Process != nil {
				sendSIGTERM(cmd.Process.Pid)
			}
		}

		done := make(chan struct{})
		go func() {
			for _, cs := range cells {
				cs.mu.Lock()
				exited := cs.exited
				cs.mu.Unlock()
				if exited != nil {
					<-exited
				}
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			for _, cs := range cells {
				cs.mu.Lock()
				cmd := cs.cmd
				cs.mu.Unlock()
				if cmd != nil && cmd.Process != nil {
					cmd.Process.Kill()
				}
			}
		}

		for _, cs := range cells {
			cs.mu.Lock()
			if cs.transport != nil {
				cs.transport.Close()
			}
			cs.mu.Unlock()
		}
	})
}

var pidRegistryMu sync.Mutex
var pidRegistry []int

func registerChildPID(pid int) {
	pidRegistryMu.Lock()
	defer pidRegistryMu.Unlock()
	pidRegistry = append(pidRegistry, pid)
}

// ForwardSIGUSR1 sends SIGUSR1 to every registered child PID, then
// runs every registered diagnostic callback — the process-tree-wide
// stack-dump fan-out from spec.md §4.8.
func ForwardSIGUSR1(probes *control.DebugProbes, logger *log.Logger) {
	pidRegistryMu.Lock()
	pids := append([]int(nil), pidRegistry...)
	pidRegistryMu.Unlock()

	for _, pid := range pids {
		if err := sendSIGUSR1(pid); err != nil {
			logger.Printf("host: SIGUSR1 forward to pid %d failed: %v", pid, err)
		}
	}
	if probes != nil {
		for name, val := range probes.DumpState() {
			logger.Printf("host: debug probe %s: %v", name, val)
		}
	}
}
