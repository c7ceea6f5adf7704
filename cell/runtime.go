// Package cell is the library every cell binary links: it reads the
// SHM ticket the host supervisor placed in its environment, attaches
// to the segment (retrying briefly while the host finishes creating
// it), constructs the session at the cell's channel-id parity,
// registers the cell's declared services plus the mandatory
// CellLifecycle service, and drives the ready handshake — mirroring
// the one-call-setup shape of the teacher's facade.New
// (facade/hioload.go), re-purposed from a WebSocket server's transport
// wiring to a cell's SHM session wiring.
package cell

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/dodeca-dev/dodeca/apierr"
	"github.com/dodeca-dev/dodeca/rpc"
	"github.com/dodeca-dev/dodeca/services"
	"github.com/dodeca-dev/dodeca/services/lifecycle"
	"github.com/dodeca-dev/dodeca/shm"
)

// Environment variable names the host supervisor sets for every spawned
// cell process, per the fabric's boot ticket.
const (
	EnvSHMPath      = "DODECA_SHM_PATH"
	EnvRingCapacity = "DODECA_RING_CAPACITY"
	EnvSlotSize     = "DODECA_SLOT_SIZE"
	EnvSlotCount    = "DODECA_SLOT_COUNT"
	EnvRole         = "DODECA_ROLE"
	EnvTraceFilter  = "DODECA_TRACE_FILTER"
	EnvCellName     = "DODECA_CELL_NAME"
)

// cellChanStart is the channel-id allocator's starting value for every
// cell session; the host always starts at 1 (odd), per the disjoint
// odd/even allocation invariant.
const cellChanStart uint32 = 2

// Ticket is the boot-time configuration a cell reads from its
// environment, minted by the host supervisor before fork/exec.
type Ticket struct {
	SHMPath      string
	RingCapacity uint32
	SlotSize     uint32
	SlotCount    uint32
	Role         shm.Role
	TraceFilter  string
	CellName     string
}

// TicketFromEnv parses a Ticket from the process environment. It
// returns an error naming the first missing or malformed variable,
// since a cell with no usable ticket cannot proceed at all.
func TicketFromEnv() (Ticket, error) {
	var t Ticket
	t.SHMPath = os.Getenv(EnvSHMPath)
	if t.SHMPath == "" {
		return Ticket{}, fmt.Errorf("cell: missing %s", EnvSHMPath)
	}
	ringCap, err := parseUint32Env(EnvRingCapacity)
	if err != nil {
		return Ticket{}, err
	}
	slotSize, err := parseUint32Env(EnvSlotSize)
	if err != nil {
		return Ticket{}, err
	}
	slotCount, err := parseUint32Env(EnvSlotCount)
	if err != nil {
		return Ticket{}, err
	}
	role, err := shm.ParseRole(os.Getenv(EnvRole))
	if err != nil {
		return Ticket{}, fmt.Errorf("cell: %s: %w", EnvRole, err)
	}
	t.RingCapacity = ringCap
	t.SlotSize = slotSize
	t.SlotCount = slotCount
	t.Role = role
	t.TraceFilter = os.Getenv(EnvTraceFilter)
	t.CellName = os.Getenv(EnvCellName)
	return t, nil
}

func parseUint32Env(name string) (uint32, error) {
	v := os.Getenv(name)
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("cell: %s=%q: %w", name, v, err)
	}
	return uint32(n), nil
}

// attachRetryBudget bounds how long Attach retries a not-yet-created
// segment path before giving up; the host creates the segment before
// fork/exec, but the file may not be visible to the child for a few
// milliseconds on some filesystems.
const (
	attachRetryBudget   = 2 * time.Second
	attachRetryInterval = 10 * time.Millisecond
)

// Runtime is the attached, dispatch-ready state of one cell process: a
// segment, a queued transport over it, a dispatcher the caller
// registers services into, and the session built on top.
type Runtime struct {
	Ticket     Ticket
	Logger     *log.Logger
	segment    *shm.Segment
	transport  *queuedTransport
	dispatcher *rpc.Dispatcher
	session    *rpc.Session
}

// Attach reads the ticket from the environment and attaches to the
// named segment, retrying while the host finishes creating it.
func Attach(logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.Default()
	}
	ticket, err := TicketFromEnv()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(attachRetryBudget)
	var seg *shm.Segment
	for {
		seg, err = shm.Attach(ticket.SHMPath, ticket.Role)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("cell: attach %s: %w", ticket.SHMPath, err)
		}
		time.Sleep(attachRetryInterval)
	}

	rawTransport := shm.NewTransport(seg, nil)
	qt := newQueuedTransport(rawTransport)
	dispatcher := rpc.NewDispatcher()
	session := rpc.NewSession(qt, cellChanStart, dispatcher, logger)

	return &Runtime{
		Ticket:     ticket,
		Logger:     logger,
		segment:    seg,
		transport:  qt,
		dispatcher: dispatcher,
		session:    session,
	}, nil
}

// Session returns the cell's session, for typed client/server bindings
// to be constructed against.
func (r *Runtime) Session() *rpc.Session { return r.session }

// Register installs a service handler on the cell's dispatcher. Call
// this for every service the cell declares, plus CellLifecycle — a
// cell registers CellLifecycle on its own dispatcher in addition to
// calling out through lifecycle.Client, mirroring the bidirectional
// symmetry every other declared service has.
func (r *Runtime) Register(serviceID uint16, handler rpc.ServiceHandler) {
	r.dispatcher.Register(serviceID, handler)
}

// passiveLifecycleServer answers CellLifecycle.Ready calls a cell
// dispatcher might receive as a courtesy probe from the host; a cell
// never expects to be asked, so it unconditionally refuses with the
// boot-fatal sentinel rather than silently accepting.
type passiveLifecycleServer struct{}

func (passiveLifecycleServer) Ready(context.Context, lifecycle.ReadyMsg) (lifecycle.ReadyAck, error) {
	return lifecycle.ReadyAck{}, apierr.ErrBootFatal
}

// Run starts the session's demux loop on a background goroutine,
// performs the ready handshake against the host, and blocks until ctx
// is done or the session terminates. declaredServiceIDs lists the
// service ids the cell announces in its ready message; their handlers
// are registered beforehand with Register, and CellLifecycle is
// registered automatically. Once the host acknowledges ready, the
// session's gate is released so the cell's own calls to the host can
// proceed.
func (r *Runtime) Run(ctx context.Context, pid int, declaredServiceIDs []uint16) error {
	r.Register(services.CellLifecycleServiceID, lifecycle.NewHandler(passiveLifecycleServer{}))

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- r.session.Run(ctx) }()

	readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client := lifecycle.NewClient(r.session)
	ack, err := client.Ready(readyCtx, lifecycle.ReadyMsg{
		CellName: r.Ticket.CellName,
		PID:      pid,
		Services: declaredServiceIDs,
		Started:  time.Now(),
	})
	if err != nil {
		r.Logger.Printf("cell: ready handshake failed: %v", err)
		r.Close()
		return err
	}
	r.Logger.Printf("cell: ready, joined generation %d", ack.Generation)
	r.session.ReleaseGate()

	select {
	case err := <-runErrCh:
		return err
	case <-ctx.Done():
		r.Close()
		return ctx.Err()
	}
}

// Close tears down the transport and underlying segment mapping.
func (r *Runtime) Close() error {
	return r.transport.Close()
}
