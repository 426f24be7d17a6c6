package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"tk102-ng/internal/tk102"
)

const acceptRetryDelay = 100 * time.Millisecond

// Listener accepts device connections and runs one session per socket.
type Listener struct {
	settings Settings
	parser   *tk102.Parser
	obs      Observer

	started atomic.Bool
	closed  atomic.Bool

	nextID   atomic.Uint64
	active   atomic.Int64
	accepted atomic.Uint64
	counts   [numKinds]atomicCounter

	mu      sync.RWMutex
	state   string
	addr    net.Addr
	lastErr string

	ln     net.Listener
	slots  *semaphore.Weighted
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

type Snapshot struct {
	State       string            `json:"state"`
	Addr        string            `json:"addr,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	Settings    Settings          `json:"settings"`
	Active      int64             `json:"active_connections"`
	Accepted    uint64            `json:"accepted_connections"`
	Events      map[string]uint64 `json:"events"`
	SnapshotUTC string            `json:"snapshot_utc"`
}

var kindIndex = map[EventKind]int{
	EventListening:  0,
	EventConnection: 1,
	EventData:       2,
	EventTimeout:    3,
	EventTrack:      4,
	EventFail:       5,
	EventError:      6,
}

const numKinds = 7

func New(settings Settings, parser *tk102.Parser, obs Observer) (*Listener, error) {
	if settings.BindAddress == "" {
		settings.BindAddress = DefaultBindAddress
	}
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("listener settings: %w", err)
	}
	if parser == nil {
		parser = tk102.Default()
	}
	if obs == nil {
		obs = Observers(nil)
	}
	return &Listener{
		settings: settings,
		parser:   parser,
		obs:      obs,
		state:    "stopped",
		done:     make(chan struct{}),
	}, nil
}

// Start binds the configured address and accepts connections until ctx is
// cancelled or Close is called. A bind failure is emitted as an error event
// and returned as *BindError.
func (l *Listener) Start(ctx context.Context) error {
	if l == nil {
		return fmt.Errorf("listener is nil")
	}
	if l.closed.Load() {
		return fmt.Errorf("listener is closed")
	}
	if l.started.Swap(true) {
		return fmt.Errorf("listener already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.settings.Addr())
	if err != nil {
		berr := &BindError{
			Reason:      err.Error(),
			Settings:    l.settings,
			Unavailable: isAddrUnavailable(err),
			Err:         err,
		}
		l.setState("error", berr.Error())
		l.emit(Event{Kind: EventError, Err: berr})
		close(l.done)
		return berr
	}

	l.mu.Lock()
	l.addr = ln.Addr()
	l.mu.Unlock()
	l.ln = ln
	l.slots = semaphore.NewWeighted(int64(l.settings.MaxConnections))

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	stop := context.AfterFunc(runCtx, func() { _ = l.ln.Close() })

	l.setState("listening", "")
	l.emit(Event{Kind: EventListening, Addr: ln.Addr()})

	go func() {
		defer close(l.done)
		defer stop()
		l.acceptLoop(runCtx)
		l.wg.Wait()
		l.setState("stopped", "")
	}()
	return nil
}

// Close stops accepting, aborts open sessions and waits for them to finish.
func (l *Listener) Close() {
	if l == nil {
		return
	}
	if l.closed.Swap(true) {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.started.Load() {
		<-l.done
	}
}

// Addr is the bound address, or nil before Start succeeds.
func (l *Listener) Addr() net.Addr {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.addr
}

func (l *Listener) Snapshot(nowUTC time.Time) Snapshot {
	if l == nil {
		return Snapshot{}
	}
	l.mu.RLock()
	out := Snapshot{
		State:     l.state,
		LastError: l.lastErr,
		Settings:  l.settings,
	}
	if l.addr != nil {
		out.Addr = l.addr.String()
	}
	l.mu.RUnlock()

	out.Active = l.active.Load()
	out.Accepted = l.accepted.Load()
	out.Events = make(map[string]uint64, numKinds)
	for kind, i := range kindIndex {
		out.Events[string(kind)] = l.counts[i].load()
	}
	out.SnapshotUTC = nowUTC.UTC().Format(time.RFC3339Nano)
	return out
}

// acceptLoop stops calling Accept while MaxConnections sessions are open, so
// further connections wait in the kernel backlog.
func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		if err := l.slots.Acquire(ctx, 1); err != nil {
			return
		}
		conn, err := l.ln.Accept()
		if err != nil {
			l.slots.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.setState("listening", err.Error())
			l.emit(Event{Kind: EventError, Err: &BindError{
				Reason:   err.Error(),
				Settings: l.settings,
				Err:      err,
			}})
			if !sleepCtx(ctx, acceptRetryDelay) {
				return
			}
			continue
		}

		info := &ConnInfo{
			ID:         l.nextID.Add(1),
			RemoteAddr: conn.RemoteAddr().String(),
			LocalAddr:  conn.LocalAddr().String(),
			Created:    time.Now().UTC(),
		}
		l.accepted.Add(1)
		l.active.Add(1)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.slots.Release(1)
			defer l.active.Add(-1)
			newSession(info, conn, l.settings, l.parser, l.emit).run(ctx)
		}()
	}
}

func (l *Listener) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if i, ok := kindIndex[ev.Kind]; ok {
		l.counts[i].inc()
	}
	l.obs.OnEvent(ev)
}

func (l *Listener) setState(state string, lastErr string) {
	l.mu.Lock()
	l.state = state
	if lastErr != "" {
		l.lastErr = lastErr
	} else if state == "listening" || state == "stopped" {
		l.lastErr = ""
	}
	l.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
