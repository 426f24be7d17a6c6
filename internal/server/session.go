package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tk102-ng/internal/tk102"
)

const readChunkBytes = 4096

// session owns one accepted socket from accept until close.
//
// The watchdog is armed once at accept and never reset by incoming data.
type session struct {
	info     *ConnInfo
	conn     net.Conn
	settings Settings
	parser   *tk102.Parser
	emit     func(Event)

	buf  bytes.Buffer
	size int

	timer     *time.Timer
	aborted   atomic.Bool
	abortOnce sync.Once

	// mu orders the timeout event before the terminal event.
	mu       sync.Mutex
	closed   bool
	timedOut bool
}

func newSession(info *ConnInfo, conn net.Conn, settings Settings, parser *tk102.Parser, emit func(Event)) *session {
	return &session{
		info:     info,
		conn:     conn,
		settings: settings,
		parser:   parser,
		emit:     emit,
	}
}

// run blocks until the socket closes and the terminal event (if any) has been
// emitted. Cancelling ctx aborts the socket.
func (s *session) run(ctx context.Context) {
	s.emit(Event{Kind: EventConnection, Conn: s.info})

	if s.settings.IdleTimeout > 0 {
		s.timer = time.AfterFunc(s.settings.IdleTimeout, s.onTimeout)
	}
	stop := context.AfterFunc(ctx, s.abort)

	s.readLoop()

	stop()
	if s.timer != nil {
		s.timer.Stop()
	}
	_ = s.conn.Close()
	s.finish()
}

// readLoop marks the session closed before it returns, so a watchdog firing
// after the peer has gone does not report a timeout.
func (s *session) readLoop() {
	defer s.markClosed()
	chunk := make([]byte, readChunkBytes)
	for {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			data := append([]byte(nil), chunk[:n]...)
			s.emit(Event{Kind: EventData, Conn: s.info, Chunk: data})
			s.buf.Write(data)
			s.size += n
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || s.aborted.Load() || errors.Is(err, net.ErrClosed) {
			return
		}
		s.emit(Event{Kind: EventError, Conn: s.info, Err: &SocketError{
			Reason:   err.Error(),
			Conn:     s.info,
			Settings: s.settings,
			Err:      err,
		}})
		return
	}
}

func (s *session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *session) onTimeout() {
	s.mu.Lock()
	if s.closed || s.timedOut || s.aborted.Load() {
		s.mu.Unlock()
		return
	}
	s.timedOut = true
	s.emit(Event{Kind: EventTimeout, Conn: s.info})
	s.mu.Unlock()
	s.abort()
}

// abort closes the socket with a reset instead of a FIN.
func (s *session) abort() {
	s.abortOnce.Do(func() {
		s.aborted.Store(true)
		if tc, ok := s.conn.(interface{ SetLinger(sec int) error }); ok {
			_ = tc.SetLinger(0)
		}
		_ = s.conn.Close()
	})
}

func (s *session) finish() {
	if s.size == 0 {
		return
	}
	input := strings.ToValidUTF8(s.buf.String(), "\uFFFD")
	if input == "" {
		return
	}
	rep, ok := s.parser.Parse(input)
	if ok {
		s.emit(Event{Kind: EventTrack, Conn: s.info, Payload: input, Report: &rep})
		return
	}
	s.emit(Event{Kind: EventFail, Conn: s.info, Payload: input, Err: &ParseError{
		Reason: reasonCannotParse,
		Input:  input,
		Conn:   s.info,
	}})
}
