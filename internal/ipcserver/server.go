package ipcserver

import (
	"fmt"
	"net"
	"time"

	"github.com/hidmux/keydaemon/internal/remapconfig"
)

// listenerSendTimeout is the cooperative cancellation of spec.md §4.5/§5:
// any listener write that doesn't complete inside this window is treated
// as back-pressure and the listener is dropped.
const listenerSendTimeout = 50 * time.Millisecond

// maxListeners bounds the layer-listener set, per spec.md §3.
const maxListeners = 32

// Logger is the minimal logging surface the server needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Server is the IPC endpoint of spec.md §4.5.
type Server struct {
	ln        net.Listener
	listeners []net.Conn

	registry *remapconfig.Registry
	reload   func() error
	log      Logger
}

// Listen creates the local stream socket at socketPath. A creation
// failure here is the fatal-startup case of spec.md §7: the caller
// should report "another instance already running?" and exit non-zero.
func Listen(socketPath string) (net.Listener, error) {
	return net.Listen("unix", socketPath)
}

// New wraps an already-created listener into a Server. reload is called
// for the RELOAD command; registry supplies the entries BIND fans an
// expression out to.
func New(ln net.Listener, registry *remapconfig.Registry, reload func() error, log Logger) *Server {
	return &Server{ln: ln, registry: registry, reload: reload, log: log}
}

// Accept accepts one pending connection and dispatches it synchronously,
// per spec.md §4.5/§6: "Only one pending connection is handled at a
// time."
func (s *Server) Accept() error {
	conn, err := s.ln.Accept()
	if err != nil {
		return fmt.Errorf("ipcserver: accept: %w", err)
	}
	s.handle(conn)
	return nil
}

func (s *Server) handle(conn net.Conn) {
	frame, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return
	}

	switch frame.Type {
	case Reload:
		if err := s.reload(); err != nil {
			s.sendFail(conn, err.Error())
			return
		}
		s.sendSuccess(conn)
	case Bind:
		s.handleBind(conn, string(frame.Data))
	case LayerListen:
		s.addListener(conn)
	default:
		s.sendFail(conn, "Unknown command")
	}
}

// handleBind implements spec.md §4.5's BIND fan-out: evaluate the
// expression against every entry's keyboard, succeeding iff at least one
// accepts it.
func (s *Server) handleBind(conn net.Conn, expr string) {
	success := false
	var lastErr string

	for _, ent := range s.registry.Entries() {
		if err := ent.Kbd.Eval(expr); err != nil {
			lastErr = err.Error()
			continue
		}
		success = true
	}

	if success {
		s.sendSuccess(conn)
	} else {
		s.sendFail(conn, lastErr)
	}
}

func (s *Server) sendSuccess(conn net.Conn) {
	_ = WriteFrame(conn, Frame{Type: Success, Data: []byte("Success")})
	conn.Close()
}

func (s *Server) sendFail(conn net.Conn, reason string) {
	_ = WriteFrame(conn, Frame{Type: Fail, Data: []byte(reason)})
	conn.Close()
}

// addListener promotes conn to the listener set, per spec.md §4.5's
// boundary behavior: a 33rd listener is rejected and closed, the
// existing 32 are untouched.
func (s *Server) addListener(conn net.Conn) {
	if len(s.listeners) >= maxListeners {
		_, _ = conn.Write([]byte("Max listeners exceeded\n"))
		conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Time{})
	s.listeners = append(s.listeners, conn)
}

// ListenerCount reports the current size of the listener set.
func (s *Server) ListenerCount() int {
	return len(s.listeners)
}

// Close shuts down the listening socket and every registered
// layer-listener connection, mirroring original_source's cleanup().
func (s *Server) Close() error {
	for _, conn := range s.listeners {
		conn.Close()
	}
	s.listeners = nil
	return s.ln.Close()
}

// Broadcast implements the layer-activation fan-out of spec.md §4.5: a
// short write, a write past the 50ms deadline, or any error evicts that
// listener; the set is compacted in-place after each broadcast.
func (s *Server) Broadcast(name string, active bool) {
	if len(s.listeners) == 0 {
		return
	}

	sign := byte('-')
	if active {
		sign = '+'
	}
	line := append([]byte{sign}, append([]byte(name), '\n')...)

	kept := s.listeners[:0]
	for _, conn := range s.listeners {
		_ = conn.SetWriteDeadline(time.Now().Add(listenerSendTimeout))
		n, err := conn.Write(line)
		if err != nil || n != len(line) {
			conn.Close()
			continue
		}
		kept = append(kept, conn)
	}
	s.listeners = kept
}
