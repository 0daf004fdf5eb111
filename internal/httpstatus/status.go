// Package httpstatus is a read-only diagnostics endpoint over the
// daemon's live state: bound devices, loaded configs, and active IPC
// listeners. Grounded on the teacher's internal/api/{server,routes}.go —
// same http.ServeMux + writeJSON shape, generalized from a mutable
// gesture-config CRUD API to a read-only status snapshot, since the
// daemon's actual state lives behind the single-threaded event loop and
// must never be mutated from an HTTP handler goroutine.
package httpstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/remapconfig"
)

// Snapshot is what StateFunc reports; the caller assembles it from the
// event loop's own singletons on demand, never concurrently with a
// mutation, since Go's memory model gives no guarantees between an HTTP
// goroutine and the single-threaded loop otherwise.
type Snapshot struct {
	Devices       []DeviceStatus `json:"devices"`
	ConfigCount   int            `json:"config_count"`
	ListenerCount int            `json:"listener_count"`
	LastReload    time.Time      `json:"last_reload"`
}

// DeviceStatus is one entry in a Snapshot.
type DeviceStatus struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Bound  bool   `json:"bound"`
	Config string `json:"config,omitempty"`
}

// StateFunc produces a fresh Snapshot on demand. It is the caller's
// responsibility to make this safe to invoke from an HTTP handler
// goroutine — cmd/keydaemon wires this to Bridge.Fetch, which channels
// the request onto the event loop instead of reading live state directly.
type StateFunc func() Snapshot

// Server is the diagnostics HTTP endpoint.
type Server struct {
	server *http.Server
	state  StateFunc
}

// New builds a Server listening on addr, reporting whatever state
// fetches.
func New(addr string, fetch StateFunc) *Server {
	s := &Server{state: fetch}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start blocks serving until the server is shut down.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	return s.server.Shutdown(context.Background())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// SnapshotFrom builds a Snapshot from the live device table, IPC listener
// count, loaded config-entry count, and last reload time, for use inside
// a StateFunc.
func SnapshotFrom(table *device.Table, listeners, configCount int, lastReload time.Time) Snapshot {
	devices := make([]DeviceStatus, 0, table.Len())
	for _, dev := range table.All() {
		ds := DeviceStatus{Path: dev.Path, Name: dev.Name, Bound: dev.Bound != nil}
		if dev.Bound != nil {
			ds.Config = configLabel(dev.Bound)
		}
		devices = append(devices, ds)
	}
	return Snapshot{
		Devices:       devices,
		ConfigCount:   configCount,
		ListenerCount: listeners,
		LastReload:    lastReload,
	}
}

func configLabel(e *remapconfig.Entry) string {
	return e.Path
}
