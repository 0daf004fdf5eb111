// Command keydaemon is the entry point: it wires together every
// singleton in internal/daemonctx and runs the single-threaded event
// loop until a termination signal arrives. Grounded on the teacher's
// cmd/main.go for flag parsing and config resolution, and on
// original_source/src/daemon.c's run_daemon for the startup steps and
// its atexit(cleanup) for the deferred teardown on signal. Here the
// process priority is set first; build then initializes the virtual
// keyboard, creates the IPC socket, loads configs, and scans devices
// before the loop starts.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/browser"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/hidmux/keydaemon/internal/config"
	"github.com/hidmux/keydaemon/internal/coreevent"
	"github.com/hidmux/keydaemon/internal/daemonctx"
	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/devicemgr"
	"github.com/hidmux/keydaemon/internal/dispatch"
	"github.com/hidmux/keydaemon/internal/eventsource"
	"github.com/hidmux/keydaemon/internal/hotplug"
	"github.com/hidmux/keydaemon/internal/httpstatus"
	"github.com/hidmux/keydaemon/internal/ipcserver"
	"github.com/hidmux/keydaemon/internal/logging"
	"github.com/hidmux/keydaemon/internal/remapconfig"
	"github.com/hidmux/keydaemon/internal/vkbd"
)

func main() {
	configPath := flag.String("config", "/etc/keydaemon/keydaemon.toml", "path to the daemon's own settings file")
	openStatus := flag.Bool("open-status", false, "open the diagnostics status page in a browser once it's listening")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keydaemon: failed to load %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Daemon.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keydaemon: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, cfg.Daemon.Nice); err != nil {
		log.Warnf("failed to set nice value %d: %v", cfg.Daemon.Nice, err)
	}

	dctx, err := build(cfg, log)
	if err != nil {
		log.Errorf("startup failed: %v", err)
		os.Exit(1)
	}
	defer dctx.Close()

	var statusSrv *httpstatus.Server
	if cfg.Diagnostics.StatusAddr != "" {
		statusSrv = httpstatus.New(cfg.Diagnostics.StatusAddr, dctx.Status.Fetch)
		go func() {
			if err := statusSrv.Start(); err != nil {
				log.Warnf("status server stopped: %v", err)
			}
		}()
		if cfg.Diagnostics.AutoOpen || *openStatus {
			url := "http://" + cfg.Diagnostics.StatusAddr + "/status"
			if err := browser.OpenURL(url); err != nil {
				log.Warnf("failed to open browser at %s: %v", url, err)
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %s, shutting down", sig)
		if statusSrv != nil {
			statusSrv.Stop()
		}
		dctx.Close()
		os.Exit(0)
	}()

	log.Infof("keydaemon listening on %s, configs from %s", cfg.Daemon.SocketPath, cfg.Daemon.ConfigDir)
	run(dctx, log)
}

// build assembles every singleton in daemonctx.Context, in this order:
// virtual sink, device table and registry, IPC socket, initial config
// load, event source and watched fds, then an initial device scan.
func build(cfg *config.Config, log *zap.SugaredLogger) (*daemonctx.Context, error) {
	transport, err := vkbd.NewUinputTransport(device.VirtualSinkName)
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	sink := vkbd.NewSink(transport)

	table := device.NewTable()
	registry := remapconfig.New()

	mgr := devicemgr.New(table, registry, sink, cfg.Daemon.ConfigDir, log)

	if err := os.MkdirAll(filepath.Dir(cfg.Daemon.SocketPath), 0755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	_ = os.Remove(cfg.Daemon.SocketPath)

	ln, err := ipcserver.Listen(cfg.Daemon.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("create ipc socket (another instance already running?): %w", err)
	}

	var ipc *ipcserver.Server
	emit := func(code uint16, pressed bool) { sink.SendKey(code, pressed) }
	layer := func(name string, active bool) {
		if ipc != nil {
			ipc.Broadcast(name, active)
		}
	}

	if err := registry.Load(cfg.Daemon.ConfigDir, emit, layer); err != nil {
		return nil, fmt.Errorf("load configs from %s: %w", cfg.Daemon.ConfigDir, err)
	}
	mgr.MarkLoaded()

	// A RELOAD that fails to parse is the fatal case of spec.md §7 ("if
	// any file fails to parse, the daemon aborts") — original_source's
	// IPC_RELOAD handler calls die() rather than replying FAIL, so a bad
	// edit to a live config takes the whole process down instead of
	// leaving it running against a stale or partial registry.
	reload := func() error {
		if err := mgr.Reload(emit, layer); err != nil {
			log.Fatalf("config reload failed, aborting: %v", err)
		}
		return nil
	}
	ipc = ipcserver.New(ln, registry, reload, log)

	src, err := eventsource.New()
	if err != nil {
		return nil, fmt.Errorf("create event source: %w", err)
	}

	ipcFD, err := listenerFD(ln)
	if err != nil {
		return nil, fmt.Errorf("extract ipc socket fd: %w", err)
	}
	if err := src.Watch(ipcFD); err != nil {
		return nil, fmt.Errorf("watch ipc socket: %w", err)
	}

	hp, err := hotplug.New()
	if err != nil {
		return nil, fmt.Errorf("create hotplug watcher: %w", err)
	}
	if err := src.Watch(hp.FD()); err != nil {
		return nil, fmt.Errorf("watch hotplug fd: %w", err)
	}

	status, err := httpstatus.NewBridge()
	if err != nil {
		return nil, fmt.Errorf("create status bridge: %w", err)
	}
	if err := src.Watch(status.WakeFD()); err != nil {
		return nil, fmt.Errorf("watch status bridge fd: %w", err)
	}

	disp := dispatch.New(sink, mgr, ipc, src, ipcFD)

	added, _ := hp.Rescan()
	for _, dev := range added {
		disp.Handle(coreevent.Event{Kind: coreevent.DevAdd, Dev: dev})
	}

	return &daemonctx.Context{
		Table:    table,
		Registry: registry,
		Sink:     sink,
		Manager:  mgr,
		IPC:      ipc,
		Source:   src,
		Hotplug:  hp,
		Dispatch: disp,
		Status:   status,
	}, nil
}

// run is the loop from original_source's evloop: block on the next
// event, dispatch it, repeat until the process is signaled to exit.
func run(dctx *daemonctx.Context, log *zap.SugaredLogger) {
	hotplugFD := dctx.Hotplug.FD()
	statusFD := dctx.Status.WakeFD()

	handler := func(ev coreevent.Event) int {
		switch {
		case ev.Kind == coreevent.FDActivity && ev.FD == hotplugFD:
			dctx.Hotplug.Drain()
			added, removed := dctx.Hotplug.Rescan()
			for _, dev := range removed {
				dctx.Dispatch.Handle(coreevent.Event{Kind: coreevent.DevRemove, Dev: dev})
			}
			for _, dev := range added {
				dctx.Dispatch.Handle(coreevent.Event{Kind: coreevent.DevAdd, Dev: dev})
			}
			return 0

		case ev.Kind == coreevent.FDActivity && ev.FD == statusFD:
			dctx.Status.Drain(func() httpstatus.Snapshot {
				return httpstatus.SnapshotFrom(dctx.Table, dctx.IPC.ListenerCount(), len(dctx.Registry.Entries()), dctx.Manager.LastReload)
			})
			return 0
		}
		return dctx.Dispatch.Handle(ev)
	}

	for {
		if err := dctx.Source.Next(handler); err != nil {
			log.Errorf("event loop: %v", err)
		}
	}
}

// listenerFD extracts the raw descriptor behind a Unix-domain listener
// for registration with the epoll-based event source. The dup'd file is
// intentionally leaked for the process's lifetime: it must outlive the
// listener for the descriptor to stay valid, and the daemon only exits
// via os.Exit.
func listenerFD(ln net.Listener) (int, error) {
	unixLn, ok := ln.(*net.UnixListener)
	if !ok {
		return -1, fmt.Errorf("listener is %T, not *net.UnixListener", ln)
	}
	f, err := unixLn.File()
	if err != nil {
		return -1, err
	}
	return int(f.Fd()), nil
}
