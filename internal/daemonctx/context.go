// Package daemonctx bundles the daemon's long-lived singletons into one
// struct instead of process globals, per the design note in spec.md §9:
// the sink, registry, device table, IPC server, and hotplug watcher all
// live for the process's lifetime and are threaded explicitly into
// dispatch.Dispatcher and devicemgr.Manager rather than referenced as
// package-level state.
package daemonctx

import (
	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/devicemgr"
	"github.com/hidmux/keydaemon/internal/dispatch"
	"github.com/hidmux/keydaemon/internal/eventsource"
	"github.com/hidmux/keydaemon/internal/hotplug"
	"github.com/hidmux/keydaemon/internal/httpstatus"
	"github.com/hidmux/keydaemon/internal/ipcserver"
	"github.com/hidmux/keydaemon/internal/remapconfig"
	"github.com/hidmux/keydaemon/internal/vkbd"
)

// Context holds every singleton the running daemon needs, wired
// together once at startup by cmd/keydaemon.
type Context struct {
	Table    *device.Table
	Registry *remapconfig.Registry
	Sink     *vkbd.Sink
	Manager  *devicemgr.Manager
	IPC      *ipcserver.Server
	Source   *eventsource.Source
	Hotplug  *hotplug.Watcher
	Dispatch *dispatch.Dispatcher
	Status   *httpstatus.Bridge
}

// Close tears down everything that owns a file descriptor: the IPC
// server, status bridge, hotplug watcher, event source, virtual sink,
// and then every device still in the table.
func (c *Context) Close() error {
	if c.IPC != nil {
		c.IPC.Close()
	}
	if c.Status != nil {
		c.Status.Close()
	}
	if c.Hotplug != nil {
		c.Hotplug.Close()
	}
	if c.Source != nil {
		c.Source.Close()
	}
	if c.Sink != nil {
		c.Sink.Close()
	}
	for _, dev := range c.Table.All() {
		dev.Raw.Close()
	}
	return nil
}
