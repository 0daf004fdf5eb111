// Package dispatch is the event dispatcher of spec.md §4.6: the single
// entry point that routes each coreevent.Event to the right handler and
// re-arms the timer.
package dispatch

import (
	"github.com/hidmux/keydaemon/internal/coreevent"
	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/devicemgr"
	"github.com/hidmux/keydaemon/internal/eventsource"
	"github.com/hidmux/keydaemon/internal/hidevent"
	"github.com/hidmux/keydaemon/internal/ipcserver"
	"github.com/hidmux/keydaemon/internal/keyboard"
	"github.com/hidmux/keydaemon/internal/vkbd"
)

// Dispatcher holds the one piece of cross-event state spec.md §4.6
// names: lastKbd, the most recently used keyboard instance.
type Dispatcher struct {
	Sink   *vkbd.Sink
	Mgr    *devicemgr.Manager
	IPC    *ipcserver.Server
	Source *eventsource.Source

	ipcFD int

	lastKbd keyboard.Interpreter
}

// New builds a Dispatcher over the daemon's singletons. ipcFD identifies
// the IPC listening socket's descriptor so FDActivity events on it are
// routed to Accept. src registers/unregisters a device's fd with the
// poller as DevAdd/DevRemove events arrive, keeping that bookkeeping out
// of main.
func New(sink *vkbd.Sink, mgr *devicemgr.Manager, ipc *ipcserver.Server, src *eventsource.Source, ipcFD int) *Dispatcher {
	return &Dispatcher{Sink: sink, Mgr: mgr, IPC: ipc, Source: src, ipcFD: ipcFD}
}

// LastKeyboard returns the keyboard instance most recently passed a
// non-tick key event, or nil. Exposed for the invariant-5 test in
// spec.md §8.
func (d *Dispatcher) LastKeyboard() keyboard.Interpreter {
	return d.lastKbd
}

// Handle routes one event and returns the number of milliseconds until
// the next TIMEOUT should fire, exactly per the table in spec.md §4.6.
func (d *Dispatcher) Handle(ev coreevent.Event) int {
	switch ev.Kind {
	case coreevent.Timeout:
		if d.lastKbd == nil {
			return 0
		}
		return d.lastKbd.ProcessKeyEvent(0, false)

	case coreevent.DevEvent:
		if ev.Dev == nil || ev.Dev.Bound == nil {
			return ev.TimeLeft
		}
		return d.handleDevEvent(ev)

	case coreevent.DevAdd:
		if ev.Dev.Name == device.VirtualSinkName {
			return 0
		}
		if err := d.Mgr.AddDevice(ev.Dev); err != nil {
			if d.Mgr.Log != nil {
				d.Mgr.Log.Warnf("failed to add device %s: %v", ev.Dev.Path, err)
			}
			return 0
		}
		if d.Source != nil {
			if err := d.Source.AddDevice(ev.Dev); err != nil && d.Mgr.Log != nil {
				d.Mgr.Log.Warnf("failed to poll device %s: %v", ev.Dev.Path, err)
			}
		}
		return 0

	case coreevent.DevRemove:
		if d.Source != nil {
			d.Source.RemoveDevice(ev.Dev)
		}
		d.Mgr.RemoveDevice(ev.Dev)
		return 0

	case coreevent.FDActivity:
		if ev.FD == d.ipcFD {
			if err := d.IPC.Accept(); err != nil && d.Mgr.Log != nil {
				d.Mgr.Log.Warnf("ipc accept: %v", err)
			}
		}
		return 0
	}

	return 0
}

func (d *Dispatcher) handleDevEvent(ev coreevent.Event) int {
	kbd := ev.Dev.Bound.Kbd

	switch ev.DevEv.Kind {
	case hidevent.Key:
		d.lastKbd = kbd
		return kbd.ProcessKeyEvent(ev.DevEv.Code, ev.DevEv.Pressed)

	case hidevent.MouseMove:
		d.Sink.MouseMove(ev.DevEv.DX, ev.DevEv.DY)
		return ev.TimeLeft

	case hidevent.MouseMoveAbs:
		d.Sink.MouseMoveAbs(ev.DevEv.X, ev.DevEv.Y)
		return ev.TimeLeft

	case hidevent.MouseScroll:
		// Treat scroll as a mouse button so oneshot and the like get
		// cleared, per spec.md §4.6 / original_source's DEV_MOUSE_SCROLL
		// handling.
		kbd.ProcessKeyEvent(keyboard.KeydExternalMouseButton, true)
		kbd.ProcessKeyEvent(keyboard.KeydExternalMouseButton, false)
		d.Sink.MouseScroll(ev.DevEv.DX, ev.DevEv.DY)
		return ev.TimeLeft
	}

	return ev.TimeLeft
}
