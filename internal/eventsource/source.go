// Package eventsource is the unified event source of spec.md §4.1: a
// blocking Next call multiplexing device file descriptors, a timer, and
// externally registered descriptors (the IPC socket, the hotplug
// watcher) through a single epoll instance, exactly the "no concurrency
// inside the loop" model spec.md §5 requires.
package eventsource

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hidmux/keydaemon/internal/coreevent"
	"github.com/hidmux/keydaemon/internal/device"
)

// Source owns the epoll instance and the fd→device registration table.
type Source struct {
	epfd    int
	timerfd int

	devices map[int]*device.Device
	extra   map[int]bool // externally registered fds (IPC socket, hotplug watcher)
}

// New creates the epoll instance and an associated timerfd.
func New() (*Source, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("eventsource: epoll_create1: %w", err)
	}

	timerfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, 0)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventsource: timerfd_create: %w", err)
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, timerfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(timerfd)}); err != nil {
		unix.Close(timerfd)
		unix.Close(epfd)
		return nil, fmt.Errorf("eventsource: register timerfd: %w", err)
	}

	return &Source{
		epfd:    epfd,
		timerfd: timerfd,
		devices: make(map[int]*device.Device),
		extra:   make(map[int]bool),
	}, nil
}

// Close releases the epoll instance and timerfd. Registered device fds
// are the caller's responsibility to close.
func (s *Source) Close() error {
	unix.Close(s.timerfd)
	return unix.Close(s.epfd)
}

// AddDevice registers dev's raw fd for readability notifications.
func (s *Source) AddDevice(dev *device.Device) error {
	fd := dev.Raw.Fd()
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
		return fmt.Errorf("eventsource: register device fd %d: %w", fd, err)
	}
	s.devices[fd] = dev
	return nil
}

// RemoveDevice unregisters dev's raw fd.
func (s *Source) RemoveDevice(dev *device.Device) {
	fd := dev.Raw.Fd()
	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(s.devices, fd)
}

// Watch registers an externally-owned fd (the IPC socket, an inotify
// watcher fd) for FD_ACTIVITY notifications.
func (s *Source) Watch(fd int) error {
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
		return fmt.Errorf("eventsource: watch fd %d: %w", fd, err)
	}
	s.extra[fd] = true
	return nil
}

func (s *Source) arm(delayMs int) error {
	if delayMs <= 0 {
		return unix.TimerfdSettime(s.timerfd, 0, &unix.ItimerSpec{}, nil)
	}
	spec := &unix.ItimerSpec{
		Value: unix.NsecToTimespec(int64(delayMs) * int64(time.Millisecond)),
	}
	return unix.TimerfdSettime(s.timerfd, 0, spec, nil)
}

// timeLeftMs reads the timer's remaining time via timerfd_gettime, so an
// event that isn't itself the timeout can report how much of an
// in-flight timeout is left without disturbing it. 0 if the timer is
// disarmed.
func (s *Source) timeLeftMs() int {
	var cur unix.ItimerSpec
	if err := unix.TimerfdGettime(s.timerfd, &cur); err != nil {
		return 0
	}
	remaining := time.Duration(cur.Value.Sec)*time.Second + time.Duration(cur.Value.Nsec)*time.Nanosecond
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Millisecond)
}

// Next blocks until one event is ready, translates it, and invokes
// handler. handler's return value re-arms (or disarms, if 0) the timer
// exactly as spec.md §4.1 specifies. Next handles exactly one epoll
// event per call; callers loop.
func (s *Source) Next(handler func(coreevent.Event) int) error {
	var events [1]unix.EpollEvent

	n, err := unix.EpollWait(s.epfd, events[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("eventsource: epoll_wait: %w", err)
	}
	if n == 0 {
		return nil
	}

	fd := int(events[0].Fd)

	switch {
	case fd == s.timerfd:
		var buf [8]byte
		_, _ = unix.Read(s.timerfd, buf[:])
		return s.arm(handler(coreevent.Event{Kind: coreevent.Timeout}))

	case s.devices[fd] != nil:
		dev := s.devices[fd]
		// EV_SYN and other event types the core doesn't care about come
		// back as ok==false; RawDevice.ReadEvent's contract is to read
		// again rather than have the caller invent a zero-value event
		// for them, which would otherwise look exactly like a genuine
		// KEY{code:0,pressed:false} and corrupt last_kbd attribution.
		for {
			devEv, ok, rerr := dev.Raw.ReadEvent()
			if rerr != nil {
				return nil
			}
			if !ok {
				continue
			}
			return s.arm(handler(coreevent.Event{Kind: coreevent.DevEvent, Dev: dev, DevEv: devEv, TimeLeft: s.timeLeftMs()}))
		}

	case s.extra[fd]:
		return s.arm(handler(coreevent.Event{Kind: coreevent.FDActivity, FD: fd, TimeLeft: s.timeLeftMs()}))
	}

	return nil
}
