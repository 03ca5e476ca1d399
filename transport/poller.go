//go:build linux

package transport

import (
	"encoding/binary"
	"syscall"
)

const (
	EventRead  = syscall.EPOLLIN | syscall.EPOLLRDHUP
	EventWrite = syscall.EPOLLOUT
)

// Poller waits for readiness on a set of file descriptors. It can be woken
// from any goroutine with Wake.
type Poller struct {
	fd     int
	wakeFd int
}

func MakePoller() (*Poller, error) {
	var (
		poller Poller
		err    error
	)

	// Open an epoll fd
	// https://man7.org/linux/man-pages/man2/epoll_create.2.html
	poller.fd, err = syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	// https://man7.org/linux/man-pages/man2/eventfd.2.html
	// EFD_NONBLOCK and EFD_CLOEXEC share their values with O_NONBLOCK and O_CLOEXEC
	r0, _, e0 := syscall.Syscall(syscall.SYS_EVENTFD2, 0, syscall.O_NONBLOCK|syscall.O_CLOEXEC, 0)
	if e0 != 0 {
		syscall.Close(poller.fd)
		return nil, e0
	}
	poller.wakeFd = int(r0)

	// Only register for reads on the wakeFd, an eventfd is always writable
	// https://man7.org/linux/man-pages/man2/epoll_ctl.2.html
	if err := poller.Add(poller.wakeFd, syscall.EPOLLIN); err != nil {
		poller.Close()
		return nil, err
	}

	return &poller, nil
}

func (p *Poller) Add(fd int, events uint32) error {
	return p.ctl(syscall.EPOLL_CTL_ADD, fd, events)
}

func (p *Poller) Modify(fd int, events uint32) error {
	return p.ctl(syscall.EPOLL_CTL_MOD, fd, events)
}

func (p *Poller) Remove(fd int) error {
	return syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_DEL, fd, nil)
}

func (p *Poller) ctl(op int, fd int, events uint32) error {
	event := &syscall.EpollEvent{Fd: int32(fd), Events: events}
	return syscall.EpollCtl(p.fd, op, fd, event)
}

// Wake interrupts a concurrent, or the next, Wait. It is safe to call from
// any goroutine.
func (p *Poller) Wake() error {
	var one [8]byte
	binary.LittleEndian.PutUint64(one[:], 1)

	_, err := syscall.Write(p.wakeFd, one[:])
	if err == syscall.EAGAIN {
		// The counter is saturated, a wake up is already pending
		return nil
	}

	return err
}

// Wait blocks until at least one fd is ready, Wake is called, or timeoutMs
// elapses (-1 waits forever). Wake ups are consumed and not included in
// the returned events.
func (p *Poller) Wait(events []syscall.EpollEvent, timeoutMs int) ([]syscall.EpollEvent, error) {
	n, err := syscall.EpollWait(p.fd, events, timeoutMs)
	if err != nil {
		if err == syscall.EINTR {
			return events[:0], nil
		}
		return nil, err
	}

	ready := events[:0]
	for _, ev := range events[:n] {
		if int(ev.Fd) == p.wakeFd {
			p.drainWake()
			continue
		}

		ready = append(ready, ev)
	}

	return ready, nil
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := syscall.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (p *Poller) Close() error {
	if err := syscall.Close(p.wakeFd); err != nil {
		return err
	}

	return syscall.Close(p.fd)
}
