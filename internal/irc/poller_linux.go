//go:build linux

package irc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller is a level-triggered epoll set plus an eventfd used to
// interrupt EpollWait from other goroutines.
type epollPoller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to create epoll set: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("failed to create wake handle: %w", err)
	}
	p := &epollPoller{epfd: epfd, wakefd: wakefd}
	if err := p.ctl(unix.EPOLL_CTL_ADD, wakefd, unix.EPOLLIN); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to watch wake handle: %w", err)
	}
	return p, nil
}

func (p *epollPoller) ctl(op, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

func (p *epollPoller) Add(fd int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN)
}

func (p *epollPoller) Watch(fd int, write bool) error {
	var events uint32 = unix.EPOLLIN
	if write {
		events |= unix.EPOLLOUT
	}
	return p.ctl(unix.EPOLL_CTL_MOD, fd, events)
}

func (p *epollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks with no timeout. Wake-ups through the eventfd are drained
// and not reported.
func (p *epollPoller) Wait(events []Event) (int, error) {
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]

	n, err := unix.EpollWait(p.epfd, raw, -1)
	if errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count := 0
	for _, ev := range raw[:n] {
		fd := int(ev.Fd)
		if fd == p.wakefd {
			var buf [8]byte
			unix.Read(p.wakefd, buf[:])
			continue
		}
		events[count] = Event{
			FD:       fd,
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			HangUp:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		}
		count++
	}
	return count, nil
}

var wakeValue = [8]byte{1}

func (p *epollPoller) Wake() error {
	_, err := unix.Write(p.wakefd, wakeValue[:])
	if errors.Is(err, unix.EAGAIN) {
		// counter is saturated, a wake-up is already pending
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	werr := unix.Close(p.wakefd)
	if err := unix.Close(p.epfd); err != nil {
		return err
	}
	return werr
}
