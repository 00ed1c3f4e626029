package pool

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// selectTimeout is the 3-second poll interval from §4.4, used so the loop
// periodically wakes up to check the hot-reload flag even with no I/O
// ready.
const selectTimeout = 3 * time.Second

// Handler processes one complete frame read into a slot. It returns the
// bytes to send back (nil for no reply, e.g. client disconnect) and
// whether the slot should be freed afterward.
type Handler func(s *Slot) (reply []byte, closeSlot bool)

// ReloadCheck is polled once per loop iteration; when it returns true and
// PendingBytes() == 0 (I5's reload gate), Reload is invoked.
type ReloadCheck func() bool

// Run drives the select loop until stop returns true or select itself
// fails with an error other than EINTR. A fatal recv error only frees the
// slot it happened on and the loop keeps running (the behavior of the
// "hairy" variant).
func (p *Pool) Run(handle Handler, shouldReload ReloadCheck, reload func(), stop func() bool) error {
	tv := unix.NsecToTimeval(selectTimeout.Nanoseconds())
	for {
		if stop != nil && stop() {
			return nil
		}

		if shouldReload != nil && shouldReload() && p.PendingBytes() == 0 {
			reload()
		}

		set, maxFd := p.FdSet()
		timeout := tv
		n, err := unix.Select(maxFd+1, set, nil, nil, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		listenerFd := p.listenerFd()
		if Readable(set, listenerFd) {
			p.AcceptReady()
		}

		for _, s := range p.slots {
			if !s.InUse() || s.fd < 0 || !Readable(set, s.fd) {
				continue
			}
			p.serviceSlot(s, handle)
		}
	}
}

func (p *Pool) serviceSlot(s *Slot, handle Handler) {
	result := s.Recv()
	switch result {
	case RecvPeerClosed:
		p.Free(s)
		return
	case RecvRetryable, RecvOverflow:
		return
	case RecvFatal:
		klog.Warningf("pool: fatal recv error on slot, closing")
		p.Free(s)
		return
	}

	complete, illegal := s.FrameComplete()
	if !complete && !illegal {
		return
	}

	s.state = Responding
	reply, closeSlot := handle(s)
	if len(reply) > 0 {
		if _, err := s.conn.Write(reply); err != nil {
			klog.V(2).Infof("pool: write failed, closing slot: %v", err)
			p.Free(s)
			return
		}
	}
	if closeSlot {
		p.Free(s)
		return
	}
	s.state = Reading
	s.Reset()
}

// RemoteAddr exposes the slot's peer address for a dispatcher that needs
// it (the hostinfo command, §4.5). Returns nil if the slot has no
// connection.
func (s *Slot) RemoteAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}
