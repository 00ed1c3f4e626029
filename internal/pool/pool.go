// Package pool implements the connection pool (§4.4): a fixed set of
// slots accepted from one listener, read via a single-threaded
// cooperative select loop so that no two slots are ever touched
// concurrently — the same single-threaded model the original server used,
// built here on golang.org/x/sys/unix's raw select(2) wrapper instead of a
// goroutine-per-connection design, to keep the "no shared mutable state
// across connections" invariant structural rather than just documented.
package pool

import (
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// MidasiSize and Term mirror internal/dictionary.MidasiSize and the
// protocol's trailing terminator allowance; ReadBufSize is the nominal
// frame region a request must fit in, and ReadBufMargin is the canary
// region past it that must never be written (T3).
const (
	MidasiSize    = 510
	Term          = 5
	ReadBufSize   = MidasiSize + Term // 515
	ReadBufMargin = 4
	ReadBufCap    = ReadBufSize + ReadBufMargin // 519, invariant P2
)

// State is a slot's lifecycle stage.
type State int

const (
	Free State = iota
	Reading
	Responding
)

// Slot is one pooled connection: its raw file descriptor (for select),
// the net.Conn wrapping it (for recv/send), and its read buffer.
type Slot struct {
	conn  net.Conn
	fd    int
	state State

	ReadBuf          [ReadBufCap]byte
	ReadProcessIndex int
	sawSpace         bool
	illegal          bool
	immediate        bool
}

// InUse reports whether the slot currently owns a connection.
func (s *Slot) InUse() bool {
	return s.state != Free
}

// Reset clears the slot's framing state without touching the 4-byte canary
// margin past ReadBufSize (T3).
func (s *Slot) Reset() {
	s.ReadProcessIndex = 0
	s.sawSpace = false
	s.illegal = false
	s.immediate = false
}

func (s *Slot) free() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = nil
	s.fd = -1
	s.state = Free
	s.Reset()
}

// FrameComplete reports whether the slot's buffer currently holds one
// complete request per the framing rule of §4.4: a space or newline
// terminates; a newline with no preceding space is illegal-protocol. The
// bare single-byte commands ('0', '2', '3') and any unrecognized command
// byte complete on the first recv, per the original's
// switch (*(work_+i)->read_buffer) dispatch at read_process_index == 0 —
// they never wait for a following space or newline. Only '1', '4', and
// 'c' (completion's alias) carry an argument and need the space/newline
// framing below.
func (s *Slot) FrameComplete() (complete bool, illegalProtocol bool) {
	return !s.illegal && (s.sawSpace || s.immediate), s.illegal
}

func (s *Slot) scanFraming(newBytes []byte) {
	if len(newBytes) == 0 {
		return
	}
	if s.ReadProcessIndex == 0 {
		switch newBytes[0] {
		case '0', '2', '3':
			s.immediate = true
			return
		case '1', '4', 'c':
			// carries an argument; fall through to space/newline framing.
		default:
			s.illegal = true
			return
		}
	}
	for _, b := range newBytes {
		switch b {
		case ' ':
			s.sawSpace = true
		case '\n':
			if !s.sawSpace {
				s.illegal = true
			}
			return
		}
		if s.sawSpace {
			return
		}
	}
}

// RecvResult classifies the outcome of one recv attempt on a slot.
type RecvResult int

const (
	RecvProgress RecvResult = iota
	RecvPeerClosed
	RecvRetryable
	RecvFatal
	RecvOverflow
)

var retryableErrno = map[error]bool{
	syscall.EAGAIN:       true,
	syscall.EINTR:        true,
	syscall.ECONNABORTED: true,
	syscall.ECONNREFUSED: true,
	syscall.ECONNRESET:   true,
}

// Recv reads into ReadBuf at ReadProcessIndex, up to ReadBufSize -
// ReadProcessIndex bytes, and classifies the result per §4.4.
func (s *Slot) Recv() RecvResult {
	if s.ReadProcessIndex > ReadBufSize {
		s.Reset()
		return RecvOverflow
	}
	room := ReadBufSize - s.ReadProcessIndex
	if room <= 0 {
		s.Reset()
		return RecvOverflow
	}

	n, err := s.conn.Read(s.ReadBuf[s.ReadProcessIndex : s.ReadProcessIndex+room])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return RecvPeerClosed
		}
		var errno syscall.Errno
		if errors.As(err, &errno) && retryableErrno[errno] {
			s.Reset()
			return RecvRetryable
		}
		return RecvFatal
	}
	if n == 0 {
		return RecvPeerClosed
	}

	s.scanFraming(s.ReadBuf[s.ReadProcessIndex : s.ReadProcessIndex+n])
	s.ReadProcessIndex += n
	if s.ReadProcessIndex > ReadBufSize {
		s.Reset()
		return RecvOverflow
	}
	return RecvProgress
}

// Pool owns a listener and a fixed number of slots, all driven by a single
// goroutine calling Run (see §5's single-threaded model).
type Pool struct {
	listener *net.TCPListener
	slots    []*Slot

	// OnAccept, if set, is called once for every connection actually
	// accepted into a slot (not for the dummy-accept-and-drop path). Used
	// by internal/skkserver to feed a Prometheus counter without this
	// package needing to know about metrics.
	OnAccept func()
}

// New creates a pool of size slots around an already-bound TCP listener.
func New(listener *net.TCPListener, size int) *Pool {
	p := &Pool{listener: listener, slots: make([]*Slot, size)}
	for i := range p.slots {
		p.slots[i] = &Slot{fd: -1}
	}
	return p
}

// Slots returns every slot, for iteration by the dispatcher.
func (p *Pool) Slots() []*Slot {
	return p.slots
}

// PendingBytes sums ReadProcessIndex across every in-use slot — the reload
// gate of I5/§5 uses this to decide whether a hot reload is safe right now.
func (p *Pool) PendingBytes() int {
	total := 0
	for _, s := range p.slots {
		if s.InUse() {
			total += s.ReadProcessIndex
		}
	}
	return total
}

// AcceptReady is called when the listener's fd is readable. It accepts one
// connection per call into the first FREE slot; further pending
// connections are accepted on later loop iterations. If every slot is
// busy, it still accepts one connection and immediately closes it (the
// "dummy accept" of §4.4), so the listener's ready event doesn't spin the
// select loop.
func (p *Pool) AcceptReady() {
	free := p.freeSlot()
	if free == nil {
		p.dummyAccept()
		return
	}
	conn, err := p.listener.AcceptTCP()
	if err != nil {
		return
	}
	rawConn, err := conn.SyscallConn()
	if err != nil {
		klog.Warningf("pool: accepted connection has no raw fd, dropping: %v", err)
		conn.Close()
		return
	}
	var fd int
	rawConn.Control(func(descriptor uintptr) { fd = int(descriptor) })

	free.conn = conn
	free.fd = fd
	free.state = Reading
	free.Reset()

	if p.OnAccept != nil {
		p.OnAccept()
	}
}

func (p *Pool) freeSlot() *Slot {
	for _, s := range p.slots {
		if !s.InUse() {
			return s
		}
	}
	return nil
}

func (p *Pool) dummyAccept() {
	conn, err := p.listener.Accept()
	if err != nil {
		return
	}
	conn.Close()
}

// FdSet builds an unix.FdSet of the listener plus every in-use slot's fd,
// and returns the highest fd present (nfds - 1 for syscall.Select).
func (p *Pool) FdSet() (set *unix.FdSet, maxFd int) {
	set = &unix.FdSet{}
	listenerFd := p.listenerFd()
	fdSetBit(set, listenerFd)
	maxFd = listenerFd
	for _, s := range p.slots {
		if s.InUse() && s.fd >= 0 {
			fdSetBit(set, s.fd)
			if s.fd > maxFd {
				maxFd = s.fd
			}
		}
	}
	return set, maxFd
}

func (p *Pool) listenerFd() int {
	rawConn, err := p.listener.SyscallConn()
	if err != nil {
		return -1
	}
	var fd int
	rawConn.Control(func(descriptor uintptr) { fd = int(descriptor) })
	return fd
}

func fdSetBit(set *unix.FdSet, fd int) {
	if fd < 0 {
		return
	}
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	if fd < 0 {
		return false
	}
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// Readable reports whether fd was set in a select result set.
func Readable(set *unix.FdSet, fd int) bool {
	return fdIsSet(set, fd)
}

// Free returns a slot to FREE and closes its connection.
func (p *Pool) Free(s *Slot) {
	s.free()
}
