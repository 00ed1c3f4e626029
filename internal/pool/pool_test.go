package pool

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func dialedPair(t *testing.T) (client net.Conn, serverSlot *Slot) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	serverConn := <-accepted
	t.Cleanup(func() { serverConn.Close() })

	return client, &Slot{conn: serverConn, fd: -1, state: Reading}
}

func TestRecvAdvancesReadProcessIndex(t *testing.T) {
	client, slot := dialedPair(t)

	_, err := client.Write([]byte("abc"))
	require.NoError(t, err)

	result := slot.Recv()
	require.Equal(t, RecvProgress, result)
	require.Equal(t, 3, slot.ReadProcessIndex)
	require.Equal(t, "abc", string(slot.ReadBuf[:3]))
}

func TestFrameCompleteOnSpace(t *testing.T) {
	client, slot := dialedPair(t)
	_, err := client.Write([]byte("1headword "))
	require.NoError(t, err)

	require.Equal(t, RecvProgress, slot.Recv())
	complete, illegal := slot.FrameComplete()
	require.True(t, complete)
	require.False(t, illegal)
}

func TestFrameIllegalOnBareNewline(t *testing.T) {
	client, slot := dialedPair(t)
	_, err := client.Write([]byte("1garbage\n"))
	require.NoError(t, err)

	require.Equal(t, RecvProgress, slot.Recv())
	complete, illegal := slot.FrameComplete()
	require.False(t, complete)
	require.True(t, illegal)
}

func TestFrameCompleteImmediatelyOnBareSingleByteCommand(t *testing.T) {
	for _, cmd := range []byte{'0', '2', '3'} {
		client, slot := dialedPair(t)
		_, err := client.Write([]byte{cmd})
		require.NoError(t, err)

		require.Equal(t, RecvProgress, slot.Recv())
		complete, illegal := slot.FrameComplete()
		require.Truef(t, complete, "command %q should complete without a trailing space/newline", cmd)
		require.False(t, illegal)
	}
}

func TestFrameIllegalImmediatelyOnUnknownCommandByte(t *testing.T) {
	client, slot := dialedPair(t)
	_, err := client.Write([]byte{'Z'})
	require.NoError(t, err)

	require.Equal(t, RecvProgress, slot.Recv())
	complete, illegal := slot.FrameComplete()
	require.False(t, complete)
	require.True(t, illegal)
}

func TestFrameIncompleteWithoutTerminator(t *testing.T) {
	client, slot := dialedPair(t)
	_, err := client.Write([]byte("1nospaceyet"))
	require.NoError(t, err)

	require.Equal(t, RecvProgress, slot.Recv())
	complete, illegal := slot.FrameComplete()
	require.False(t, complete)
	require.False(t, illegal)
}

func TestRecvPeerClosed(t *testing.T) {
	client, slot := dialedPair(t)
	client.Close()

	// give the close a moment to propagate
	time.Sleep(10 * time.Millisecond)
	result := slot.Recv()
	require.Equal(t, RecvPeerClosed, result)
}

func TestReadBufMarginUntouchedByRecv(t *testing.T) {
	client, slot := dialedPair(t)
	big := make([]byte, ReadBufSize)
	for i := range big {
		big[i] = 'x'
	}
	_, err := client.Write(big)
	require.NoError(t, err)

	for slot.ReadProcessIndex < ReadBufSize {
		res := slot.Recv()
		if res != RecvProgress {
			break
		}
	}

	for i := ReadBufSize; i < ReadBufCap; i++ {
		require.Equalf(t, byte(0), slot.ReadBuf[i], "canary byte %d must be untouched", i)
	}
}

func TestResetClearsFramingStateNotCanary(t *testing.T) {
	slot := &Slot{state: Reading}
	slot.ReadBuf[ReadBufSize] = 0xAB
	slot.sawSpace = true
	slot.ReadProcessIndex = 12

	slot.Reset()

	require.Equal(t, 0, slot.ReadProcessIndex)
	require.False(t, slot.sawSpace)
	require.Equal(t, byte(0xAB), slot.ReadBuf[ReadBufSize])
}

func TestPoolPendingBytesSumsInUseSlots(t *testing.T) {
	p := &Pool{slots: []*Slot{
		{state: Reading, ReadProcessIndex: 3},
		{state: Free, ReadProcessIndex: 0},
		{state: Reading, ReadProcessIndex: 7},
	}}
	require.Equal(t, 10, p.PendingBytes())
}
