package network

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmannen/arsdk-go/internal/netal"
)

// fakeTransport lets tests control exactly which sends succeed, drop, or
// echo back a reply frame, without opening real sockets.
type fakeTransport struct {
	mu        sync.Mutex
	sends     []sentFrame
	failAfter int // Send calls at or beyond this index return false; -1 = never fail
	onSend    func(dataType netal.DataType, buffer, seq uint8, payload []byte)
}

type sentFrame struct {
	dataType netal.DataType
	buffer   uint8
	seq      uint8
	payload  []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failAfter: -1}
}

func (f *fakeTransport) Send(dataType netal.DataType, buffer uint8, seq uint8, payload []byte) bool {
	f.mu.Lock()
	idx := len(f.sends)
	f.sends = append(f.sends, sentFrame{dataType, buffer, seq, append([]byte(nil), payload...)})
	cb := f.onSend
	f.mu.Unlock()

	if cb != nil {
		cb(dataType, buffer, seq, payload)
	}

	if f.failAfter >= 0 && idx >= f.failAfter {
		return false
	}
	return true
}

func (f *fakeTransport) Stop() {}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type recordingListener struct {
	mu           sync.Mutex
	data         []receivedData
	disconnected int
}

type receivedData struct {
	buffer  uint8
	payload []byte
}

func (l *recordingListener) OnData(buffer uint8, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, receivedData{buffer, append([]byte(nil), payload...)})
}

func (l *recordingListener) OnDisconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected++
}

func (l *recordingListener) snapshot() []receivedData {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]receivedData(nil), l.data...)
}

func TestSendSequenceIsMonotoneModulo256(t *testing.T) {
	ft := newFakeTransport()
	ch := New(ft, []uint8{10}, nil, &recordingListener{}, nil)

	var lastSeq uint8
	var first = true
	for i := 0; i < 300; i++ {
		status, err := ch.Send(10, []byte{1}, netal.Data, 10*time.Millisecond, 1)
		require.NoError(t, err)
		require.Equal(t, OK, status)

		seq := ft.sends[len(ft.sends)-1].seq
		if !first {
			assert.Equal(t, lastSeq+1, seq, "seq must be (last+1) mod 256")
		}
		lastSeq = seq
		first = false
	}
	// First seq handed out for a fresh buffer must be 0.
	assert.Equal(t, uint8(0), ft.sends[0].seq)
}

func TestSendErrorsOnUndeclaredBuffer(t *testing.T) {
	ft := newFakeTransport()
	ch := New(ft, []uint8{10}, nil, &recordingListener{}, nil)

	status, err := ch.Send(99, []byte{1}, netal.Data, 10*time.Millisecond, 1)
	assert.Equal(t, ErrorStatus, status)
	assert.Error(t, err)
}

func TestSendWithAckRetriesUntilAckArrives(t *testing.T) {
	ft := newFakeTransport()
	listener := &recordingListener{}
	ch := New(ft, []uint8{11}, nil, listener, nil)

	// Drop the first 2 sends (simulate lost datagrams on the wire); the
	// 3rd succeeds and we immediately simulate the drone's ack arriving.
	attempts := 0
	ft.onSend = func(dataType netal.DataType, buffer, seq uint8, payload []byte) {
		attempts++
		if attempts < 3 {
			return // simulate silent drop: no ack will ever arrive for these tries
		}
		go ch.OnData(netal.Ack, buffer+128, 0, []byte{seq})
	}

	status, err := ch.Send(11, []byte{0xAB}, netal.DataWithAck, 50*time.Millisecond, 5)
	require.NoError(t, err)
	assert.Equal(t, OK, status)
	assert.Equal(t, 3, ft.sentCount())
}

func TestSendWithAckTimesOutWhenNoAckArrives(t *testing.T) {
	ft := newFakeTransport()
	ch := New(ft, []uint8{11}, nil, &recordingListener{}, nil)

	status, err := ch.Send(11, []byte{1}, netal.DataWithAck, 10*time.Millisecond, 3)
	assert.Equal(t, Timeout, status)
	assert.NoError(t, err)
	assert.Equal(t, 3, ft.sentCount())
}

func TestSendReturnsErrorOnTransportFailureWithoutFurtherRetries(t *testing.T) {
	ft := newFakeTransport()
	ft.failAfter = 0 // every send fails
	ch := New(ft, []uint8{10}, nil, &recordingListener{}, nil)

	status, err := ch.Send(10, []byte{1}, netal.Data, 10*time.Millisecond, 5)
	assert.Equal(t, ErrorStatus, status)
	assert.Error(t, err)
	assert.Equal(t, 1, ft.sentCount(), "a transport failure must not be retried")
}

func TestAcceptanceFilterSequenceScenarios(t *testing.T) {
	cases := []struct {
		name     string
		seedLast uint8 // recv sequence already on record before the table's seqs arrive
		seqs     []uint8
		accepted []bool
	}{
		{
			// last=249 is already established (e.g. from an earlier frame);
			// 252 -> 0 crosses the wrap and is still a +4 forward step.
			name:     "wrap across 255 to 0 all accepted",
			seedLast: 249,
			seqs:     []uint8{250, 251, 252, 0, 1},
			accepted: []bool{true, true, true, true, true},
		},
		{
			name:     "regression within tolerance rejected",
			seedLast: 255,
			seqs:     []uint8{5, 4, 3},
			accepted: []bool{true, false, false},
		},
		{
			name:     "large regression treated as wrap and accepted",
			seedLast: 255,
			seqs:     []uint8{5, 250},
			accepted: []bool{true, true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := newFakeTransport()
			listener := &recordingListener{}
			ch := New(ft, nil, []uint8{126}, listener, nil)
			ch.recvSeq[126] = tc.seedLast

			var wantDelivered []uint8
			for i, seq := range tc.seqs {
				ch.OnData(netal.Data, 126, seq, []byte{seq})
				if tc.accepted[i] {
					wantDelivered = append(wantDelivered, seq)
				}
			}

			var gotDelivered []uint8
			for _, d := range listener.snapshot() {
				gotDelivered = append(gotDelivered, d.payload[0])
			}
			assert.Equal(t, wantDelivered, gotDelivered)
		})
	}
}

func TestPingOnBufferZeroTriggersPongOnBufferOne(t *testing.T) {
	ft := newFakeTransport()
	ch := New(ft, nil, nil, &recordingListener{}, nil)

	payload := []byte{1, 2, 3, 4}
	ch.OnData(netal.Data, 0, 5, payload)

	require.Len(t, ft.sends, 1)
	pong := ft.sends[0]
	assert.Equal(t, netal.Data, pong.dataType)
	assert.Equal(t, uint8(1), pong.buffer)
	assert.Equal(t, uint8(0), pong.seq, "first seq handed out on a fresh buffer is 0")
	assert.Equal(t, payload, pong.payload)
}

func TestDataWithAckOnRecvBufferSendsAckReply(t *testing.T) {
	ft := newFakeTransport()
	listener := &recordingListener{}
	ch := New(ft, nil, []uint8{127}, listener, nil)

	ch.OnData(netal.DataWithAck, 127, 42, []byte{9, 9})

	require.Len(t, ft.sends, 1)
	ack := ft.sends[0]
	assert.Equal(t, netal.Ack, ack.dataType)
	assert.Equal(t, uint8(127+128), ack.buffer)
	assert.Equal(t, []byte{42}, ack.payload)

	data := listener.snapshot()
	require.Len(t, data, 1)
	assert.Equal(t, uint8(127), data[0].buffer)
}

func TestDisconnectPropagatesToListener(t *testing.T) {
	listener := &recordingListener{}
	ch := New(newFakeTransport(), nil, nil, listener, nil)

	ch.OnDisconnect()

	assert.Equal(t, 1, listener.disconnected)
}
