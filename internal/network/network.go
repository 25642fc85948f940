// Package network implements the ARNetwork reliable channel on top of
// internal/netal: per-buffer sequencing, ack/retry, and ping/pong. See
// §4.B of the spec.
package network

import (
	"sync"
	"time"

	"github.com/postmannen/arsdk-go/internal/arsdkerr"
	"github.com/postmannen/arsdk-go/internal/netal"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// Transport is the subset of *netal.Transport the reliable channel
// depends on; tests substitute a fake to exercise retry/timeout behavior
// without opening real sockets.
type Transport interface {
	Send(dataType netal.DataType, buffer uint8, seq uint8, payload []byte) bool
	Stop()
}

// Status is the terminal outcome of a Send call.
type Status int

const (
	OK Status = iota
	ErrorStatus
	Timeout
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Timeout:
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// pingBuffer and pongBuffer are the two reserved buffers from §3: buffer 0
// carries inbound pings, buffer 1 carries the outbound pong reply.
const (
	pingBuffer uint8 = 0
	pongBuffer uint8 = 1
)

// ackBufferOffset is added to a data buffer id to get its ack buffer id.
const ackBufferOffset uint8 = 128

// acceptWrapThreshold is the "-10" regression tolerance from §4.B: any
// signed 8-bit gap in [-9, -1] is a duplicate/reorder and is dropped.
const acceptWrapThreshold = -10

// Listener receives fully accepted command payloads and the disconnect
// signal from a running Channel.
type Listener interface {
	OnData(buffer uint8, payload []byte)
	OnDisconnect()
}

// Channel is the reliable ARNetwork layer: it owns a netal.Transport and
// adds sequencing, retries and acknowledgement.
type Channel struct {
	transport Transport
	listener  Listener
	tel       *telemetry.Telemetry

	sendBuffers map[uint8]struct{}
	recvBuffers map[uint8]struct{}

	seqMu   sync.Mutex
	sendSeq map[uint8]uint8
	recvSeq map[uint8]uint8

	buffMu map[uint8]*sync.Mutex

	ackMu      sync.Mutex
	pendingAck map[uint8]uint8 // buffer -> seq awaiting ack
	ackEvent   map[uint8]chan struct{}
}

// New builds a Channel over an already-running transport. sendBuffers are
// the buffers the application may call Send on; recvBuffers are the
// buffers the application expects inbound command data on (ack/ping/pong
// bookkeeping is handled internally and does not need to be listed).
func New(transport Transport, sendBuffers, recvBuffers []uint8, listener Listener, tel *telemetry.Telemetry) *Channel {
	if tel == nil {
		tel = telemetry.NewNop()
	}

	c := &Channel{
		transport:   transport,
		listener:    listener,
		tel:         tel,
		sendBuffers: toSet(sendBuffers),
		recvBuffers: toSet(recvBuffers),
		sendSeq:     make(map[uint8]uint8),
		recvSeq:     make(map[uint8]uint8),
		buffMu:      make(map[uint8]*sync.Mutex),
		pendingAck:  make(map[uint8]uint8),
		ackEvent:    make(map[uint8]chan struct{}),
	}

	for b := range c.sendBuffers {
		c.buffMu[b] = &sync.Mutex{}
		c.ackEvent[b] = make(chan struct{})
	}
	// pong and ack-reply traffic need their own sequence counters even
	// though the application never calls Send on them directly.
	c.buffMu[pongBuffer] = &sync.Mutex{}
	for b := range c.recvBuffers {
		c.recvSeq[b] = 255
	}

	return c
}

// Dial opens the underlying ARNetworkAL transport to ip and wraps it in a
// Channel, mirroring the way the original Network class manages its
// NetworkAL backend internally instead of requiring it be built and wired
// up by the caller. The Channel is passed to netal.New as the transport's
// listener before the transport reference exists on the Channel itself, the
// same self-referential construction order the device orchestrator uses to
// hand itself to Dial as the Channel's listener.
func Dial(ip string, remotePort, localPort int, sendBuffers, recvBuffers []uint8, listener Listener, tel *telemetry.Telemetry) (*Channel, error) {
	c := New(nil, sendBuffers, recvBuffers, listener, tel)

	transport, err := netal.New(ip, remotePort, localPort, c, tel)
	if err != nil {
		return nil, err
	}
	c.transport = transport

	return c, nil
}

func toSet(bs []uint8) map[uint8]struct{} {
	m := make(map[uint8]struct{}, len(bs))
	for _, b := range bs {
		m[b] = struct{}{}
	}
	return m
}

// nextSeq returns the current sequence for buf and increments it modulo
// 256. The first value returned for a fresh buffer is 0.
func (c *Channel) nextSeq(buf uint8) uint8 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	seq := c.sendSeq[buf]
	c.sendSeq[buf] = seq + 1 // uint8 wraps naturally at 256
	return seq
}

// Send transmits payload on buf with the given data type, retrying up to
// tries times while the ack wait times out. Non-acknowledged sends never
// wait and always report OK once the underlying socket write succeeds.
func (c *Channel) Send(buf uint8, payload []byte, dataType netal.DataType, timeout time.Duration, tries int) (Status, error) {
	if _, ok := c.sendBuffers[buf]; !ok {
		return ErrorStatus, arsdkerr.New("network.Send", arsdkerr.KindBufferUnset, "buffer is not a declared send buffer")
	}

	seq := c.nextSeq(buf)
	needsAck := dataType == netal.DataWithAck

	mu := c.buffMu[buf]
	mu.Lock()
	defer mu.Unlock()

	var ackCh chan struct{}
	if needsAck {
		ackCh = make(chan struct{})
		c.ackMu.Lock()
		c.ackEvent[buf] = ackCh
		c.pendingAck[buf] = seq
		c.ackMu.Unlock()
	}

	status := Timeout
	used := 0
	for i := 0; i < tries && status == Timeout; i++ {
		used++
		if !c.transport.Send(dataType, buf, seq, payload) {
			status = ErrorStatus
			break
		}

		if !needsAck {
			status = OK
			break
		}

		select {
		case <-ackCh:
			status = OK
		case <-time.After(timeout):
			status = Timeout
		}
	}

	if needsAck {
		c.ackMu.Lock()
		delete(c.pendingAck, buf)
		c.ackMu.Unlock()
	}

	c.tel.SendRetries.Observe(float64(used))
	c.tel.SendOutcome.WithLabelValues(status.String()).Inc()

	if status == ErrorStatus {
		return status, arsdkerr.New("network.Send", arsdkerr.KindTransport, "transport send failed")
	}
	return status, nil
}

// OnData implements netal.Listener: it is the entry point for every frame
// read off the wire.
func (c *Channel) OnData(dataType netal.DataType, buffer uint8, seq uint8, payload []byte) {
	if buffer == pingBuffer {
		c.sendPong(payload)
	}

	switch dataType {
	case netal.Ack:
		c.handleAck(buffer, payload)
	case netal.Data, netal.DataLowLatency:
		c.processData(buffer, seq, payload)
	case netal.DataWithAck:
		c.processData(buffer, seq, payload)
		c.sendAck(buffer, seq)
	}
}

// OnDisconnect implements netal.Listener.
func (c *Channel) OnDisconnect() {
	c.listener.OnDisconnect()
}

func (c *Channel) sendPong(pingPayload []byte) {
	seq := c.nextSeq(pongBuffer)
	c.transport.Send(netal.Data, pongBuffer, seq, pingPayload)
}

func (c *Channel) sendAck(dataBuffer uint8, dataSeq uint8) {
	ackBuffer := dataBuffer + ackBufferOffset
	seq := c.nextSeq(ackBuffer)
	c.transport.Send(netal.Ack, ackBuffer, seq, []byte{dataSeq})
}

func (c *Channel) handleAck(ackBuffer uint8, payload []byte) {
	if len(payload) != 1 {
		c.tel.DecodeErrors.Inc()
		return
	}
	dataBuffer := ackBuffer - ackBufferOffset

	c.ackMu.Lock()
	pendingSeq, ok := c.pendingAck[dataBuffer]
	var ch chan struct{}
	if ok && pendingSeq == payload[0] {
		ch = c.ackEvent[dataBuffer]
	}
	c.ackMu.Unlock()

	if ch != nil {
		c.tel.Acks.Inc()
		select {
		case <-ch:
			// already closed/consumed
		default:
			close(ch)
		}
	}
}

// shouldAccept applies the signed-8-bit acceptance filter from §4.B.
func shouldAccept(last, seq uint8) bool {
	diff := int8(seq - last)
	return diff >= 1 || diff <= acceptWrapThreshold
}

func (c *Channel) processData(buffer uint8, seq uint8, payload []byte) {
	c.seqMu.Lock()
	last, known := c.recvSeq[buffer]
	accept := known && shouldAccept(last, seq)
	if accept {
		c.recvSeq[buffer] = seq
	}
	c.seqMu.Unlock()

	if !accept {
		return
	}

	c.listener.OnData(buffer, payload)
}

// Stop stops the underlying transport.
func (c *Channel) Stop() {
	c.transport.Stop()
}
