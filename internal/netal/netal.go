// Package netal implements the ARNetworkAL datagram transport: frame
// level UDP send/receive and liveness detection. It is the lowest layer
// of the stack described in §4.A of the spec.
package netal

import (
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postmannen/arsdk-go/internal/arsdkerr"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// DataType is one of the four ARNetworkAL frame kinds.
type DataType uint8

const (
	Ack            DataType = 1
	Data           DataType = 2
	DataLowLatency DataType = 3
	DataWithAck    DataType = 4
)

// headerSize is the fixed 7-byte ARNetworkAL frame header:
// data_type(1) + buffer_id(1) + seq(1) + total_len(4).
const headerSize = 7

// readTimeout is the sole liveness signal: if nothing arrives within this
// window, the read loop declares the link dead.
const readTimeout = 5 * time.Second

// readBufferSize is generous enough to hold several coalesced frames from
// one UDP datagram; ARNetworkAL datagrams from Parrot products are well
// under this in practice.
const readBufferSize = 65536

// Listener receives decoded frames and the disconnect signal from a
// running Transport. Implementations must not block for long inside
// OnData, since it runs on the read loop's goroutine.
type Listener interface {
	OnData(dataType DataType, buffer uint8, seq uint8, payload []byte)
	OnDisconnect()
}

// Transport owns the two UDP sockets (one for sending to the drone, one
// bound locally for receiving) and the background read loop.
type Transport struct {
	remoteAddr *net.UDPAddr
	listener   Listener
	tel        *telemetry.Telemetry

	sendMu   sync.Mutex
	sendConn *net.UDPConn
	recvConn *net.UDPConn

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// New opens the send and receive sockets and starts the read loop.
// ip/remotePort address the drone; localPort is where the controller
// listens for d2c traffic.
func New(ip string, remotePort, localPort int, listener Listener, tel *telemetry.Telemetry) (*Transport, error) {
	if tel == nil {
		tel = telemetry.NewNop()
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ip, strconv.Itoa(remotePort)))
	if err != nil {
		return nil, arsdkerr.Wrap("netal.New", arsdkerr.KindTransport, err)
	}

	sendConn, err := net.DialUDP("udp", nil, remoteAddr)
	if err != nil {
		return nil, arsdkerr.Wrap("netal.New", arsdkerr.KindTransport, err)
	}

	recvConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: localPort})
	if err != nil {
		sendConn.Close()
		return nil, arsdkerr.Wrap("netal.New", arsdkerr.KindTransport, err)
	}

	t := &Transport{
		remoteAddr: remoteAddr,
		listener:   listener,
		tel:        tel,
		sendConn:   sendConn,
		recvConn:   recvConn,
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}

	go t.readLoop()

	return t, nil
}

// Send builds one ARNetworkAL frame and performs a single sendto. It
// never retries; retry policy belongs to the reliable channel above it.
func (t *Transport) Send(dataType DataType, buffer uint8, seq uint8, payload []byte) bool {
	frame := make([]byte, headerSize, headerSize+len(payload))
	frame[0] = byte(dataType)
	frame[1] = buffer
	frame[2] = seq
	binary.LittleEndian.PutUint32(frame[3:7], uint32(headerSize+len(payload)))
	frame = append(frame, payload...)

	t.sendMu.Lock()
	_, err := t.sendConn.Write(frame)
	t.sendMu.Unlock()

	if err != nil {
		t.tel.Log.Debug("netal: send failed", zap.Uint8("buffer", buffer), zap.Error(err))
		return false
	}
	t.tel.FramesOut.Inc()
	return true
}

// Stop is idempotent. It closes both sockets, which makes the read loop's
// pending recvfrom fail and exit, firing OnDisconnect exactly once.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		t.recvConn.Close()
		t.sendConn.Close()
	})
	<-t.done
}

// readLoop blocks on ReadFromUDP with a 5s deadline, consuming every
// self-delimited frame in each datagram before reading again.
func (t *Transport) readLoop() {
	defer close(t.done)

	buf := make([]byte, readBufferSize)
	for {
		t.recvConn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := t.recvConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.stopped:
			default:
				t.tel.Log.Info("netal: read loop exiting", zap.Error(err))
			}
			t.tel.Disconnects.Inc()
			t.listener.OnDisconnect()
			return
		}

		t.consumeDatagram(buf[:n])
	}
}

// consumeDatagram walks the frames coalesced in one UDP datagram,
// delivering each to the listener.
func (t *Transport) consumeDatagram(datagram []byte) {
	pos := 0
	for pos+headerSize <= len(datagram) {
		dataType := DataType(datagram[pos])
		buffer := datagram[pos+1]
		seq := datagram[pos+2]
		totalLen := int(binary.LittleEndian.Uint32(datagram[pos+3 : pos+7]))

		if totalLen < headerSize || pos+totalLen > len(datagram) {
			t.tel.Log.Debug("netal: truncated frame, dropping rest of datagram",
				zap.Int("pos", pos), zap.Int("total_len", totalLen), zap.Int("datagram_len", len(datagram)))
			t.tel.DecodeErrors.Inc()
			return
		}

		payload := datagram[pos+headerSize : pos+totalLen]
		t.tel.FramesIn.Inc()
		t.listener.OnData(dataType, buffer, seq, payload)

		pos += totalLen
	}
}

