// Package handshake implements the single-use TCP/JSON exchange that
// negotiates the UDP ports a device and controller will use for the
// NetworkAL/ARNetwork session, per §6 of the spec.
package handshake

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/postmannen/arsdk-go/internal/arsdkerr"
)

// Request is the controller-to-device handshake payload. DeviceID is only
// set when the controller already resolved the target via discovery and
// wants the device to confirm it is the same unit.
type Request struct {
	D2CPort        int    `json:"d2c_port"`
	ControllerType string `json:"controller_type"`
	ControllerName string `json:"controller_name"`
	DeviceID       string `json:"device_id,omitempty"`
}

// Response is the device's reply. Status == 0 means the device accepted
// the proposed d2c_port and is ready on C2DPort; any other value is a
// refusal and the connection must not proceed.
type Response struct {
	Status  int `json:"status"`
	C2DPort int `json:"c2d_port"`
}

// accepted is the only Status value that authorizes continuing.
const accepted = 0

// Negotiator performs the handshake against a device at ip:port.
type Negotiator interface {
	Negotiate(ctx context.Context, ip string, port int, req Request) (Response, error)
}

// TCPJSON negotiates over a single-use TCP connection: one JSON request
// written, one JSON response read, then the connection is closed. The
// device does not keep the handshake socket open past that exchange.
type TCPJSON struct {
	// DialTimeout bounds the TCP connect itself; Negotiate's ctx bounds the
	// whole exchange including the read.
	DialTimeout time.Duration
}

// Negotiate dials ip:port, sends req as a single line of JSON with no
// surrounding whitespace, and decodes the device's reply.
func (n TCPJSON) Negotiate(ctx context.Context, ip string, port int, req Request) (Response, error) {
	dialer := net.Dialer{Timeout: n.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return Response{}, arsdkerr.Wrap("handshake.Negotiate", arsdkerr.KindTransport, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, arsdkerr.Wrap("handshake.Negotiate", arsdkerr.KindSchema, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return Response{}, arsdkerr.Wrap("handshake.Negotiate", arsdkerr.KindTransport, err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, arsdkerr.Wrap("handshake.Negotiate", arsdkerr.KindDecode, err)
	}

	if resp.Status != accepted {
		return resp, arsdkerr.New("handshake.Negotiate", arsdkerr.KindTransport,
			fmt.Sprintf("device refused handshake with status %d", resp.Status))
	}
	return resp, nil
}

func (n TCPJSON) dialTimeout() time.Duration {
	if n.DialTimeout <= 0 {
		return 5 * time.Second
	}
	return n.DialTimeout
}
