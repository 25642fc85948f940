package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postmannen/arsdk-go/internal/codec"
	"github.com/postmannen/arsdk-go/internal/netal"
	"github.com/postmannen/arsdk-go/internal/network"
	"github.com/postmannen/arsdk-go/internal/schema"
	"github.com/postmannen/arsdk-go/internal/state"
)

// fakeTransport implements network.Transport directly (it's exported) so
// these tests exercise a real *network.Channel without opening sockets.
type fakeTransport struct {
	mu      sync.Mutex
	sends   []sentFrame
	acks    bool // not consulted by Send: this fake never acks a send
	stopped bool // once set by Stop, Send fails like a closed socket
}

type sentFrame struct {
	dataType netal.DataType
	buffer   uint8
	seq      uint8
}

func (f *fakeTransport) Send(dataType netal.DataType, buffer uint8, seq uint8, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	f.sends = append(f.sends, sentFrame{dataType, buffer, seq})
	return true
}

func (f *fakeTransport) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTransport) frames() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.sends...)
}

func loadDeviceCodec(t *testing.T) *codec.Codec {
	t.Helper()
	cat, err := schema.Load("../internal/schema/testdata/xml")
	require.NoError(t, err)
	return codec.New(cat)
}

// newTestBebop builds a Bebop device wired to a fake transport, bypassing
// Connect/network.Dial entirely.
func newTestBebop(t *testing.T) (*Device, *fakeTransport) {
	t.Helper()
	dev := NewBebop(loadDeviceCodec(t), nil)
	transport := &fakeTransport{}
	ch := network.New(transport, dev.SendBuffers(), dev.RecvBuffers(), dev, nil)
	dev.SetChannel(ch)
	return dev, transport
}

func TestSendNonAckCommandGoesToNackBufferWithPlainData(t *testing.T) {
	dev, transport := newTestBebop(t)

	status, err := dev.Send("common", "Common", "CurrentDate", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, network.OK, status)

	frames := transport.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint8(10), frames[0].buffer)
	assert.Equal(t, netal.Data, frames[0].dataType)
}

func TestSendHighPrioCommandGoesToUrgBufferWithLowLatencyData(t *testing.T) {
	dev, transport := newTestBebop(t)

	_, err := dev.Send("piloting", "", "PCMD", uint8(0), int8(0), int8(0), int8(0), int8(0), uint32(0))
	require.NoError(t, err)

	frames := transport.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint8(12), frames[0].buffer)
	assert.Equal(t, netal.DataLowLatency, frames[0].dataType)
}

func TestSendHighPrioCommandErrorsWhenProductHasNoUrgBuffer(t *testing.T) {
	dev := NewJumpingSumo(loadDeviceCodec(t), nil)
	transport := &fakeTransport{}
	ch := network.New(transport, dev.SendBuffers(), dev.RecvBuffers(), dev, nil)
	dev.SetChannel(ch)

	_, err := dev.Send("piloting", "", "PCMD", uint8(0), int8(0), int8(0), int8(0), int8(0), uint32(0))
	require.Error(t, err)
}

func TestOnDataIgnoresFramesOutsideCommandBuffers(t *testing.T) {
	dev, _ := newTestBebop(t)

	dev.OnData(200, []byte{0x00, 0x00, 0x04, 0x00})
	_, ok := dev.Get(state.FullName("common", "Common", "CurrentDate"))
	assert.False(t, ok)
}

func TestOnDataRoutesPlainCommandIntoNamedSlot(t *testing.T) {
	dev, _ := newTestBebop(t)

	payload, _, _, err := dev.codec.Encode("common", "Common", "CurrentDate", "2024-01-01")
	require.NoError(t, err)

	dev.OnData(126, payload)

	v, ok := dev.Get(state.FullName("common", "Common", "CurrentDate"))
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", v.(map[string]any)["date"])
}

func TestOnDisconnectStopsTheChannel(t *testing.T) {
	dev, transport := newTestBebop(t)
	_ = transport

	dev.OnDisconnect()

	_, err := dev.Send("common", "Common", "CurrentDate", "2024-01-01")
	require.Error(t, err)
}

func TestBringUpBebopSendsDateTimeSettingsAndStatesThenWaitsOnAcks(t *testing.T) {
	dev, transport := newTestBebop(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		settingsAck, _, _, err := dev.codec.Encode("common", "SettingsState", "AllSettingsChanged")
		require.NoError(t, err)
		dev.OnData(126, settingsAck)

		// AllStatesChanged only counts once BringUpBebop waits for it, which
		// it does after sending AllStates (its 4th frame).
		for len(transport.frames()) < 4 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)

		statesAck, _, _, err := dev.codec.Encode("common", "CommonState", "AllStatesChanged")
		require.NoError(t, err)
		dev.OnData(126, statesAck)
	}()

	err := dev.BringUpBebop()
	require.NoError(t, err)

	frames := transport.frames()
	assert.GreaterOrEqual(t, len(frames), 4)
}
