// Package device implements the orchestrator that glues the datagram
// transport, reliable channel, command codec and state store into a
// single running connection to one drone. See §4.E of the spec.
package device

import (
	"fmt"
	"time"

	"github.com/postmannen/arsdk-go/internal/arsdkerr"
	"github.com/postmannen/arsdk-go/internal/codec"
	"github.com/postmannen/arsdk-go/internal/netal"
	"github.com/postmannen/arsdk-go/internal/network"
	"github.com/postmannen/arsdk-go/internal/schema"
	"github.com/postmannen/arsdk-go/internal/state"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// defaultRetries and defaultTimeout are Send's default retry policy.
const (
	defaultRetries = 5
	defaultTimeout = 150 * time.Millisecond
)

// bringUpWait is how long the bring-up sequence waits for each
// acknowledgement event before giving up.
const bringUpWait = 5 * time.Second

// Device owns a reliable channel and a state store for one connected
// drone, and maps the codec's buffer-kind hints onto the product's
// concrete buffer numbering.
type Device struct {
	channel *network.Channel
	store   *state.Store
	codec   *codec.Codec
	tel     *telemetry.Telemetry

	nackBuffer     uint8
	ackBuffer      uint8
	hasUrgBuffer   bool
	urgBuffer      uint8
	commandBuffers map[uint8]struct{}
}

// New builds a Device. It does not own a channel yet: callers wire one up
// with network.Dial (or inject a fake for tests) and set it with
// SetChannel, the same self-referential order the original implementation
// uses when it hands itself to its Network object as the listener.
func New(codecC *codec.Codec, nackBuffer, ackBuffer uint8, hasUrgBuffer bool, urgBuffer uint8, commandBuffers []uint8, tel *telemetry.Telemetry) *Device {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	cmdBufSet := make(map[uint8]struct{}, len(commandBuffers))
	for _, b := range commandBuffers {
		cmdBufSet[b] = struct{}{}
	}
	return &Device{
		store:          state.New(),
		codec:          codecC,
		tel:            tel,
		nackBuffer:     nackBuffer,
		ackBuffer:      ackBuffer,
		hasUrgBuffer:   hasUrgBuffer,
		urgBuffer:      urgBuffer,
		commandBuffers: cmdBufSet,
	}
}

// BufferConfig is a product's buffer-numbering convention: which buffers
// Send uses for non-ack/ack/high-priority traffic, and which buffers
// inbound command data arrives on. Each product's NewXxx constructor
// returns a Device built from its own stock BufferConfig (exposed as
// XxxBuffers for callers, such as a config profile, that need to override
// it); see §6 of the spec for the per-product numbering.
type BufferConfig struct {
	NonAck      uint8
	Ack         uint8
	HasHighPrio bool
	HighPrio    uint8
	CommandData []uint8
}

// NewWithBuffers is New, taking its buffer convention as a single
// BufferConfig instead of five positional arguments.
func NewWithBuffers(codecC *codec.Codec, cfg BufferConfig, tel *telemetry.Telemetry) *Device {
	return New(codecC, cfg.NonAck, cfg.Ack, cfg.HasHighPrio, cfg.HighPrio, cfg.CommandData, tel)
}

// SetChannel attaches the reliable channel this Device sends through and
// receives from. Must be called exactly once, before Send or OnData.
func (d *Device) SetChannel(ch *network.Channel) {
	d.channel = ch
}

// SendBuffers lists the buffers this Device calls Send on, for wiring into
// network.Dial: the non-ack and ack buffers always, the urgency buffer
// when the product has one.
func (d *Device) SendBuffers() []uint8 {
	buffers := []uint8{d.nackBuffer, d.ackBuffer}
	if d.hasUrgBuffer {
		buffers = append(buffers, d.urgBuffer)
	}
	return buffers
}

// RecvBuffers lists the command-data buffers this Device expects inbound
// frames on, for wiring into network.Dial.
func (d *Device) RecvBuffers() []uint8 {
	buffers := make([]uint8, 0, len(d.commandBuffers))
	for b := range d.commandBuffers {
		buffers = append(buffers, b)
	}
	return buffers
}

// Send resolves name.class.command through the codec, maps the schema's
// recommended buffer kind onto this product's concrete buffer numbering,
// and sends with the default retry policy.
func (d *Device) Send(project, class, command string, args ...any) (network.Status, error) {
	payload, bufferKind, _, err := d.codec.Encode(project, class, command, args...)
	if err != nil {
		return network.ErrorStatus, err
	}

	var buf uint8
	var dataType netal.DataType
	switch bufferKind {
	case schema.BufferNonAck:
		buf, dataType = d.nackBuffer, netal.Data
	case schema.BufferAck:
		buf, dataType = d.ackBuffer, netal.DataWithAck
	case schema.BufferHighPrio:
		if !d.hasUrgBuffer {
			return network.ErrorStatus, arsdkerr.New("device.Send", arsdkerr.KindBufferUnset, "product declares no high-priority buffer")
		}
		buf, dataType = d.urgBuffer, netal.DataLowLatency
	}

	return d.channel.Send(buf, payload, dataType, defaultTimeout, defaultRetries+1)
}

// OnData implements network.Listener. Frames on a buffer outside
// commandBuffers are ignored; everything else is decoded and routed into
// the state store by the schema's declared list kind.
func (d *Device) OnData(buffer uint8, payload []byte) {
	if _, ok := d.commandBuffers[buffer]; !ok {
		return
	}

	rec, ok, err := d.codec.Decode(payload)
	if err != nil {
		d.tel.DecodeErrors.Inc()
		return
	}
	if !ok {
		return
	}

	switch rec.List {
	case schema.ListList:
		d.store.PutList(rec.Project, rec.Class, rec.Command, rec.Args)
	case schema.ListMap:
		d.store.PutMap(rec.Project, rec.Class, rec.Command, rec.Args, fmt.Sprint(rec.Arg0))
	default:
		d.store.Put(rec.Project, rec.Class, rec.Command, rec.Args)
	}
}

// OnDisconnect implements network.Listener: the link is gone, so the
// transport is torn down too.
func (d *Device) OnDisconnect() {
	d.tel.Log.Info("device: disconnected")
	d.channel.Stop()
}

// Get returns a deep copy of one state slot.
func (d *Device) Get(name string) (any, bool) { return d.store.Get(name) }

// Snapshot returns a deep copy of the entire state store.
func (d *Device) Snapshot() map[string]any { return d.store.Snapshot() }

// WaitFor blocks until name is signalled or timeout elapses.
func (d *Device) WaitFor(name string, timeout time.Duration) bool { return d.store.WaitFor(name, timeout) }

// Stop tears down the transport.
func (d *Device) Stop() { d.channel.Stop() }

// bringUpCommon runs the shared bring-up profile. project is "common" or
// "skyctrl"; skipDateTime is set for SkyController, which has no onboard
// clock to set.
func (d *Device) bringUpCommon(project string, skipDateTime bool) error {
	if !skipDateTime {
		now := time.Now()
		if _, err := d.Send(project, "Common", "CurrentDate", now.Format("2006-01-02")); err != nil {
			return err
		}
		if _, err := d.Send(project, "Common", "CurrentTime", now.Format("T150405+0000")); err != nil {
			return err
		}
	}

	if _, err := d.Send(project, "Settings", "AllSettings"); err != nil {
		return err
	}
	if !d.WaitFor(state.FullName(project, "SettingsState", "AllSettingsChanged"), bringUpWait) {
		return arsdkerr.New("device.bringUpCommon", arsdkerr.KindTimeout, "AllSettingsChanged not received")
	}

	if _, err := d.Send(project, "Common", "AllStates"); err != nil {
		return err
	}
	if !d.WaitFor(state.FullName(project, "CommonState", "AllStatesChanged"), bringUpWait) {
		return arsdkerr.New("device.bringUpCommon", arsdkerr.KindTimeout, "AllStatesChanged not received")
	}

	return nil
}
