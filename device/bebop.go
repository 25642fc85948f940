package device

import (
	"github.com/postmannen/arsdk-go/internal/codec"
	"github.com/postmannen/arsdk-go/internal/network"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// BebopBuffers is the Bebop family's stock buffer convention: ack=11,
// non-ack=10, high-priority=12, command data on 126/127.
func BebopBuffers() BufferConfig {
	return BufferConfig{NonAck: 10, Ack: 11, HasHighPrio: true, HighPrio: 12, CommandData: []uint8{126, 127}}
}

// NewBebop builds a Device wired for BebopBuffers.
func NewBebop(codecC *codec.Codec, tel *telemetry.Telemetry) *Device {
	return NewWithBuffers(codecC, BebopBuffers(), tel)
}

// BringUpBebop runs the common bring-up profile, then disables the video
// stream the product enables by default.
func (d *Device) BringUpBebop() error {
	if err := d.bringUpCommon("common", false); err != nil {
		return err
	}
	_, err := d.Send("ardrone3", "MediaStreaming", "VideoEnable", uint8(0))
	return err
}

// TakeOff sends the take-off command.
func (d *Device) TakeOff() (network.Status, error) { return d.Send("ardrone3", "Piloting", "TakeOff") }

// Land sends the land command.
func (d *Device) Land() (network.Status, error) { return d.Send("ardrone3", "Piloting", "Land") }

// Emergency cuts the motors immediately.
func (d *Device) Emergency() (network.Status, error) {
	return d.Send("ardrone3", "Piloting", "Emergency")
}

// StartStreaming enables the video stream.
func (d *Device) StartStreaming() (network.Status, error) {
	return d.Send("ardrone3", "MediaStreaming", "VideoEnable", uint8(1))
}

// StopStreaming disables the video stream.
func (d *Device) StopStreaming() (network.Status, error) {
	return d.Send("ardrone3", "MediaStreaming", "VideoEnable", uint8(0))
}
