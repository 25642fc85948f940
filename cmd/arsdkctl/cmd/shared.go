package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/postmannen/arsdk-go/config"
	"github.com/postmannen/arsdk-go/device"
	"github.com/postmannen/arsdk-go/discovery"
	"github.com/postmannen/arsdk-go/handshake"
	"github.com/postmannen/arsdk-go/internal/codec"
	"github.com/postmannen/arsdk-go/internal/schema"
	"github.com/postmannen/arsdk-go/internal/telemetry"
)

// serveMetrics starts a /metrics endpoint in the background when addr is
// non-empty. Bind failures are logged, not fatal: a CLI session is still
// useful without its metrics scraped.
func serveMetrics(tel *telemetry.Telemetry, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			tel.Log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// applyBufferOverride merges a config.Buffers profile entry onto a
// product's stock BufferConfig. A zero field in the override means "use
// the product's built-in convention": no real buffer id is ever 0 (that
// id is reserved for the inbound ping per spec.md §3), so an unset
// override field is unambiguous.
func applyBufferOverride(base device.BufferConfig, override config.Buffers) device.BufferConfig {
	if override.NonAck != 0 {
		base.NonAck = override.NonAck
	}
	if override.Ack != 0 {
		base.Ack = override.Ack
	}
	if override.HasHighPrio {
		base.HasHighPrio = true
		base.HighPrio = override.HighPrio
	}
	if len(override.RecvData) > 0 {
		base.CommandData = override.RecvData
	}
	return base
}

// productDevice builds the Device wired for product's buffer convention
// (overridden by bufOverride's non-zero fields, if any) and the mDNS
// device id discovery should look for.
func productDevice(codecC *codec.Codec, tel *telemetry.Telemetry, product string, bufOverride config.Buffers) (*device.Device, string, error) {
	switch product {
	case "bebop":
		bufs := applyBufferOverride(device.BebopBuffers(), bufOverride)
		return device.NewWithBuffers(codecC, bufs, tel), discovery.DeviceIDBebop, nil
	case "bebop2":
		bufs := applyBufferOverride(device.BebopBuffers(), bufOverride)
		return device.NewWithBuffers(codecC, bufs, tel), discovery.DeviceIDBebop2, nil
	case "jumpingsumo":
		bufs := applyBufferOverride(device.JumpingSumoBuffers(), bufOverride)
		return device.NewWithBuffers(codecC, bufs, tel), discovery.DeviceIDJumpingSumo, nil
	case "skycontroller":
		bufs := applyBufferOverride(device.SkyControllerBuffers(), bufOverride)
		return device.NewWithBuffers(codecC, bufs, tel), discovery.DeviceIDSkyController, nil
	case "mambo":
		bufs := applyBufferOverride(device.MamboBuffers(), bufOverride)
		return device.NewWithBuffers(codecC, bufs, tel), "", fmt.Errorf("mambo is BLE-only and has no mDNS locator in this CLI")
	default:
		return nil, "", fmt.Errorf("unknown product %q", product)
	}
}

// bringUp runs the product-specific bring-up sequence against an already
// connected Device.
func bringUp(dev *device.Device, product string) error {
	switch product {
	case "bebop", "bebop2":
		return dev.BringUpBebop()
	case "jumpingsumo":
		return dev.BringUpJumpingSumo()
	case "skycontroller":
		return dev.BringUpSkyController()
	case "mambo":
		return dev.BringUpMambo()
	default:
		return fmt.Errorf("unknown product %q", product)
	}
}

// connectDevice loads cfg, resolves product's device id (overridden by
// --device-id when set), discovers it over mDNS, negotiates the UDP
// handshake, dials the ARNetwork channel and runs bring-up.
func connectDevice(ctx context.Context, tel *telemetry.Telemetry) (*device.Device, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cat, err := schema.Load(cfg.SchemaRoot)
	if err != nil {
		return nil, fmt.Errorf("load command schema: %w", err)
	}
	codecC := codec.New(cat)

	dev, id, err := productDevice(codecC, tel, product, cfg.Buffers[product])
	if err != nil {
		return nil, err
	}
	if deviceID != "" {
		id = deviceID
	}

	locator := discovery.NewZeroconf(cfg.Discovery.CacheTTL, cfg.Discovery.BrowseTimeout)
	negotiator := handshake.TCPJSON{}

	if err := device.Connect(ctx, locator, negotiator, id, dev, tel); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := bringUp(dev, product); err != nil {
		return nil, fmt.Errorf("bring-up: %w", err)
	}

	return dev, nil
}

func newTelemetry() (*telemetry.Telemetry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return telemetry.New(telemetry.Config{Level: cfg.Log.Level, FilePath: cfg.Log.Path}, nil)
}

const connectTimeout = 30 * time.Second
