// Package discovery implements the pluggable MDNS/Zeroconf locator that
// resolves a Parrot device id to an address. It is an external
// collaborator to the core stack per §6 of the spec: the orchestrator
// only depends on the Locator interface.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/patrickmn/go-cache"

	"github.com/postmannen/arsdk-go/internal/arsdkerr"
)

// Device ids recognised on the `_arsdk-<hex_device_id>._udp` service type.
const (
	DeviceIDBebop           = "0901"
	DeviceIDJumpingSumo     = "0902"
	DeviceIDSkyController   = "0903"
	DeviceIDJumpingNight    = "0905"
	DeviceIDJumpingRace     = "0906"
	DeviceIDBebop2          = "090c"
	DeviceIDSkyController2  = "090f"
)

// Device is the result of a successful locate.
type Device struct {
	DeviceID string
	Name     string
	IP       string
	Port     int
}

// Locator resolves a device id to a reachable address.
type Locator interface {
	Locate(ctx context.Context, deviceID string) (Device, error)
}

// Zeroconf locates devices via mDNS, caching hits for a short TTL so a
// flaky responder doesn't make an already-found device flap in and out of
// the discovered set on repeated calls.
type Zeroconf struct {
	cache         *cache.Cache
	browseTimeout time.Duration
}

// NewZeroconf builds a Zeroconf locator. Discovered devices are cached for
// ttl; browseTimeout bounds how long a single Locate call waits for an
// mDNS response.
func NewZeroconf(ttl, browseTimeout time.Duration) *Zeroconf {
	return &Zeroconf{
		cache:         cache.New(ttl, 2*ttl),
		browseTimeout: browseTimeout,
	}
}

// Locate browses for _arsdk-<deviceID>._udp.local. and returns the first
// entry advertising an IPv4 address.
func (z *Zeroconf) Locate(ctx context.Context, deviceID string) (Device, error) {
	if cached, ok := z.cache.Get(deviceID); ok {
		return cached.(Device), nil
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Device{}, arsdkerr.Wrap("discovery.Locate", arsdkerr.KindTransport, err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, z.browseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	serviceType := fmt.Sprintf("_arsdk-%s._udp", deviceID)
	go func() {
		_ = resolver.Browse(browseCtx, serviceType, "local.", entries)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Device{}, arsdkerr.New("discovery.Locate", arsdkerr.KindTimeout, "no device answered before the browse timeout")
			}
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			dev := Device{
				DeviceID: deviceID,
				Name:     entry.HostName,
				IP:       entry.AddrIPv4[0].String(),
				Port:     entry.Port,
			}
			z.cache.SetDefault(deviceID, dev)
			return dev, nil
		case <-browseCtx.Done():
			return Device{}, arsdkerr.Wrap("discovery.Locate", arsdkerr.KindTimeout, browseCtx.Err())
		}
	}
}
