// Package stack implements a minimal dual-stack IPv4 host (ARP, IPv4,
// ICMPv4, UDPv4, DHCPv4) on top of an enc28j60.Driver NIC.
//
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
package stack

import (
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// maxFrameLen bounds the RX scratch buffer: the MTU plus Ethernet frame
// overhead (1518 B).
const maxFrameLen = 1518

// NIC is the capability the Host Controller requires of the driver it owns.
// enc28j60.Driver satisfies it; tests substitute a fake.
type NIC interface {
	SendPacket(chunks [][]byte) (int, error)
	ReceivePacket(dst []byte) (int, error)
	IsLinkUp() bool
	IsLinkStateChanged() bool
}

// TCPHandler is a stub hook: connection state is out of scope for this
// stack, but a registered hook still receives the sender's address and
// source port plus the raw TCP segment bytes, for whatever transport the
// caller wants to layer on top.
type TCPHandler func(src UDPAddr, data []byte)

// Stats accumulates per-protocol counters for diagnostics, optionally
// exported as Prometheus counters by cmd/enc28j60ctl. All fields use
// atomic.Uint64 because Stats() may be read concurrently with the
// single-threaded poll loop that mutates them.
type Stats struct {
	ARPRx, ARPTx       atomic.Uint64
	IPv4Rx, IPv4Tx     atomic.Uint64
	ICMPv4Rx, ICMPv4Tx atomic.Uint64
	UDPv4Rx, UDPv4Tx   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats, safe to pass by value.
type StatsSnapshot struct {
	ARPRx, ARPTx       uint64
	IPv4Rx, IPv4Tx     uint64
	ICMPv4Rx, ICMPv4Tx uint64
	UDPv4Rx, UDPv4Tx   uint64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		ARPRx: s.ARPRx.Load(), ARPTx: s.ARPTx.Load(),
		IPv4Rx: s.IPv4Rx.Load(), IPv4Tx: s.IPv4Tx.Load(),
		ICMPv4Rx: s.ICMPv4Rx.Load(), ICMPv4Tx: s.ICMPv4Tx.Load(),
		UDPv4Rx: s.UDPv4Rx.Load(), UDPv4Tx: s.UDPv4Tx.Load(),
	}
}

// Config configures a Host.
type Config struct {
	// MAC overrides the derived device-identity MAC address. Optional.
	MAC MAC

	// DeviceID is a persistent unique device identifier whose final 3
	// bytes seed a locally-administered MAC (0E:5F:5F:xx:yy:zz) when MAC
	// is the zero value. Required if MAC is unset.
	DeviceID []byte

	// Static IPv4 configuration. If IP is the zero value, the caller is
	// expected to drive a DHCPClient instead.
	IP      IPv4
	Mask    IPv4
	Gateway IPv4
	DNS     IPv4

	// Logger receives diagnostic output from every subsystem. Defaults to
	// a no-op implementation.
	Logger Logger
}

// deriveMAC derives a locally-administered MAC address from a device
// identity when no explicit MAC is configured.
func deriveMAC(deviceID []byte) (MAC, error) {
	if len(deviceID) < 3 {
		return MAC{}, errors.New("enc28j60/stack: device identity must be at least 3 bytes")
	}
	tail := deviceID[len(deviceID)-3:]
	return MAC{0x0e, 0x5f, 0x5f, tail[0], tail[1], tail[2]}, nil
}

// Host is the Host Controller: owns configuration, callback registries, and
// the single-threaded polling loop. It is mutated only by that loop, with
// the exception of the atomic Stats counters and the thread-safe ARP/UDP
// registries, which may be read from other goroutines (e.g. a metrics
// exporter or CLI dashboard).
type Host struct {
	nic NIC

	mac            MAC
	ip, mask       IPv4
	gateway, dns   IPv4
	ipv4Configured bool

	arp        *arpTable
	pendingARP mapset.Set[uint32]
	arpLimiter *rate.Limiter

	udpUnicast   *udpRegistry
	udpBroadcast *udpRegistry
	tcp          struct {
		mu       sync.RWMutex
		handlers map[uint16]TCPHandler
	}

	ipID uint16

	logger Logger
	stats  Stats

	rxBuf []byte
}

// NewHost constructs a Host Controller around nic. If cfg.IP is unset, the
// caller is expected to follow up with NewDHCPClient and drive it from
// Host's poll loop.
func NewHost(nic NIC, cfg Config) (*Host, error) {
	mac := cfg.MAC
	if mac == ZeroMAC {
		var err error
		mac, err = deriveMAC(cfg.DeviceID)
		if err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger{}
	}

	h := &Host{
		nic:          nic,
		mac:          mac,
		ip:           cfg.IP,
		mask:         cfg.Mask,
		gateway:      cfg.Gateway,
		dns:          cfg.DNS,
		arp:          newARPTable(),
		pendingARP:   newPendingARPSet(),
		arpLimiter:   newARPLimiter(),
		udpUnicast:   newUDPRegistry(),
		udpBroadcast: newUDPRegistry(),
		logger:       logger,
		rxBuf:        make([]byte, maxFrameLen),
	}
	h.tcp.handlers = make(map[uint16]TCPHandler)

	if cfg.IP != IPv4Zero {
		h.ipv4Configured = true
	}

	return h, nil
}

// MAC returns the host's Ethernet address.
func (h *Host) MAC() MAC { return h.mac }

// IPv4 returns the host's current IPv4 address (zero if unconfigured).
func (h *Host) IPv4() IPv4 { return h.ip }

// IsIPv4Configured reports whether a usable IPv4 address is installed,
// whether statically or via DHCP.
func (h *Host) IsIPv4Configured() bool { return h.ipv4Configured }

// Stats returns a point-in-time snapshot of protocol counters.
func (h *Host) Stats() StatsSnapshot { return h.stats.snapshot() }

// ListenTCP registers a stub TCP handler for port. Connection state is not
// implemented; the handler receives raw segment bytes only.
func (h *Host) ListenTCP(port uint16, fn TCPHandler) {
	h.tcp.mu.Lock()
	h.tcp.handlers[port] = fn
	h.tcp.mu.Unlock()
}

// CloseTCP removes the stub handler registered for port, if any.
func (h *Host) CloseTCP(port uint16) {
	h.tcp.mu.Lock()
	delete(h.tcp.handlers, port)
	h.tcp.mu.Unlock()
}

func (h *Host) dispatchTCP(p *packet) {
	if len(p.frame[p.ipOffset:p.ipMaxOffset]) < 4 {
		return
	}
	body := p.frame[p.ipOffset:p.ipMaxOffset]
	dstPort := uint16(body[2])<<8 | uint16(body[3])

	h.tcp.mu.RLock()
	handler, ok := h.tcp.handlers[dstPort]
	h.tcp.mu.RUnlock()
	if !ok {
		return
	}
	srcPort := uint16(body[0])<<8 | uint16(body[1])
	handler(UDPAddr{IP: p.ipSrc, Port: srcPort}, body)
}

// applyDHCPLease installs a lease accepted by DHCPClient on ACK.
func (h *Host) applyDHCPLease(lease DHCPLease) {
	h.ip = lease.ClientIP
	h.mask = lease.SubnetMask
	h.gateway = lease.Gateway
	if lease.DNS != IPv4Zero {
		h.dns = lease.DNS
	}
	h.ipv4Configured = true
}

// rxAllPkt drains every frame queued in the NIC and dispatches each
// synchronously.
func (h *Host) rxAllPkt() {
	for {
		n, err := h.nic.ReceivePacket(h.rxBuf)
		if err != nil {
			h.logger.Errorf("nic: receive: %v", err)
			return
		}
		if n == 0 {
			return
		}
		if n < 0 {
			// RX_ERR_UNSPECIFIED: frame discarded, pointers already
			// advanced by the driver. Keep draining the queue.
			continue
		}
		h.dispatchEthernet(h.rxBuf[:n])
	}
}

// Tickable is a stateful component advanced once per Host.Poll call, such
// as a DHCPClient.
type Tickable interface {
	Tick(now time.Time)
}

// Poll drains inbound traffic and advances every registered stateful
// component by one tick, following a single-threaded cooperative scheduling
// model. Callers run this from a loop with their own pacing (e.g. a ticker
// or idle-callback).
func (h *Host) Poll(now time.Time, components ...Tickable) {
	h.rxAllPkt()
	for _, c := range components {
		c.Tick(now)
	}
}

// Run blocks, calling Poll every interval until ctx-like stop channel stop
// is closed. It is a convenience wrapper around Poll for callers that don't
// need custom pacing; cmd/enc28j60ctl uses it directly.
func (h *Host) Run(stop <-chan struct{}, interval time.Duration, components ...Tickable) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h.Poll(now, components...)
		}
	}
}
