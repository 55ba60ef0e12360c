// ENC28J60 Ethernet host stack
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stack

import (
	"encoding/binary"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/time/rate"
)

const (
	arpHeaderLen = 28

	arpHTypeEthernet = 1
	arpPTypeIPv4     = 0x0800
	arpHLenEthernet  = 6
	arpPLenIPv4      = 4

	arpOpRequest = 1
	arpOpReply   = 2
)

// arpTable maps a packed IPv4 address to the MAC address it resolves to.
// There is no TTL: entries persist until overwritten.
type arpTable struct {
	mu      sync.RWMutex
	entries map[uint32]MAC
}

func newARPTable() *arpTable {
	return &arpTable{entries: make(map[uint32]MAC)}
}

func (t *arpTable) insert(ip IPv4, mac MAC) {
	t.mu.Lock()
	t.entries[ip.Uint32()] = mac
	t.mu.Unlock()
}

func (t *arpTable) lookup(ip IPv4) (MAC, bool) {
	t.mu.RLock()
	mac, ok := t.entries[ip.Uint32()]
	t.mu.RUnlock()
	return mac, ok
}

func (t *arpTable) size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// LookupARP returns the MAC address cached for ip, if any.
func (h *Host) LookupARP(ip IPv4) (MAC, bool) {
	return h.arp.lookup(ip)
}

// InsertARP inserts or overwrites an ARP table entry by explicit action.
func (h *Host) InsertARP(ip IPv4, mac MAC) {
	h.arp.insert(ip, mac)
}

// parseARP handles an inbound ARP packet: reply to a request for our own
// address, or insert a cache entry on a reply.
func (h *Host) parseARP(frame []byte, l2Offset int, ethSrc MAC) {
	body := frame[l2Offset:]
	if len(body) < arpHeaderLen {
		h.logger.Errorf("arp: short packet (%d bytes)", len(body))
		return
	}

	htype := binary.BigEndian.Uint16(body[0:2])
	ptype := binary.BigEndian.Uint16(body[2:4])
	hlen := body[4]
	plen := body[5]
	op := binary.BigEndian.Uint16(body[6:8])

	if htype != arpHTypeEthernet || ptype != arpPTypeIPv4 || hlen != arpHLenEthernet || plen != arpPLenIPv4 {
		return
	}

	var sha MAC
	copy(sha[:], body[8:14])
	var spa IPv4
	copy(spa[:], body[14:18])
	var tpa IPv4
	copy(tpa[:], body[24:28])

	h.stats.ARPRx.Add(1)

	switch op {
	case arpOpRequest:
		if tpa == h.ip {
			h.logger.Debugf("arp: request for our IP from %s (%s)", spa, sha)
			h.sendARPReply(ethSrc, sha, spa)
		}
	case arpOpReply:
		h.logger.Infof("arp: %s is at %s", spa, sha)
		h.arp.insert(spa, sha)
		h.pendingARP.Remove(spa.Uint32())
	}
}

// sendARPReply answers a request that targets our own IP address.
func (h *Host) sendARPReply(dstMAC, targetMAC MAC, targetIP IPv4) {
	body := make([]byte, arpHeaderLen)
	binary.BigEndian.PutUint16(body[0:2], arpHTypeEthernet)
	binary.BigEndian.PutUint16(body[2:4], arpPTypeIPv4)
	body[4] = arpHLenEthernet
	body[5] = arpPLenIPv4
	binary.BigEndian.PutUint16(body[6:8], arpOpReply)
	copy(body[8:14], h.mac[:])
	copy(body[14:18], h.ip[:])
	copy(body[18:24], targetMAC[:])
	copy(body[24:28], targetIP[:])

	h.sendFrame(dstMAC, h.mac, etherTypeARP, [][]byte{body})
	h.stats.ARPTx.Add(1)
}

// SendARPRequest broadcasts a request with a zero target hardware address.
func (h *Host) SendARPRequest(target IPv4) error {
	body := make([]byte, arpHeaderLen)
	binary.BigEndian.PutUint16(body[0:2], arpHTypeEthernet)
	binary.BigEndian.PutUint16(body[2:4], arpPTypeIPv4)
	body[4] = arpHLenEthernet
	body[5] = arpPLenIPv4
	binary.BigEndian.PutUint16(body[6:8], arpOpRequest)
	copy(body[8:14], h.mac[:])
	copy(body[14:18], h.ip[:])
	copy(body[18:24], ZeroMAC[:])
	copy(body[24:28], target[:])

	err := h.sendFrame(BroadcastMAC, h.mac, etherTypeARP, [][]byte{body})
	if err == nil {
		h.stats.ARPTx.Add(1)
	}
	return err
}

// IsLocalIPv4 reports whether ip shares our subnet.
func (h *Host) IsLocalIPv4(ip IPv4) bool {
	return ip.And(h.mask) == h.ip.And(h.mask)
}

// IsConnectedIPv4 reports whether the next hop for ip is already resolved.
func (h *Host) IsConnectedIPv4(ip IPv4) bool {
	nextHop := ip
	if !h.IsLocalIPv4(ip) {
		nextHop = h.gateway
	}
	_, ok := h.arp.lookup(nextHop)
	return ok
}

// ConnectIPv4 issues a request for a local peer, or ensures the gateway is
// resolved for anything off-subnet. Request issuance is rate-limited and
// deduplicated against in-flight requests (golang.org/x/time/rate +
// deckarep/golang-set), so a burst of sends to the same unresolved peer
// produces one ARP request rather than N.
func (h *Host) ConnectIPv4(ip IPv4) {
	target := ip
	if !h.IsLocalIPv4(ip) {
		if h.IsConnectedIPv4(h.gateway) {
			return
		}
		target = h.gateway
	} else if _, ok := h.arp.lookup(target); ok {
		return
	}

	key := target.Uint32()
	if h.pendingARP.Contains(key) {
		return
	}
	if !h.arpLimiter.Allow() {
		return
	}

	h.pendingARP.Add(key)
	if err := h.SendARPRequest(target); err != nil {
		h.pendingARP.Remove(key)
	}
}

func newPendingARPSet() mapset.Set[uint32] {
	return mapset.NewThreadUnsafeSet[uint32]()
}

func newARPLimiter() *rate.Limiter {
	// One request per second shared across all targets, with a burst of 4 to
	// allow an initial flurry at link-up when several peers are contacted at
	// once. Per-target deduplication is done by pendingARP, not here.
	return rate.NewLimiter(rate.Every(time.Second), 4)
}
