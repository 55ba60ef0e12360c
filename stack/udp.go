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
)

const udpHeaderLen = 8

// UDPHandler processes the payload of a UDP datagram delivered to a
// registered port. src is the originating socket, srcMAC the Ethernet
// source of the frame it arrived in (DHCP uses this to seed the ARP cache
// with the server's address without waiting for a separate resolution), and
// bcast reports whether the datagram arrived via the IPv4 broadcast address.
type UDPHandler func(src UDPAddr, srcMAC MAC, bcast bool, data []byte)

// UDPAddr is an IPv4 socket address.
type UDPAddr struct {
	IP   IPv4
	Port uint16
}

// udpRegistry is a single demultiplexing table keyed by port. Host keeps two
// independent instances, one for unicast delivery and one for broadcast, so
// a port can be bound on either independently of the other (a caller that
// wants both registers with both).
type udpRegistry struct {
	mu       sync.RWMutex
	handlers map[uint16]UDPHandler
}

func newUDPRegistry() *udpRegistry {
	return &udpRegistry{handlers: make(map[uint16]UDPHandler)}
}

func (r *udpRegistry) register(port uint16, h UDPHandler) {
	r.mu.Lock()
	r.handlers[port] = h
	r.mu.Unlock()
}

func (r *udpRegistry) unregister(port uint16) {
	r.mu.Lock()
	delete(r.handlers, port)
	r.mu.Unlock()
}

func (r *udpRegistry) lookup(port uint16) (UDPHandler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[port]
	r.mu.RUnlock()
	return h, ok
}

// ListenUDP registers h to receive unicast datagrams addressed to port.
func (h *Host) ListenUDP(port uint16, fn UDPHandler) {
	h.udpUnicast.register(port, fn)
}

// CloseUDP removes the unicast handler registered for port, if any.
func (h *Host) CloseUDP(port uint16) {
	h.udpUnicast.unregister(port)
}

// ListenUDPBroadcast registers h to receive datagrams addressed to port on
// the IPv4 broadcast address. Independent of ListenUDP: a port bound only
// here never sees unicast traffic, and vice versa.
func (h *Host) ListenUDPBroadcast(port uint16, fn UDPHandler) {
	h.udpBroadcast.register(port, fn)
}

// CloseUDPBroadcast removes the broadcast handler registered for port, if
// any.
func (h *Host) CloseUDPBroadcast(port uint16) {
	h.udpBroadcast.unregister(port)
}

// parseUDPv4 handles an inbound UDP datagram, verifying its checksum (when
// present; a zero checksum field is accepted unverified per RFC 768) before
// dispatching it to the handler registered for its destination port. A
// checksum mismatch is logged and the datagram silently dropped.
func (h *Host) parseUDPv4(p *packet, bcast bool) {
	body := p.frame[p.ipOffset:p.ipMaxOffset]
	if len(body) < udpHeaderLen {
		h.logger.Errorf("udp: short packet (%d bytes)", len(body))
		return
	}

	srcPort := binary.BigEndian.Uint16(body[0:2])
	dstPort := binary.BigEndian.Uint16(body[2:4])
	length := binary.BigEndian.Uint16(body[4:6])
	rxChecksum := binary.BigEndian.Uint16(body[6:8])
	if length < udpHeaderLen || int(length) > len(body) {
		h.logger.Errorf("udp: bad length %d (datagram %d bytes)", length, len(body))
		return
	}

	payload := body[udpHeaderLen:length]
	if rxChecksum != 0 {
		if got := udpChecksum(p.ipSrc, p.ipDst, srcPort, dstPort, length, payload); got != rxChecksum {
			h.logger.Errorf("udp: %v: checksum %#04x from %s:%d, want %#04x", ErrMalformedFrame, rxChecksum, p.ipSrc, srcPort, got)
			return
		}
	}

	h.stats.UDPv4Rx.Add(1)

	p.udpSrcPort = srcPort
	p.udpDstPort = dstPort
	p.udpData = payload

	registry := h.udpUnicast
	if bcast {
		registry = h.udpBroadcast
	}
	handler, ok := registry.lookup(dstPort)
	if !ok {
		return
	}
	handler(UDPAddr{IP: p.ipSrc, Port: srcPort}, p.ethSrc, bcast, p.udpData)
}

// udpChecksum computes the RFC 768 checksum over the pseudo-header, the UDP
// header (with the checksum field treated as zero) and the payload, applying
// the all-zero-means-unchecksummed escape. The pseudo-header's length word
// and the UDP header's own length field are both folded in, alongside the
// ports, before the payload is summed byte-for-byte.
func udpChecksum(src, dst IPv4, srcPort, dstPort uint16, length uint16, payload []byte) uint16 {
	sum := pseudoHeaderSum(src, dst, protoUDP, length)
	sum += uint32(srcPort) + uint32(dstPort) + uint32(length)
	sum = (sum >> 16) + (sum & 0xffff)
	return escapeZeroChecksum(checksum(payload, sum))
}

// buildUDPHeader emits the 8-byte UDP header.
func buildUDPHeader(src, dst IPv4, srcPort, dstPort uint16, payload []byte) []byte {
	length := uint16(udpHeaderLen + len(payload))
	hdr := make([]byte, udpHeaderLen)
	binary.BigEndian.PutUint16(hdr[0:2], srcPort)
	binary.BigEndian.PutUint16(hdr[2:4], dstPort)
	binary.BigEndian.PutUint16(hdr[4:6], length)
	// hdr[6:8] checksum left zero during computation

	sum := udpChecksum(src, dst, srcPort, dstPort, length, payload)
	binary.BigEndian.PutUint16(hdr[6:8], sum)
	return hdr
}

// SendUDP4 sends a unicast or broadcast datagram, transparently fragmented
// by sendIPv4To/sendIPv4 when the combined header and payload exceed the
// MTU.
func (h *Host) SendUDP4(dst UDPAddr, srcPort uint16, payload []byte) error {
	hdr := buildUDPHeader(h.ip, dst.IP, srcPort, dst.Port, payload)

	if err := h.sendIPv4To(dst.IP, protoUDP, [][]byte{hdr, payload}); err != nil {
		h.logger.Errorf("udp: send to %s:%d: %v", dst.IP, dst.Port, err)
		return err
	}
	h.stats.UDPv4Tx.Add(1)
	return nil
}

// SendUDP4Broadcast sends to 255.255.255.255, used by the DHCP client
// while unbound.
func (h *Host) SendUDP4Broadcast(srcIP IPv4, srcPort, dstPort uint16, payload []byte) error {
	hdr := buildUDPHeader(srcIP, IPv4Broadcast, srcPort, dstPort, payload)
	if err := h.sendIPv4From(srcIP, BroadcastMAC, IPv4Broadcast, protoUDP, [][]byte{hdr, payload}); err != nil {
		h.logger.Errorf("udp: broadcast send to port %d: %v", dstPort, err)
		return err
	}
	h.stats.UDPv4Tx.Add(1)
	return nil
}
