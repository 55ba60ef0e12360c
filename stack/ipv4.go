// ENC28J60 Ethernet host stack
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stack

import "encoding/binary"

const (
	ipv4HeaderLen = 20
	ipv4TTL       = 128

	ipv4FlagMF = 0x2000 // more fragments, bit 13 of the flags/frag-offset word
	ipv4FlagDF = 0x4000

	protoICMP = 1
	protoTCP  = 6
	protoUDP  = 17

	// MTU is the Ethernet payload MTU assumed throughout the stack.
	MTU = 1500
)

// nextIPID returns the next IPv4 identification value and advances the
// counter. The value must be strictly non-decreasing within an interface's
// uptime; the field is 16 bits, so the counter wraps after 65536 datagrams,
// which is the protocol's own limit rather than a defect in this counter.
func (h *Host) nextIPID() uint16 {
	id := h.ipID
	h.ipID++
	return id
}

// buildIPv4Header emits the 20-byte fixed header: version=4, IHL=5, no
// options, checksum computed over the header with the checksum field
// zeroed during the sum.
func buildIPv4Header(src, dst IPv4, id uint16, proto uint8, payloadLen int, flags uint16, fragOffset uint16) []byte {
	hdr := make([]byte, ipv4HeaderLen)
	totalLen := ipv4HeaderLen + payloadLen

	hdr[0] = 0x45 // version 4, IHL 5
	hdr[1] = 0    // DSCP/ECN
	binary.BigEndian.PutUint16(hdr[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(hdr[4:6], id)
	flagsFrag := flags | (fragOffset & 0x1fff)
	binary.BigEndian.PutUint16(hdr[6:8], flagsFrag)
	hdr[8] = ipv4TTL
	hdr[9] = proto
	// hdr[10:12] checksum left zero during computation
	copy(hdr[12:16], src[:])
	copy(hdr[16:20], dst[:])

	sum := checksum(hdr, 0)
	binary.BigEndian.PutUint16(hdr[10:12], sum)
	return hdr
}

// parseIPv4 parses an inbound IPv4 datagram and dispatches its payload to
// the matching protocol handler.
func (h *Host) parseIPv4(p *packet) {
	frame := p.frame
	off := p.l2Offset
	if len(frame)-off < ipv4HeaderLen {
		h.logger.Errorf("ip4: short packet (%d bytes)", len(frame)-off)
		return
	}

	verIHL := frame[off]
	version := verIHL >> 4
	ihl := int(verIHL&0x0f) * 4
	totalLen := int(binary.BigEndian.Uint16(frame[off+2 : off+4]))
	flagsFrag := binary.BigEndian.Uint16(frame[off+6 : off+8])
	proto := frame[off+9]

	p.ipHdrLen = ihl
	p.ipOffset = off + ihl
	p.ipMaxOffset = off + totalLen
	copy(p.ipSrc[:], frame[off+12:off+16])
	copy(p.ipDst[:], frame[off+16:off+20])
	p.ipProto = proto

	h.stats.IPv4Rx.Add(1)

	if version != 4 {
		h.logger.Errorf("ip4: unsupported version %d", version)
		return
	}
	if ihl != ipv4HeaderLen {
		h.logger.Errorf("ip4: unsupported header length %d (options not supported)", ihl)
		return
	}
	mf := flagsFrag&ipv4FlagMF != 0
	fragOffset := (flagsFrag & 0x1fff) << 3
	if mf || fragOffset != 0 {
		h.logger.Errorf("ip4: fragmented packet not supported (mf=%v offset=%d)", mf, fragOffset)
		return
	}
	if p.ipMaxOffset > len(frame) {
		h.logger.Errorf("ip4: truncated datagram")
		return
	}

	switch {
	case p.ipDst == h.ip:
		switch proto {
		case protoICMP:
			h.parseICMPv4(p)
		case protoUDP:
			h.parseUDPv4(p, false)
		case protoTCP:
			h.dispatchTCP(p)
		}
	case p.ipDst == IPv4Broadcast:
		if proto == protoUDP {
			h.parseUDPv4(p, true)
		}
	}
}

// fragmentPayload splits an IPv4 payload into one or more fragments as a
// single "emit N frames" loop rather than mutating a shared scatter list.
// Each fragment boundary other than the last is a multiple of 8 bytes.
func fragmentPayload(full []byte) [][]byte {
	totalLen := ipv4HeaderLen + len(full)
	if totalLen <= MTU {
		return [][]byte{full}
	}

	maxFragPayload := ((MTU - ipv4HeaderLen) >> 3) << 3

	var fragments [][]byte
	for start := 0; start < len(full); start += maxFragPayload {
		end := start + maxFragPayload
		if end > len(full) {
			end = len(full)
		}
		fragments = append(fragments, full[start:end])
	}
	return fragments
}

// sendIPv4 assembles and transmits an IPv4 datagram to dstMAC, fragmenting
// the payload when it exceeds the MTU. All fragments of a datagram share the
// identification value taken once, before the loop.
func (h *Host) sendIPv4(dstMAC MAC, dstIP IPv4, proto uint8, payloadChunks [][]byte) error {
	return h.sendIPv4From(h.ip, dstMAC, dstIP, proto, payloadChunks)
}

// sendIPv4From is sendIPv4 with an explicit IPv4 source address.
func (h *Host) sendIPv4From(srcIP IPv4, dstMAC MAC, dstIP IPv4, proto uint8, payloadChunks [][]byte) error {
	var full []byte
	for _, c := range payloadChunks {
		full = append(full, c...)
	}

	fragments := fragmentPayload(full)
	id := h.nextIPID()
	maxFragPayload := ((MTU - ipv4HeaderLen) >> 3) << 3

	for i, frag := range fragments {
		var flags uint16
		if i < len(fragments)-1 {
			flags = ipv4FlagMF
		}
		offset := uint16((i * maxFragPayload) >> 3)

		hdr := buildIPv4Header(srcIP, dstIP, id, proto, len(frag), flags, offset)
		if err := h.sendFrame(dstMAC, h.mac, etherTypeIPv4, [][]byte{hdr, frag}); err != nil {
			return err
		}
		h.stats.IPv4Tx.Add(1)
	}
	return nil
}

// sendIPv4To resolves the next-hop MAC address for dstIP (local subnet peer
// or gateway) and sends the datagram. Returns ErrARPUnresolved if the next
// hop isn't cached yet; callers should call Host.ConnectIPv4 and retry
// later.
func (h *Host) sendIPv4To(dstIP IPv4, proto uint8, payloadChunks [][]byte) error {
	if dstIP == IPv4Broadcast {
		return h.sendIPv4(BroadcastMAC, dstIP, proto, payloadChunks)
	}

	nextHop := dstIP
	if !h.IsLocalIPv4(dstIP) {
		if h.gateway == IPv4Zero {
			return ErrNoRoute
		}
		nextHop = h.gateway
	}

	dstMAC, ok := h.arp.lookup(nextHop)
	if !ok {
		h.ConnectIPv4(dstIP)
		return ErrARPUnresolved
	}
	return h.sendIPv4(dstMAC, dstIP, proto, payloadChunks)
}
