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
	ethHeaderLen = 14
	eth8021qLen  = 4 // TPID/TCI + re-read EtherType

	etherTypeIPv4  = 0x0800
	etherTypeARP   = 0x0806
	etherType8021Q = 0x8100
)

// packet is a non-owning view into the host's RX scratch buffer carrying
// parsed field offsets. It must not be retained past the synchronous
// dispatch that produced it.
type packet struct {
	frame []byte

	ethDst, ethSrc MAC
	ethType        uint16
	l2Offset       int // offset of the ethertype payload (after any 802.1Q tag)

	ipSrc, ipDst IPv4
	ipProto      uint8
	ipHdrLen     int
	ipOffset     int // start of the IP payload
	ipMaxOffset  int // end of the IP datagram (ipOffset's frame + totalLength)

	udpSrcPort, udpDstPort uint16
	udpData                []byte
}

// dispatchEthernet parses an Ethernet II (or 802.1Q-tagged) frame and routes
// its payload to the matching protocol handler.
func (h *Host) dispatchEthernet(frame []byte) {
	if len(frame) < ethHeaderLen {
		h.logger.Errorf("eth: short frame (%d bytes)", len(frame))
		return
	}

	p := packet{frame: frame}
	copy(p.ethDst[:], frame[0:6])
	copy(p.ethSrc[:], frame[6:12])
	p.ethType = binary.BigEndian.Uint16(frame[12:14])
	p.l2Offset = ethHeaderLen

	if p.ethType == etherType8021Q {
		if len(frame) < ethHeaderLen+eth8021qLen {
			h.logger.Errorf("eth: short 802.1Q frame (%d bytes)", len(frame))
			return
		}
		p.ethType = binary.BigEndian.Uint16(frame[16:18])
		p.l2Offset += eth8021qLen
	}

	switch p.ethType {
	case etherTypeIPv4:
		h.parseIPv4(&p)
	case etherTypeARP:
		h.parseARP(frame, p.l2Offset, p.ethSrc)
	default:
		// unknown ethertype, silently ignored
	}
}

// sendFrame assembles an Ethernet II frame from a scatter list of payload
// chunks and hands it to the NIC driver as a single scatter-gather send.
func (h *Host) sendFrame(dst, src MAC, etherType uint16, payload [][]byte) error {
	hdr := make([]byte, ethHeaderLen)
	copy(hdr[0:6], dst[:])
	copy(hdr[6:12], src[:])
	binary.BigEndian.PutUint16(hdr[12:14], etherType)

	chunks := make([][]byte, 0, len(payload)+1)
	chunks = append(chunks, hdr)
	chunks = append(chunks, payload...)

	_, err := h.nic.SendPacket(chunks)
	return err
}
