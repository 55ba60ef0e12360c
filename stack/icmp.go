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
	icmpHeaderLen = 8

	icmpTypeEchoReply   = 0
	icmpTypeEchoRequest = 8
)

// parseICMPv4 answers an echo request in place, dropping anything else.
func (h *Host) parseICMPv4(p *packet) {
	body := p.frame[p.ipOffset:p.ipMaxOffset]
	if len(body) < icmpHeaderLen {
		h.logger.Errorf("icmp: short packet (%d bytes)", len(body))
		return
	}

	h.stats.ICMPv4Rx.Add(1)

	if body[0] != icmpTypeEchoRequest || body[1] != 0 {
		return
	}

	reply := make([]byte, len(body))
	copy(reply, body)
	reply[0] = icmpTypeEchoReply
	binary.BigEndian.PutUint16(reply[2:4], 0)
	sum := checksum(reply, 0)
	binary.BigEndian.PutUint16(reply[2:4], sum)

	if err := h.sendIPv4(p.ethSrc, p.ipSrc, protoICMP, [][]byte{reply}); err != nil {
		h.logger.Errorf("icmp: echo reply to %s: %v", p.ipSrc, err)
	}
}
