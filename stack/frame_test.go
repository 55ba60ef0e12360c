// ENC28J60 Ethernet host stack
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stack

import "testing"

func TestDispatchEthernetShortFrameIgnored(t *testing.T) {
	h, nic := newTestHost(t)

	h.dispatchEthernet(make([]byte, ethHeaderLen-1))
	if len(nic.sent) != 0 {
		t.Errorf("a too-short frame should not trigger any reply, got %d sent", len(nic.sent))
	}
}

func TestDispatchEthernet8021QShortFrameIgnored(t *testing.T) {
	h, nic := newTestHost(t)

	frame := make([]byte, ethHeaderLen+1)
	frame[12], frame[13] = 0x81, 0x00 // 802.1Q TPID, but no room for the tag body
	h.dispatchEthernet(frame)
	if len(nic.sent) != 0 {
		t.Errorf("a truncated 802.1Q frame should not trigger any reply, got %d sent", len(nic.sent))
	}
}

func TestDispatchEthernet8021QUnwrapsInnerEtherType(t *testing.T) {
	h, _ := newTestHost(t)

	peer := MAC{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	inner := buildTestARPRequest(peer, IPv4{192, 168, 1, 10}, IPv4{192, 168, 1, 20})

	// Splice an 802.1Q tag between the Ethernet header and the ARP payload
	// carried by the untagged test frame.
	frame := make([]byte, 0, len(inner)+eth8021qLen)
	frame = append(frame, inner[:12]...)
	frame = append(frame, 0x81, 0x00, 0x00, 0x00) // TPID + TCI
	frame = append(frame, inner[12:14]...)        // re-read EtherType (0x0806)
	frame = append(frame, inner[14:]...)

	h.dispatchEthernet(frame)

	if h.Stats().ARPRx != 1 {
		t.Errorf("ARPRx = %d, want 1 after unwrapping an 802.1Q-tagged ARP request", h.Stats().ARPRx)
	}
}

func TestSendFrameBuildsEthernetHeader(t *testing.T) {
	h, nic := newTestHost(t)

	dst := MAC{1, 2, 3, 4, 5, 6}
	src := MAC{6, 5, 4, 3, 2, 1}
	payload := []byte{0xaa, 0xbb, 0xcc}

	if err := h.sendFrame(dst, src, etherTypeIPv4, [][]byte{payload}); err != nil {
		t.Fatalf("sendFrame: %v", err)
	}
	if len(nic.sent) != 1 {
		t.Fatalf("expected one frame sent, got %d", len(nic.sent))
	}

	frame := nic.sent[0]
	if MAC(frame[0:6]) != dst {
		t.Errorf("eth dst = %x, want %s", frame[0:6], dst)
	}
	if MAC(frame[6:12]) != src {
		t.Errorf("eth src = %x, want %s", frame[6:12], src)
	}
	if got := uint16(frame[12])<<8 | uint16(frame[13]); got != etherTypeIPv4 {
		t.Errorf("ethertype = %#04x, want %#04x", got, etherTypeIPv4)
	}
	if string(frame[ethHeaderLen:]) != string(payload) {
		t.Errorf("payload = %x, want %x", frame[ethHeaderLen:], payload)
	}
}
