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

func TestSendARPRequest(t *testing.T) {
	h, nic := newTestHost(t)

	if err := h.SendARPRequest(IPv4{192, 168, 1, 50}); err != nil {
		t.Fatalf("SendARPRequest: %v", err)
	}
	if len(nic.sent) != 1 {
		t.Fatalf("expected one frame sent, got %d", len(nic.sent))
	}

	frame := nic.sent[0]
	if MAC(frame[0:6]) != BroadcastMAC {
		t.Errorf("eth dst = %x, want broadcast", frame[0:6])
	}

	body := frame[ethHeaderLen:]
	op := uint16(body[6])<<8 | uint16(body[7])
	if op != arpOpRequest {
		t.Errorf("op = %d, want request", op)
	}
	var tpa IPv4
	copy(tpa[:], body[24:28])
	if tpa != (IPv4{192, 168, 1, 50}) {
		t.Errorf("tpa = %s, want 192.168.1.50", tpa)
	}
	if h.Stats().ARPTx != 1 {
		t.Errorf("ARPTx = %d, want 1", h.Stats().ARPTx)
	}
}

func TestParseARPReplyInsertsCache(t *testing.T) {
	h, _ := newTestHost(t)

	peer := MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	body := make([]byte, arpHeaderLen)
	body[1] = arpHTypeEthernet
	body[2], body[3] = 0x08, 0x00
	body[4] = arpHLenEthernet
	body[5] = arpPLenIPv4
	body[7] = arpOpReply
	copy(body[8:14], peer[:])
	copy(body[14:18], (IPv4{192, 168, 1, 99})[:])
	copy(body[18:24], h.mac[:])
	copy(body[24:28], h.ip[:])

	frame := append([]byte{}, make([]byte, ethHeaderLen)...)
	frame = append(frame, body...)

	h.parseARP(frame, ethHeaderLen, peer)

	mac, ok := h.LookupARP(IPv4{192, 168, 1, 99})
	if !ok || mac != peer {
		t.Fatalf("LookupARP = (%s, %v), want (%s, true)", mac, ok, peer)
	}
	if h.Stats().ARPRx != 1 {
		t.Errorf("ARPRx = %d, want 1", h.Stats().ARPRx)
	}
}

func TestConnectIPv4DedupesPending(t *testing.T) {
	h, nic := newTestHost(t)

	target := IPv4{192, 168, 1, 77}
	h.ConnectIPv4(target)
	h.ConnectIPv4(target)
	h.ConnectIPv4(target)

	if len(nic.sent) != 1 {
		t.Errorf("ConnectIPv4 issued %d requests for a single pending target, want 1", len(nic.sent))
	}
}

func TestConnectIPv4SkipsResolvedPeer(t *testing.T) {
	h, nic := newTestHost(t)

	target := IPv4{192, 168, 1, 77}
	h.InsertARP(target, MAC{1, 2, 3, 4, 5, 6})

	h.ConnectIPv4(target)
	if len(nic.sent) != 0 {
		t.Errorf("ConnectIPv4 issued a request for an already-resolved peer")
	}
}
