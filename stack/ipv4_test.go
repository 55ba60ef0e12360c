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
	"testing"
)

// TestIPv4HeaderChecksumRoundTrips verifies that a header built by
// buildIPv4Header checksums to zero when summed whole.
func TestIPv4HeaderChecksumRoundTrips(t *testing.T) {
	hdr := buildIPv4Header(IPv4{10, 0, 0, 1}, IPv4{10, 0, 0, 2}, 42, protoUDP, 8, 0, 0)
	if sum := checksum(hdr, 0); sum != 0 {
		t.Errorf("checksum over a self-consistent header = %#x, want 0", sum)
	}
}

// TestFragmentPayload verifies fragment boundaries other than the last are
// 8-byte aligned, and payloads that fit within the MTU are not split at
// all.
func TestFragmentPayload(t *testing.T) {
	t.Run("fits in one frame", func(t *testing.T) {
		payload := make([]byte, 100)
		frags := fragmentPayload(payload)
		if len(frags) != 1 || len(frags[0]) != 100 {
			t.Fatalf("got %d fragments, want 1 of length 100", len(frags))
		}
	})

	t.Run("splits on 8-byte boundaries", func(t *testing.T) {
		payload := make([]byte, 3000)
		for i := range payload {
			payload[i] = byte(i)
		}
		frags := fragmentPayload(payload)
		if len(frags) < 2 {
			t.Fatalf("expected multiple fragments for a %d-byte payload", len(payload))
		}

		maxFragPayload := ((MTU - ipv4HeaderLen) >> 3) << 3
		var total int
		for i, f := range frags {
			total += len(f)
			if i < len(frags)-1 {
				if len(f) != maxFragPayload {
					t.Errorf("fragment %d length = %d, want %d", i, len(f), maxFragPayload)
				}
				if len(f)%8 != 0 {
					t.Errorf("fragment %d length %d is not 8-byte aligned", i, len(f))
				}
			}
		}
		if total != len(payload) {
			t.Errorf("reassembled length = %d, want %d", total, len(payload))
		}
	})
}

// TestSendIPv4FragmentsShareIdentification verifies that every fragment of
// one datagram carries the same identification field, and only the last
// fragment has MF clear.
func TestSendIPv4FragmentsShareIdentification(t *testing.T) {
	h, nic := newTestHost(t)
	dst := MAC{1, 2, 3, 4, 5, 6}

	payload := make([]byte, 3000)
	if err := h.sendIPv4(dst, IPv4{192, 168, 1, 200}, protoUDP, [][]byte{payload}); err != nil {
		t.Fatalf("sendIPv4: %v", err)
	}
	if len(nic.sent) < 2 {
		t.Fatalf("expected multiple fragments sent, got %d", len(nic.sent))
	}

	var id uint16
	for i, frame := range nic.sent {
		hdr := frame[ethHeaderLen : ethHeaderLen+ipv4HeaderLen]
		gotID := binary.BigEndian.Uint16(hdr[4:6])
		if i == 0 {
			id = gotID
		} else if gotID != id {
			t.Errorf("fragment %d id = %d, want %d", i, gotID, id)
		}

		flagsFrag := binary.BigEndian.Uint16(hdr[6:8])
		mf := flagsFrag&ipv4FlagMF != 0
		if i == len(nic.sent)-1 && mf {
			t.Error("last fragment has MF set")
		}
		if i != len(nic.sent)-1 && !mf {
			t.Errorf("fragment %d missing MF", i)
		}
	}
}

func TestParseIPv4RejectsFragments(t *testing.T) {
	h, _ := newTestHost(t)

	hdr := buildIPv4Header(IPv4{192, 168, 1, 200}, h.ip, 1, protoUDP, 8, ipv4FlagMF, 0)
	frame := append(append([]byte{}, make([]byte, ethHeaderLen)...), hdr...)
	frame = append(frame, make([]byte, 8)...)

	p := packet{frame: frame, l2Offset: ethHeaderLen}
	h.parseIPv4(&p)

	if h.Stats().UDPv4Rx != 0 {
		t.Error("a fragmented datagram should not reach the UDP layer")
	}
}
