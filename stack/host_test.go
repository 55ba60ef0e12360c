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

// fakeNIC is an in-memory stand-in for enc28j60.Driver: SendPacket appends
// the assembled frame to sent, ReceivePacket drains a pre-loaded queue.
type fakeNIC struct {
	linkUp bool
	sent   [][]byte
	rx     [][]byte
}

func (n *fakeNIC) SendPacket(chunks [][]byte) (int, error) {
	var frame []byte
	for _, c := range chunks {
		frame = append(frame, c...)
	}
	n.sent = append(n.sent, frame)
	return len(frame), nil
}

func (n *fakeNIC) ReceivePacket(dst []byte) (int, error) {
	if len(n.rx) == 0 {
		return 0, nil
	}
	next := n.rx[0]
	n.rx = n.rx[1:]
	return copy(dst, next), nil
}

func (n *fakeNIC) IsLinkUp() bool           { return n.linkUp }
func (n *fakeNIC) IsLinkStateChanged() bool { return false }

func newTestHost(t *testing.T) (*Host, *fakeNIC) {
	t.Helper()
	nic := &fakeNIC{linkUp: true}
	h, err := NewHost(nic, Config{
		DeviceID: []byte{0x01, 0x02, 0x03},
		IP:       IPv4{192, 168, 1, 10},
		Mask:     IPv4{255, 255, 255, 0},
		Gateway:  IPv4{192, 168, 1, 1},
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	return h, nic
}

func TestDeriveMAC(t *testing.T) {
	mac, err := deriveMAC([]byte{0xAA, 0xBB, 0xCC, 0x11, 0x22, 0x33})
	if err != nil {
		t.Fatal(err)
	}
	want := MAC{0x0e, 0x5f, 0x5f, 0x11, 0x22, 0x33}
	if mac != want {
		t.Errorf("deriveMAC = %s, want %s", mac, want)
	}

	if _, err := deriveMAC([]byte{0x01, 0x02}); err == nil {
		t.Error("deriveMAC with a 2-byte id should fail")
	}
}

func TestNewHostStaticIPv4Configured(t *testing.T) {
	h, _ := newTestHost(t)
	if !h.IsIPv4Configured() {
		t.Error("IsIPv4Configured() = false, want true after static IP config")
	}
	if h.IPv4() != (IPv4{192, 168, 1, 10}) {
		t.Errorf("IPv4() = %s", h.IPv4())
	}
}

func TestIsLocalIPv4(t *testing.T) {
	h, _ := newTestHost(t)
	if !h.IsLocalIPv4(IPv4{192, 168, 1, 200}) {
		t.Error("192.168.1.200 should be on-subnet")
	}
	if h.IsLocalIPv4(IPv4{10, 0, 0, 1}) {
		t.Error("10.0.0.1 should not be on-subnet")
	}
}

func TestRxAllPktHandlesOneFrame(t *testing.T) {
	h, nic := newTestHost(t)

	peer := MAC{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	arpReq := buildTestARPRequest(peer, IPv4{192, 168, 1, 10}, IPv4{192, 168, 1, 20})

	nic.rx = [][]byte{arpReq}
	h.rxAllPkt()

	if _, ok := h.LookupARP(IPv4{192, 168, 1, 20}); ok {
		t.Fatal("request frame should not itself populate the ARP cache")
	}
	if len(nic.sent) != 1 {
		t.Fatalf("expected one ARP reply to be sent, got %d", len(nic.sent))
	}
}

// errThenFrameNIC returns a negative (discarded-frame) length once before
// serving a real queued frame, modeling the driver's receive-error
// convention.
type errThenFrameNIC struct {
	fakeNIC
	errsLeft int
}

func (n *errThenFrameNIC) ReceivePacket(dst []byte) (int, error) {
	if n.errsLeft > 0 {
		n.errsLeft--
		return -1, nil
	}
	return n.fakeNIC.ReceivePacket(dst)
}

// TestRxAllPktDrainsPastErrors ensures a discarded (negative-length) frame
// does not stop the drain loop from processing subsequent queued frames.
func TestRxAllPktDrainsPastErrors(t *testing.T) {
	peer := MAC{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	arpReq := buildTestARPRequest(peer, IPv4{192, 168, 1, 10}, IPv4{192, 168, 1, 20})

	nic := &errThenFrameNIC{fakeNIC: fakeNIC{linkUp: true, rx: [][]byte{arpReq}}, errsLeft: 2}
	h, err := NewHost(nic, Config{
		DeviceID: []byte{0x01, 0x02, 0x03},
		IP:       IPv4{192, 168, 1, 10},
		Mask:     IPv4{255, 255, 255, 0},
		Gateway:  IPv4{192, 168, 1, 1},
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}

	h.rxAllPkt()

	if len(nic.sent) != 1 {
		t.Fatalf("expected the queued ARP request to still be processed past two RX errors, got %d frames sent", len(nic.sent))
	}
}

func buildTestARPRequest(srcMAC MAC, dstIP, srcIP IPv4) []byte {
	body := make([]byte, arpHeaderLen)
	body[0], body[1] = 0, arpHTypeEthernet
	body[2], body[3] = 0x08, 0x00
	body[4] = arpHLenEthernet
	body[5] = arpPLenIPv4
	body[6], body[7] = 0, arpOpRequest
	copy(body[8:14], srcMAC[:])
	copy(body[14:18], srcIP[:])
	copy(body[24:28], dstIP[:])

	frame := make([]byte, ethHeaderLen+arpHeaderLen)
	copy(frame[0:6], BroadcastMAC[:])
	copy(frame[6:12], srcMAC[:])
	frame[12], frame[13] = 0x08, 0x06
	copy(frame[14:], body)
	return frame
}
