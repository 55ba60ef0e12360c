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
	"time"
)

func newUnconfiguredTestHost(t *testing.T) (*Host, *fakeNIC) {
	t.Helper()
	nic := &fakeNIC{linkUp: true}
	h, err := NewHost(nic, Config{DeviceID: []byte{0xaa, 0xbb, 0xcc}})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	return h, nic
}

// buildTestDHCPReply constructs a minimal OFFER/ACK packet addressed to xid,
// carrying the given option set, mirroring a server's reply.
func buildTestDHCPReply(msgType byte, xid uint32, chaddr MAC, yiaddr, siaddr IPv4, opts map[byte][]byte) []byte {
	buf := make([]byte, 236)
	buf[0] = dhcpOpBootReply
	buf[1] = dhcpHTypeEthernet
	buf[2] = dhcpHLenEthernet
	binary.BigEndian.PutUint32(buf[4:8], xid)
	copy(buf[16:20], yiaddr[:])
	copy(buf[20:24], siaddr[:])
	copy(buf[28:34], chaddr[:])

	var tlv []byte
	tlv = appendOption(tlv, optMessageType, []byte{msgType})
	for code, v := range opts {
		tlv = appendOption(tlv, code, v)
	}
	tlv = append(tlv, optEnd)

	out := make([]byte, 0, len(buf)+4+len(tlv))
	out = append(out, buf...)
	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], dhcpMagicCookie)
	out = append(out, cookie[:]...)
	out = append(out, tlv...)
	return out
}

// TestDHCPHappyPath drives the client through DISCOVER -> OFFER -> REQUEST
// -> ACK, checking the bound lease fields and that the server's address is
// seeded into the ARP cache.
func TestDHCPHappyPath(t *testing.T) {
	h, nic := newUnconfiguredTestHost(t)
	c := NewDHCPClient(h, "testhost")

	now := time.Unix(1_700_000_000, 0)
	c.Tick(now) // Init -> AwaitOffer, sends DISCOVER

	if c.State() != "AwaitOffer" {
		t.Fatalf("state = %s, want AwaitOffer", c.State())
	}
	if len(nic.sent) != 1 {
		t.Fatalf("expected one DISCOVER frame, got %d", len(nic.sent))
	}

	serverMAC := MAC{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	serverIP := IPv4{192, 168, 1, 1}
	offeredIP := IPv4{192, 168, 1, 50}

	offer := buildTestDHCPReply(dhcpMsgOffer, c.xid, h.mac, offeredIP, serverIP, map[byte][]byte{
		optServerID: serverIP[:],
	})
	deliverUDP(h, serverMAC, UDPAddr{IP: serverIP, Port: dhcpServerPort}, dhcpClientPort, offer)

	if c.State() != "Selecting" {
		t.Fatalf("state = %s, want Selecting", c.State())
	}
	if len(nic.sent) != 2 {
		t.Fatalf("expected a REQUEST frame after the offer, got %d total", len(nic.sent))
	}

	ack := buildTestDHCPReply(dhcpMsgAck, c.xid, h.mac, offeredIP, serverIP, map[byte][]byte{
		optServerID:   serverIP[:],
		optSubnetMask: (IPv4{255, 255, 255, 0})[:],
		optRouter:     serverIP[:],
		optLeaseTime:  uint32Bytes(3600),
	})
	deliverUDP(h, serverMAC, UDPAddr{IP: serverIP, Port: dhcpServerPort}, dhcpClientPort, ack)

	if c.State() != "Bound" {
		t.Fatalf("state = %s, want Bound", c.State())
	}

	lease := c.Lease()
	if lease.ClientIP != offeredIP {
		t.Errorf("ClientIP = %s, want %s", lease.ClientIP, offeredIP)
	}
	if lease.LeaseTime != 3600*time.Second {
		t.Errorf("LeaseTime = %s, want 1h", lease.LeaseTime)
	}
	if lease.T1 != 1800*time.Second {
		t.Errorf("T1 = %s, want 30m (half the lease, no option 58 override)", lease.T1)
	}
	if !h.IsIPv4Configured() || h.IPv4() != offeredIP {
		t.Errorf("host IP = %s, configured=%v, want %s bound", h.IPv4(), h.IsIPv4Configured(), offeredIP)
	}

	if mac, ok := h.LookupARP(serverIP); !ok || mac != serverMAC {
		t.Errorf("ARP cache for server = (%s, %v), want (%s, true)", mac, ok, serverMAC)
	}
}

// TestDHCPAwaitOfferTimeoutReturnsToInit covers the AwaitOffer -> Init edge
// of the state table.
func TestDHCPAwaitOfferTimeoutReturnsToInit(t *testing.T) {
	h, _ := newUnconfiguredTestHost(t)
	c := NewDHCPClient(h, "")

	start := time.Unix(1_700_000_000, 0)
	c.Tick(start)
	if c.State() != "AwaitOffer" {
		t.Fatalf("state = %s, want AwaitOffer", c.State())
	}

	c.Tick(start.Add(dhcpAwaitOfferTimeout + time.Second))
	if c.State() != "Init" {
		t.Fatalf("state = %s, want Init after the offer timeout elapses", c.State())
	}
}

// deliverUDP simulates an inbound datagram arriving on the broadcast
// registry, matching the DHCP client's registration while unbound (it
// switches to the unicast registry only after acquiring a lease, via
// registerUnicast).
func deliverUDP(h *Host, srcMAC MAC, src UDPAddr, dstPort uint16, payload []byte) {
	handler, ok := h.udpBroadcast.lookup(dstPort)
	if !ok {
		return
	}
	handler(src, srcMAC, true, payload)
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
