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
	"fmt"
)

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is the Ethernet broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// BroadcastMAC is the Ethernet broadcast hardware address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ZeroMAC is the all-zero hardware address used as the ARP target in
// requests, where the resolution is unknown.
var ZeroMAC = MAC{}

// IPv4 is a 4-byte IPv4 address in network byte order.
type IPv4 [4]byte

func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// Uint32 packs the address into a 32-bit integer, network byte order
// preserved (a[0] is the most significant byte), for use as an ARP table
// key.
func (a IPv4) Uint32() uint32 {
	return binary.BigEndian.Uint32(a[:])
}

// IPv4FromUint32 unpacks a 32-bit integer back into an IPv4 address.
func IPv4FromUint32(v uint32) IPv4 {
	var a IPv4
	binary.BigEndian.PutUint32(a[:], v)
	return a
}

// And returns the bitwise AND of a and mask, e.g. to compute a network
// address.
func (a IPv4) And(mask IPv4) IPv4 {
	var out IPv4
	for i := range a {
		out[i] = a[i] & mask[i]
	}
	return out
}

// IPv4Broadcast is the limited broadcast address 255.255.255.255.
var IPv4Broadcast = IPv4{255, 255, 255, 255}

// IPv4Zero is the unspecified address 0.0.0.0.
var IPv4Zero = IPv4{}
