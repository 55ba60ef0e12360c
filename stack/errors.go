// ENC28J60 Ethernet host stack
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stack

import "errors"

// Recoverable conditions. Callers of send paths get these back directly;
// inbound conditions are logged and the packet is dropped.
var (
	// ErrARPUnresolved is returned by a unicast send when the next hop (or
	// gateway) MAC address is not yet in the ARP table. The caller should
	// call Host.ConnectIPv4 and retry on a later tick.
	ErrARPUnresolved = errors.New("enc28j60/stack: next hop not resolved in ARP table")

	// ErrMalformedFrame marks an inbound frame that failed structural
	// validation (bad IPv4 version/IHL, unsupported fragment, checksum
	// mismatch). The frame is dropped; this is returned only for logging,
	// never surfaced as a failed operation.
	ErrMalformedFrame = errors.New("enc28j60/stack: malformed inbound frame")

	// ErrNoRoute is returned when a destination is neither on the local
	// subnet nor reachable via a configured gateway.
	ErrNoRoute = errors.New("enc28j60/stack: no route to destination")
)
