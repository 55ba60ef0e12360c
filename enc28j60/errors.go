// ENC28J60 Ethernet controller driver
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enc28j60

import "github.com/pkg/errors"

// Error sentinels returned by the driver. MsgSize and LinkDown are returned
// directly from SendPacket; a receive error is folded into ReceivePacket's
// negative-length return rather than surfaced as an error, since the
// caller's only recourse on a receive error is to
// continue polling. PHYStuck is the one driver-level fatal condition and is
// wrapped with github.com/pkg/errors so callers can recover the underlying
// sentinel with errors.Is while still getting a stack trace on first
// construction.
var (
	// ErrMsgSize is returned by SendPacket when the combined chunk length
	// exceeds the 1518-byte frame limit.
	ErrMsgSize = errors.New("enc28j60: frame exceeds maximum length")

	// ErrLinkDown is returned by SendPacket when the PHY reports no link.
	ErrLinkDown = errors.New("enc28j60: link down")

	// ErrPHYStuck is returned when MISTAT.BUSY fails to clear within the
	// driver's timeout.
	ErrPHYStuck = errors.New("enc28j60: PHY register access timed out")
)

// DriverError wraps a sentinel with the register/operation context active
// at the time of failure.
type DriverError struct {
	Op  string
	Reg string
	Err error
}

func (e *DriverError) Error() string {
	if e.Reg != "" {
		return "enc28j60: " + e.Op + " " + e.Reg + ": " + e.Err.Error()
	}
	return "enc28j60: " + e.Op + ": " + e.Err.Error()
}

func (e *DriverError) Unwrap() error { return e.Err }
