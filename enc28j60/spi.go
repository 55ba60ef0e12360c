// ENC28J60 Ethernet controller driver
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enc28j60

import "time"

// SPI is the bus the driver runs over: full-duplex 8-bit transfers with
// caller-managed chip select, clock mode 0, up to 20 MHz (the reference
// board runs it at 10 MHz). The driver never owns the bus directly; the
// caller wires a controller-specific implementation (e.g. the board's SPI
// peripheral driver).
type SPI interface {
	// Select asserts (low==true) or deasserts the chip-select line.
	Select(low bool)

	// Write shifts out tx with no meaningful read data.
	Write(tx []byte) error

	// Transfer performs a simultaneous full-duplex exchange, writing tx
	// while filling rx. len(tx) == len(rx).
	Transfer(tx, rx []byte) error
}

// Clock provides the driver's only two timing primitives: a millisecond
// sleep and a monotonic coarse-resolution clock used to bound the PHY
// busy-wait.
type Clock interface {
	SleepMilliseconds(ms int)
	Now() time.Time
}
