// ENC28J60 Ethernet controller driver
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enc28j60

// regAddr is the 16-bit (type|bank|address) encoding used for register
// addressing: a compact value type that carries everything SelectBank and
// ReadReg/WriteReg need without decoding it repeatedly.
type regAddr uint16

const (
	regTypeETH regAddr = 0x0000
	regTypeMAC regAddr = 0x1000
	regTypeMII regAddr = 0x2000
	regTypePHY regAddr = 0x3000

	bank0 regAddr = 0x0000
	bank1 regAddr = 0x0100
	bank2 regAddr = 0x0200
	bank3 regAddr = 0x0300

	regTypeMask regAddr = 0xF000
	regBankMask regAddr = 0x0F00
	regAddrMask regAddr = 0x001F
)

func (r regAddr) regType() regAddr { return r & regTypeMask }
func (r regAddr) bank() regAddr    { return r & regBankMask }
func (r regAddr) addr() byte       { return byte(r & regAddrMask) }

// isETH reports whether r addresses an ETH-type register, which (unlike MAC
// and MII) returns its data byte with no leading dummy byte on RCR.
func (r regAddr) isETH() bool { return r.regType() == regTypeETH }
