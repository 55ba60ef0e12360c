// ENC28J60 Ethernet controller driver
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package enc28j60

// Buffer layout: the TX and RX regions never overlap, giving a 6 KiB RX
// FIFO and a 2 KiB TX FIFO within the chip's 8 KiB of on-chip SRAM.
const (
	rxBufferStart regAddr = 0x0000
	rxBufferStop  regAddr = 0x17FF
	txBufferStart regAddr = 0x1800
	txBufferStop  regAddr = 0x1FFF

	maxFrameLen = 1518
)

// SPI opcodes.
const (
	cmdRCR byte = 0x00
	cmdRBM byte = 0x3A
	cmdWCR byte = 0x40
	cmdWBM byte = 0x7A
	cmdBFS byte = 0x80
	cmdBFC byte = 0xA0
	cmdSRC byte = 0xFF
)

// Bank 0 (ETH) registers.
const (
	regERDPTL   = regTypeETH | bank0 | 0x00
	regERDPTH   = regTypeETH | bank0 | 0x01
	regEWRPTL   = regTypeETH | bank0 | 0x02
	regEWRPTH   = regTypeETH | bank0 | 0x03
	regETXSTL   = regTypeETH | bank0 | 0x04
	regETXSTH   = regTypeETH | bank0 | 0x05
	regETXNDL   = regTypeETH | bank0 | 0x06
	regETXNDH   = regTypeETH | bank0 | 0x07
	regERXSTL   = regTypeETH | bank0 | 0x08
	regERXSTH   = regTypeETH | bank0 | 0x09
	regERXNDL   = regTypeETH | bank0 | 0x0A
	regERXNDH   = regTypeETH | bank0 | 0x0B
	regERXRDPTL = regTypeETH | bank0 | 0x0C
	regERXRDPTH = regTypeETH | bank0 | 0x0D
	regEIE      = regTypeETH | bank0 | 0x1B
	regEIR      = regTypeETH | bank0 | 0x1C
	regECON2    = regTypeETH | bank0 | 0x1E
	regECON1    = regTypeETH | bank0 | 0x1F
)

// Bank 1 (ETH) registers.
const (
	regEHT0    = regTypeETH | bank1 | 0x00
	regEHT1    = regTypeETH | bank1 | 0x01
	regEHT2    = regTypeETH | bank1 | 0x02
	regEHT3    = regTypeETH | bank1 | 0x03
	regEHT4    = regTypeETH | bank1 | 0x04
	regEHT5    = regTypeETH | bank1 | 0x05
	regEHT6    = regTypeETH | bank1 | 0x06
	regEHT7    = regTypeETH | bank1 | 0x07
	regERXFCON = regTypeETH | bank1 | 0x18
	regEPKTCNT = regTypeETH | bank1 | 0x19
)

// Bank 2 (MAC/MII) registers.
const (
	regMACON1   = regTypeMAC | bank2 | 0x00
	regMACON2   = regTypeMAC | bank2 | 0x01
	regMACON3   = regTypeMAC | bank2 | 0x02
	regMACON4   = regTypeMAC | bank2 | 0x03
	regMABBIPG  = regTypeMAC | bank2 | 0x04
	regMAIPGL   = regTypeMAC | bank2 | 0x06
	regMAIPGH   = regTypeMAC | bank2 | 0x07
	regMACLCON2 = regTypeMAC | bank2 | 0x09
	regMAMXFLL  = regTypeMAC | bank2 | 0x0A
	regMAMXFLH  = regTypeMAC | bank2 | 0x0B
	regMICMD    = regTypeMII | bank2 | 0x12
	regMIREGADR = regTypeMII | bank2 | 0x14
	regMIWRL    = regTypeMII | bank2 | 0x16
	regMIWRH    = regTypeMII | bank2 | 0x17
	regMIRDL    = regTypeMII | bank2 | 0x18
	regMIRDH    = regTypeMII | bank2 | 0x19
)

// Bank 3 (MAC/MII/ETH) registers.
const (
	regMAADR1  = regTypeMAC | bank3 | 0x00
	regMAADR0  = regTypeMAC | bank3 | 0x01
	regMAADR3  = regTypeMAC | bank3 | 0x02
	regMAADR2  = regTypeMAC | bank3 | 0x03
	regMAADR5  = regTypeMAC | bank3 | 0x04
	regMAADR4  = regTypeMAC | bank3 | 0x05
	regMISTAT  = regTypeMII | bank3 | 0x0A
	regEREVID  = regTypeETH | bank3 | 0x12
	regECOCON  = regTypeETH | bank3 | 0x15
)

// PHY registers, accessed indirectly via MIREGADR/MICMD/MIWRx/MIRDx.
const (
	regPHCON1  = regTypePHY | 0x00
	regPHSTAT1 = regTypePHY | 0x01
	regPHCON2  = regTypePHY | 0x10
	regPHSTAT2 = regTypePHY | 0x11
	regPHIE    = regTypePHY | 0x12
	regPHIR    = regTypePHY | 0x13
)

// ECON1 bits.
const (
	econ1TXRST byte = 0x80
	econ1RXRST byte = 0x40
	econ1TXRTS byte = 0x08
	econ1RXEN  byte = 0x04
	econ1BSEL1 byte = 0x02
	econ1BSEL0 byte = 0x01
)

// ECON2 bits.
const econ2PKTDEC byte = 0x40

// EIE / EIR bits.
const (
	eieINTIE  byte = 0x80
	eiePKTIE  byte = 0x40
	eieLINKIE byte = 0x10

	eirLINKIF byte = 0x10
	eirTXIF   byte = 0x08
	eirTXERIF byte = 0x02
)

// ERXFCON bits.
const (
	erxfconUCEN  byte = 0x80
	erxfconCRCEN byte = 0x20
	erxfconHTEN  byte = 0x04
	erxfconBCEN  byte = 0x01
	erxfconMCEN  byte = 0x02
)

// MACON1 bits.
const (
	macon1TXPAUS byte = 0x08
	macon1RXPAUS byte = 0x04
	macon1MARXEN byte = 0x01
)

// MACON3 bits.
const (
	macon3PADCFGAuto byte = 0xA0
	macon3TXCRCEN    byte = 0x10
	macon3FRMLNEN    byte = 0x02
	macon3FULDPX     byte = 0x01
)

// MACON4 bits.
const macon4DEFER byte = 0x40

const (
	mabbipgFullDuplex byte = 0x15
	mabbipgHalfDuplex byte = 0x12
	maipglDefault     byte = 0x12
	maipghDefault     byte = 0x0C
	maclcon2Default   byte = 0x37
)

// PHCON1/PHCON2 bits.
const (
	phcon1PDPXMD uint16 = 0x0100
	phcon2HDLDIS uint16 = 0x0100
)

// PHIE bits.
const (
	phiePLNKIE uint16 = 0x0010
	phiePGEIE  uint16 = 0x0002
)

// PHSTAT2 bits.
const phstat2LSTAT uint16 = 0x0400

// MISTAT bits.
const mistatBUSY byte = 0x01

// EREVID mask.
const erevidREV byte = 0x1F

// ECOCON: disable CLKOUT.
const ecoconDisabled byte = 0x00

// Receive Status Vector bit.
const rsvReceivedOK uint16 = 0x0080

// Per-packet control byte: rely on MACON3 defaults (auto-pad, CRC).
const txPerPacketControl byte = 0x00
