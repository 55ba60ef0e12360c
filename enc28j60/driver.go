// Package enc28j60 implements a driver for the Microchip ENC28J60 stand-alone
// Ethernet controller, accessed over SPI.
//
// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
package enc28j60

import (
	"time"

	"github.com/pkg/errors"
)

// defaultPHYTimeout bounds MISTAT.BUSY polling, chosen to match the
// post-reset settle time already budgeted elsewhere in Init, since PHY
// register transactions complete in low microseconds in
// practice and a stuck bit past 10ms indicates dead silicon rather than a
// slow chip.
const defaultPHYTimeout = 10 * time.Millisecond

// Config configures a Driver.
type Config struct {
	MAC               [6]byte
	FullDuplex        bool
	EnableMulticastRx bool
	PHYTimeout        time.Duration
}

// Driver controls an ENC28J60 over SPI.
type Driver struct {
	spi   SPI
	clock Clock

	mac               [6]byte
	fullDuplex        bool
	enableMulticastRx bool
	phyTimeout        time.Duration

	currentBank regAddr
	nextPacket  uint16
	revID       byte
}

// New constructs a Driver. Call Init before first use.
func New(spi SPI, clock Clock, cfg Config) *Driver {
	timeout := cfg.PHYTimeout
	if timeout <= 0 {
		timeout = defaultPHYTimeout
	}
	return &Driver{
		spi:               spi,
		clock:             clock,
		mac:               cfg.MAC,
		fullDuplex:        cfg.FullDuplex,
		enableMulticastRx: cfg.EnableMulticastRx,
		phyTimeout:        timeout,
		currentBank:       regAddr(0xFFFF), // force the first SelectBank to write
	}
}

// Init performs the initialization sequence. Exact ordering is a contract:
// soft reset, disable CLKOUT, program the MAC address in reverse byte
// order, program the RX FIFO boundaries, configure receive filters, zero
// the hash table, bring the MAC out of reset, configure duplex-dependent
// timing, and finally enable RX.
func (d *Driver) Init() error {
	if err := d.softReset(); err != nil {
		return errors.Wrap(err, "soft reset")
	}
	d.clock.SleepMilliseconds(10)

	d.currentBank = regAddr(0xFFFF)
	d.nextPacket = uint16(rxBufferStart)

	rev, err := d.readReg(regEREVID)
	if err != nil {
		return errors.Wrap(err, "read revision")
	}
	d.revID = rev & erevidREV

	if err := d.writeReg(regECOCON, ecoconDisabled); err != nil {
		return err
	}

	// MAADR5 <- MAC[0] ... MAADR0 <- MAC[5]: reverse byte order.
	addrRegs := [6]regAddr{regMAADR5, regMAADR4, regMAADR3, regMAADR2, regMAADR1, regMAADR0}
	for i, reg := range addrRegs {
		if err := d.writeReg(reg, d.mac[i]); err != nil {
			return err
		}
	}

	if err := d.writeReg16(regERXSTL, regERXSTH, uint16(rxBufferStart)); err != nil {
		return err
	}
	if err := d.writeReg16(regERXNDL, regERXNDH, uint16(rxBufferStop)); err != nil {
		return err
	}
	if err := d.writeReg16(regERXRDPTL, regERXRDPTH, uint16(rxBufferStop)); err != nil {
		return err
	}

	rxf := erxfconUCEN | erxfconCRCEN | erxfconHTEN | erxfconBCEN
	if d.enableMulticastRx {
		rxf |= erxfconMCEN
	}
	if err := d.writeReg(regERXFCON, rxf); err != nil {
		return err
	}

	for _, reg := range []regAddr{regEHT0, regEHT1, regEHT2, regEHT3, regEHT4, regEHT5, regEHT6, regEHT7} {
		if err := d.writeReg(reg, 0x00); err != nil {
			return err
		}
	}

	if err := d.writeReg(regMACON2, 0x00); err != nil {
		return err
	}
	if err := d.writeReg(regMACON1, macon1TXPAUS|macon1RXPAUS|macon1MARXEN); err != nil {
		return err
	}

	macon3 := macon3PADCFGAuto | macon3TXCRCEN | macon3FRMLNEN
	if d.fullDuplex {
		macon3 |= macon3FULDPX
	}
	if err := d.writeReg(regMACON3, macon3); err != nil {
		return err
	}
	if err := d.writeReg(regMACON4, macon4DEFER); err != nil {
		return err
	}
	if err := d.writeReg16(regMAMXFLL, regMAMXFLH, maxFrameLen); err != nil {
		return err
	}

	bbipg := mabbipgHalfDuplex
	if d.fullDuplex {
		bbipg = mabbipgFullDuplex
	}
	if err := d.writeReg(regMABBIPG, bbipg); err != nil {
		return err
	}
	if err := d.writeReg(regMAIPGL, maipglDefault); err != nil {
		return err
	}
	if err := d.writeReg(regMAIPGH, maipghDefault); err != nil {
		return err
	}
	if err := d.writeReg(regMACLCON2, maclcon2Default); err != nil {
		return err
	}

	var phcon1 uint16
	if d.fullDuplex {
		phcon1 = phcon1PDPXMD
	}
	if err := d.writePhyReg(regPHCON1, phcon1); err != nil {
		return errors.Wrap(err, "PHCON1")
	}
	if err := d.writePhyReg(regPHCON2, phcon2HDLDIS); err != nil {
		return errors.Wrap(err, "PHCON2")
	}

	if err := d.writeReg(regEIR, 0x00); err != nil {
		return err
	}
	if err := d.writeReg(regEIE, eieINTIE|eiePKTIE|eieLINKIE); err != nil {
		return err
	}
	if err := d.writePhyReg(regPHIE, phiePLNKIE|phiePGEIE); err != nil {
		return errors.Wrap(err, "PHIE")
	}

	return d.writeReg(regECON1, econ1RXEN)
}

// RevisionID returns the silicon revision read during Init.
func (d *Driver) RevisionID() byte { return d.revID }

func (d *Driver) writeReg16(lo, hi regAddr, val uint16) error {
	if err := d.writeReg(lo, byte(val)); err != nil {
		return err
	}
	return d.writeReg(hi, byte(val>>8))
}

// softReset issues the System Reset Command (SRC, 0xFF), a single opcode
// byte with no address or data.
func (d *Driver) softReset() error {
	d.spi.Select(true)
	err := d.spi.Write([]byte{cmdSRC})
	d.spi.Select(false)
	return err
}

// SelectBank writes BSEL1/BSEL0 in ECON1 via Bit-Field Set/Clear only when
// the target bank differs from the cached one.
func (d *Driver) SelectBank(addr regAddr) error {
	bank := addr.bank()
	if bank == d.currentBank {
		return nil
	}

	var err error
	switch bank {
	case bank0:
		err = d.bitFieldClear(regECON1, econ1BSEL1|econ1BSEL0)
	case bank1:
		if err = d.bitFieldSet(regECON1, econ1BSEL0); err == nil {
			err = d.bitFieldClear(regECON1, econ1BSEL1)
		}
	case bank2:
		if err = d.bitFieldClear(regECON1, econ1BSEL0); err == nil {
			err = d.bitFieldSet(regECON1, econ1BSEL1)
		}
	default:
		err = d.bitFieldSet(regECON1, econ1BSEL1|econ1BSEL0)
	}
	if err != nil {
		return err
	}

	d.currentBank = bank
	return nil
}

func (d *Driver) bitFieldSet(addr regAddr, mask byte) error {
	d.spi.Select(true)
	err := d.spi.Write([]byte{cmdBFS | addr.addr(), mask})
	d.spi.Select(false)
	return err
}

func (d *Driver) bitFieldClear(addr regAddr, mask byte) error {
	d.spi.Select(true)
	err := d.spi.Write([]byte{cmdBFC | addr.addr(), mask})
	d.spi.Select(false)
	return err
}

// writeReg writes an 8-bit control register, selecting its bank first.
func (d *Driver) writeReg(addr regAddr, data byte) error {
	if err := d.SelectBank(addr); err != nil {
		return err
	}
	d.spi.Select(true)
	err := d.spi.Write([]byte{cmdWCR | addr.addr(), data})
	d.spi.Select(false)
	return err
}

// readReg reads an 8-bit control register. MAC and MII registers shift out
// a dummy byte before the data byte; ETH registers do not.
func (d *Driver) readReg(addr regAddr) (byte, error) {
	if err := d.SelectBank(addr); err != nil {
		return 0, err
	}

	if addr.isETH() {
		tx := []byte{cmdRCR | addr.addr(), 0}
		rx := make([]byte, len(tx))
		d.spi.Select(true)
		err := d.spi.Transfer(tx, rx)
		d.spi.Select(false)
		if err != nil {
			return 0, err
		}
		return rx[1], nil
	}

	tx := []byte{cmdRCR | addr.addr(), 0, 0}
	rx := make([]byte, len(tx))
	d.spi.Select(true)
	err := d.spi.Transfer(tx, rx)
	d.spi.Select(false)
	if err != nil {
		return 0, err
	}
	return rx[2], nil
}

// writePhyReg writes a 16-bit PHY register indirectly via
// MIREGADR/MIWRL/MIWRH, then blocks on MISTAT.BUSY.
func (d *Driver) writePhyReg(addr regAddr, data uint16) error {
	if err := d.writeReg(regMIREGADR, addr.addr()); err != nil {
		return err
	}
	if err := d.writeReg(regMIWRL, byte(data)); err != nil {
		return err
	}
	if err := d.writeReg(regMIWRH, byte(data>>8)); err != nil {
		return err
	}
	return d.waitPHYNotBusy()
}

// readPhyReg reads a 16-bit PHY register indirectly via
// MIREGADR/MICMD/MIRDL/MIRDH.
func (d *Driver) readPhyReg(addr regAddr) (uint16, error) {
	if err := d.writeReg(regMIREGADR, addr.addr()); err != nil {
		return 0, err
	}
	if err := d.writeReg(regMICMD, 0x01); err != nil { // MIISCAN off, MIIRD on
		return 0, err
	}
	if err := d.waitPHYNotBusy(); err != nil {
		return 0, err
	}
	if err := d.writeReg(regMICMD, 0x00); err != nil {
		return 0, err
	}

	lo, err := d.readReg(regMIRDL)
	if err != nil {
		return 0, err
	}
	hi, err := d.readReg(regMIRDH)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// waitPHYNotBusy polls MISTAT.BUSY, bounded by d.phyTimeout so a dead PHY
// returns an error instead of hanging the caller forever.
func (d *Driver) waitPHYNotBusy() error {
	deadline := d.clock.Now().Add(d.phyTimeout)
	for {
		status, err := d.readReg(regMISTAT)
		if err != nil {
			return err
		}
		if status&mistatBUSY == 0 {
			return nil
		}
		if d.clock.Now().After(deadline) {
			return &DriverError{Op: "wait", Reg: "MISTAT.BUSY", Err: ErrPHYStuck}
		}
	}
}

// writeBuffer streams the per-packet control byte followed by each chunk
// via Write Buffer Memory, supporting scatter-gather transmit.
func (d *Driver) writeBuffer(chunks [][]byte) error {
	d.spi.Select(true)
	if err := d.spi.Write([]byte{cmdWBM, txPerPacketControl}); err != nil {
		d.spi.Select(false)
		return err
	}
	for _, chunk := range chunks {
		if err := d.spi.Write(chunk); err != nil {
			d.spi.Select(false)
			return err
		}
	}
	d.spi.Select(false)
	return nil
}

// readBuffer reads len(dst) bytes via Read Buffer Memory.
func (d *Driver) readBuffer(dst []byte) error {
	d.spi.Select(true)
	if err := d.spi.Write([]byte{cmdRBM}); err != nil {
		d.spi.Select(false)
		return err
	}
	tx := make([]byte, len(dst))
	err := d.spi.Transfer(tx, dst)
	d.spi.Select(false)
	return err
}

// SendPacket transmits a scatter list of byte slices streamed back-to-back
// after the per-packet control byte. ETXND is programmed as TX_START +
// length, not length - 1, matching a known datasheet off-by-one this
// controller family is documented to require.
func (d *Driver) SendPacket(chunks [][]byte) (int, error) {
	length := 0
	for _, c := range chunks {
		length += len(c)
	}
	if length > maxFrameLen {
		return 0, ErrMsgSize
	}
	if !d.IsLinkUp() {
		return 0, ErrLinkDown
	}

	if err := d.bitFieldSet(regECON1, econ1TXRST); err != nil {
		return 0, err
	}
	if err := d.bitFieldClear(regECON1, econ1TXRST); err != nil {
		return 0, err
	}
	if err := d.bitFieldClear(regEIR, eirTXIF|eirTXERIF); err != nil {
		return 0, err
	}

	if err := d.writeReg16(regETXSTL, regETXSTH, uint16(txBufferStart)); err != nil {
		return 0, err
	}
	if err := d.writeReg16(regEWRPTL, regEWRPTH, uint16(txBufferStart)); err != nil {
		return 0, err
	}
	if err := d.writeBuffer(chunks); err != nil {
		return 0, err
	}
	if err := d.writeReg16(regETXNDL, regETXNDH, uint16(txBufferStart)+uint16(length)); err != nil {
		return 0, err
	}
	if err := d.bitFieldSet(regECON1, econ1TXRTS); err != nil {
		return 0, err
	}

	return length, nil
}

// ReceivePacket performs a non-blocking dequeue of one frame, following the
// RSV trailer and the lag-one ERXRDPT advance rule. Returns 0 when no
// packet is queued, a negative length on a receive error (frame discarded,
// pointers still advanced), or the payload length on success.
func (d *Driver) ReceivePacket(dst []byte) (int, error) {
	count, err := d.readReg(regEPKTCNT)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	if err := d.writeReg(regERDPTL, byte(d.nextPacket)); err != nil {
		return 0, err
	}
	if err := d.writeReg(regERDPTH, byte(d.nextPacket>>8)); err != nil {
		return 0, err
	}

	header := make([]byte, 6)
	if err := d.readBuffer(header); err != nil {
		return 0, err
	}

	nextPacket := uint16(header[0]) | uint16(header[1])<<8
	frameLen := uint16(header[2]) | uint16(header[3])<<8
	status := uint16(header[4]) | uint16(header[5])<<8

	d.nextPacket = nextPacket

	var n int
	if status&rsvReceivedOK != 0 {
		if int(frameLen) > maxFrameLen {
			frameLen = maxFrameLen
		}
		if int(frameLen) > len(dst) {
			frameLen = uint16(len(dst))
		}
		if err := d.readBuffer(dst[:frameLen]); err != nil {
			return 0, err
		}
		n = int(frameLen)
	} else {
		n = -1
	}

	if nextPacket == uint16(rxBufferStart) {
		if err := d.writeReg16(regERXRDPTL, regERXRDPTH, uint16(rxBufferStop)); err != nil {
			return 0, err
		}
	} else {
		if err := d.writeReg16(regERXRDPTL, regERXRDPTH, nextPacket-1); err != nil {
			return 0, err
		}
	}

	if err := d.bitFieldSet(regECON2, econ2PKTDEC); err != nil {
		return 0, err
	}

	return n, nil
}

// IsLinkUp reads PHSTAT2.LSTAT.
func (d *Driver) IsLinkUp() bool {
	status, err := d.readPhyReg(regPHSTAT2)
	if err != nil {
		return false
	}
	return status&phstat2LSTAT != 0
}

// IsLinkStateChanged tests EIR.LINKIF, clearing the latched PHY interrupt
// (PHIR) and EIR.LINKIF if set.
func (d *Driver) IsLinkStateChanged() bool {
	status, err := d.readReg(regEIR)
	if err != nil {
		return false
	}
	if status&eirLINKIF == 0 {
		return false
	}

	d.readPhyReg(regPHIR)
	d.bitFieldClear(regEIR, eirLINKIF)
	return true
}
