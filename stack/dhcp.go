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
	"math/rand"
	"sync"
	"time"
)

// DHCP client state machine: a
// client starts in Init, broadcasts DISCOVER and waits in AwaitOffer, sends
// REQUEST and waits in Selecting, reaches Bound once ACKed, and on lease
// renewal re-enters via RenewingInit/Renewing rather than restarting
// discovery from scratch.
type dhcpState int

const (
	dhcpInit dhcpState = iota
	dhcpAwaitOffer
	dhcpSelecting
	dhcpBound
	dhcpRenewingInit
	dhcpRenewing
)

func (s dhcpState) String() string {
	switch s {
	case dhcpInit:
		return "Init"
	case dhcpAwaitOffer:
		return "AwaitOffer"
	case dhcpSelecting:
		return "Selecting"
	case dhcpBound:
		return "Bound"
	case dhcpRenewingInit:
		return "RenewingInit"
	case dhcpRenewing:
		return "Renewing"
	default:
		return "Unknown"
	}
}

const (
	dhcpClientPort = 68
	dhcpServerPort = 67

	dhcpOpBootRequest = 1
	dhcpOpBootReply   = 2

	dhcpHTypeEthernet = 1
	dhcpHLenEthernet  = 6

	dhcpMagicCookie = 0x63825363

	dhcpFlagBroadcast = 0x8000

	// Option codes, RFC 2132.
	optPad          = 0
	optSubnetMask   = 1
	optRouter       = 3
	optDNS          = 6
	optHostname     = 12
	optRequestedIP  = 50
	optLeaseTime    = 51
	optMessageType  = 53
	optServerID     = 54
	optParamRequest = 55
	optRenewalT1    = 58
	optRebindingT2  = 59
	optClientID     = 61
	optMaxMsgSize   = 57
	optEnd          = 255

	dhcpMsgDiscover = 1
	dhcpMsgOffer    = 2
	dhcpMsgRequest  = 3
	dhcpMsgAck      = 5
	dhcpMsgNak      = 6

	dhcpAwaitOfferTimeout = 5 * time.Second
	dhcpSelectingTimeout  = 10 * time.Second
	dhcpRenewingRetry     = 5 * time.Second
	dhcpMaxRenewAttempts  = 3

	dhcpDefaultLeaseSeconds = 86400
)

// DHCPLease is the configuration learned once the client reaches Bound.
type DHCPLease struct {
	ClientIP   IPv4
	ServerIP   IPv4
	SubnetMask IPv4
	Gateway    IPv4
	DNS        IPv4
	LeaseTime  time.Duration
	T1, T2     time.Duration
	BoundAt    time.Time
}

// DHCPClient drives the lease state machine against a Host. Construct with
// NewDHCPClient, then call Tick periodically (driven by Host's poll loop)
// to advance the state machine.
type DHCPClient struct {
	host     *Host
	hostname string

	mu        sync.Mutex
	state     dhcpState
	xid       uint32
	initTime  time.Time
	lastTick  time.Time
	attempt   int
	paramList []byte

	serverID  IPv4
	offeredIP IPv4

	lease DHCPLease
}

// NewDHCPClient creates a client bound to h. hostname is optional (option
// 12 is omitted when empty).
func NewDHCPClient(h *Host, hostname string) *DHCPClient {
	c := &DHCPClient{
		host:      h,
		hostname:  hostname,
		state:     dhcpInit,
		paramList: []byte{optSubnetMask, optRouter, optDNS},
	}
	return c
}

// registerBroadcast switches the client onto the broadcast registration for
// port 68, used while awaiting an OFFER or the initial ACK, when the client
// has no unicast address of its own yet.
func (c *DHCPClient) registerBroadcast() {
	c.host.CloseUDP(dhcpClientPort)
	c.host.ListenUDPBroadcast(dhcpClientPort, c.handleDatagram)
}

// registerUnicast switches the client onto the unicast registration for
// port 68, used once a lease is held and the client renews directly against
// its server.
func (c *DHCPClient) registerUnicast() {
	c.host.CloseUDPBroadcast(dhcpClientPort)
	c.host.ListenUDP(dhcpClientPort, c.handleDatagram)
}

// State reports the client's current FSM state, exported for diagnostics.
func (c *DHCPClient) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.String()
}

// Lease returns the most recently bound lease. The zero value is returned
// before the client reaches Bound.
func (c *DHCPClient) Lease() DHCPLease {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lease
}

// Tick drives one state-machine step: at most one transition per call. The
// Host poll loop calls this every tick regardless of link state; Init
// itself gates on link state.
func (c *DHCPClient) Tick(now time.Time) {
	c.mu.Lock()
	c.lastTick = now
	state := c.state
	c.mu.Unlock()

	switch state {
	case dhcpInit:
		if c.host.nic == nil || !c.host.nic.IsLinkUp() {
			return
		}
		c.mu.Lock()
		c.xid = rand.Uint32()
		c.attempt = 0
		c.initTime = now
		c.state = dhcpAwaitOffer
		c.mu.Unlock()
		c.registerBroadcast()
		c.sendDiscover()

	case dhcpAwaitOffer:
		c.mu.Lock()
		expired := now.Sub(c.initTime) > dhcpAwaitOfferTimeout
		c.mu.Unlock()
		if expired {
			c.toInit()
		}

	case dhcpSelecting:
		c.mu.Lock()
		expired := now.Sub(c.initTime) > dhcpSelectingTimeout
		c.mu.Unlock()
		if expired {
			c.toInit()
		}

	case dhcpBound:
		c.mu.Lock()
		renew := c.lease.T1 > 0 && now.Sub(c.lease.BoundAt) > c.lease.T1
		c.mu.Unlock()
		if renew {
			c.mu.Lock()
			c.attempt = 0
			c.state = dhcpRenewingInit
			c.mu.Unlock()
		}

	case dhcpRenewingInit:
		c.mu.Lock()
		c.xid = rand.Uint32()
		c.initTime = now
		c.attempt++
		c.state = dhcpRenewing
		c.mu.Unlock()
		c.registerUnicast()
		c.sendRenewRequest()

	case dhcpRenewing:
		c.mu.Lock()
		sinceBound := now.Sub(c.lease.BoundAt)
		tooLong := sinceBound > c.lease.T2 || sinceBound > c.lease.LeaseTime || c.attempt > dhcpMaxRenewAttempts
		dueRetry := now.Sub(c.initTime) > dhcpRenewingRetry
		c.mu.Unlock()
		switch {
		case tooLong:
			c.toInit()
		case dueRetry:
			c.mu.Lock()
			c.state = dhcpRenewingInit
			c.mu.Unlock()
		}
	}
}

func (c *DHCPClient) toInit() {
	c.mu.Lock()
	c.state = dhcpInit
	c.mu.Unlock()
}

func (c *DHCPClient) sendDiscover() {
	c.mu.Lock()
	xid := c.xid
	c.mu.Unlock()

	opts := map[byte][]byte{
		optMaxMsgSize: uint16Bytes(MTU),
	}
	pkt := c.buildPacket(dhcpMsgDiscover, xid, IPv4Zero, dhcpFlagBroadcast, opts)
	if err := c.host.SendUDP4Broadcast(IPv4Zero, dhcpClientPort, dhcpServerPort, pkt); err != nil {
		c.host.logger.Errorf("dhcp: discover: %v", err)
	}
}

func (c *DHCPClient) sendSelectRequest() {
	c.mu.Lock()
	xid := c.xid
	offered := c.offeredIP
	server := c.serverID
	c.mu.Unlock()

	opts := map[byte][]byte{
		optRequestedIP: offered[:],
		optServerID:    server[:],
		optMaxMsgSize:  uint16Bytes(MTU),
	}
	pkt := c.buildPacket(dhcpMsgRequest, xid, IPv4Zero, dhcpFlagBroadcast, opts)
	if err := c.host.SendUDP4Broadcast(IPv4Zero, dhcpClientPort, dhcpServerPort, pkt); err != nil {
		c.host.logger.Errorf("dhcp: request: %v", err)
	}
}

func (c *DHCPClient) sendRenewRequest() {
	c.mu.Lock()
	xid := c.xid
	lease := c.lease
	c.mu.Unlock()

	clientID := append([]byte{0x01}, c.host.mac[:]...)
	opts := map[byte][]byte{
		optClientID:   clientID,
		optMaxMsgSize: uint16Bytes(MTU),
	}
	pkt := c.buildPacket(dhcpMsgRequest, xid, lease.ClientIP, 0, opts)
	addr := UDPAddr{IP: lease.ServerIP, Port: dhcpServerPort}
	if err := c.host.SendUDP4(addr, dhcpClientPort, pkt); err != nil {
		c.host.logger.Errorf("dhcp: renew: %v", err)
	}
}

func (c *DHCPClient) handleDatagram(src UDPAddr, srcMAC MAC, bcast bool, data []byte) {
	fields, opts, err := parseDHCPPacket(data)
	if err != nil {
		c.host.logger.Errorf("dhcp: %v", err)
		return
	}

	c.mu.Lock()
	xid := c.xid
	state := c.state
	c.mu.Unlock()

	if fields.op != dhcpOpBootReply || fields.xid != xid ||
		fields.htype != dhcpHTypeEthernet || fields.hlen != dhcpHLenEthernet ||
		fields.chaddr != c.host.mac {
		return
	}

	msgType := opts[optMessageType]
	if len(msgType) != 1 {
		return
	}

	switch msgType[0] {
	case dhcpMsgOffer:
		if state != dhcpAwaitOffer {
			return
		}
		var server IPv4
		copy(server[:], opts[optServerID])
		c.mu.Lock()
		c.offeredIP = fields.yiaddr
		c.serverID = server
		c.state = dhcpSelecting
		c.mu.Unlock()
		c.sendSelectRequest()

	case dhcpMsgAck:
		if state != dhcpSelecting && state != dhcpRenewing {
			return
		}
		if state == dhcpSelecting {
			c.host.CloseUDPBroadcast(dhcpClientPort)
		} else {
			c.host.CloseUDP(dhcpClientPort)
		}
		c.bind(fields, opts, srcMAC)

	case dhcpMsgNak:
		c.toInit()
	}
}

func (c *DHCPClient) bind(fields dhcpFields, opts map[byte][]byte, srcMAC MAC) {
	c.mu.Lock()
	now := c.lastTick
	c.mu.Unlock()
	lease := DHCPLease{ClientIP: fields.yiaddr, ServerIP: fields.siaddr, BoundAt: now}

	if v, ok := opts[optServerID]; ok && len(v) == 4 {
		copy(lease.ServerIP[:], v)
	}
	if v, ok := opts[optSubnetMask]; ok && len(v) == 4 {
		copy(lease.SubnetMask[:], v)
	}
	if v, ok := opts[optRouter]; ok && len(v) >= 4 {
		copy(lease.Gateway[:], v[:4])
	}
	if v, ok := opts[optDNS]; ok && len(v) >= 4 {
		copy(lease.DNS[:], v[:4])
	}

	leaseSeconds := uint32(dhcpDefaultLeaseSeconds)
	if v, ok := opts[optLeaseTime]; ok && len(v) == 4 {
		leaseSeconds = binary.BigEndian.Uint32(v)
	}
	lease.LeaseTime = time.Duration(leaseSeconds) * time.Second

	renewalSeconds := leaseSeconds / 2
	if v, ok := opts[optRenewalT1]; ok && len(v) == 4 {
		renewalSeconds = binary.BigEndian.Uint32(v)
	}
	lease.T1 = time.Duration(renewalSeconds) * time.Second

	rebindingSeconds := uint32(float64(leaseSeconds) * 0.875)
	if v, ok := opts[optRebindingT2]; ok && len(v) == 4 {
		rebindingSeconds = binary.BigEndian.Uint32(v)
	}
	lease.T2 = time.Duration(rebindingSeconds) * time.Second

	c.mu.Lock()
	c.state = dhcpBound
	c.lease = lease
	c.mu.Unlock()

	c.host.applyDHCPLease(lease)
	c.host.InsertARP(lease.ServerIP, srcMAC)
	c.host.logger.Infof("dhcp: bound %s via %s (lease %s, T1 %s, T2 %s)",
		lease.ClientIP, lease.ServerIP, lease.LeaseTime, lease.T1, lease.T2)
}

type dhcpFields struct {
	op, htype, hlen byte
	xid             uint32
	yiaddr, siaddr  IPv4
	chaddr          MAC
}

// buildPacket encodes a BOOTP/DHCP message per RFC 2131, with the fixed
// parameter-request list (subnet mask, router, DNS) and the optional
// hostname option.
func (c *DHCPClient) buildPacket(msgType byte, xid uint32, ciaddr IPv4, flags uint16, extra map[byte][]byte) []byte {
	buf := make([]byte, 236)
	buf[0] = dhcpOpBootRequest
	buf[1] = dhcpHTypeEthernet
	buf[2] = dhcpHLenEthernet
	buf[3] = 0 // hops
	binary.BigEndian.PutUint32(buf[4:8], xid)
	binary.BigEndian.PutUint16(buf[8:10], 0) // secs
	binary.BigEndian.PutUint16(buf[10:12], flags)
	copy(buf[12:16], ciaddr[:])
	copy(buf[28:34], c.host.mac[:])

	var opts []byte
	opts = appendOption(opts, optMessageType, []byte{msgType})
	for code, val := range extra {
		opts = appendOption(opts, code, val)
	}
	if c.hostname != "" {
		opts = appendOption(opts, optHostname, []byte(c.hostname))
	}
	opts = appendOption(opts, optParamRequest, c.paramList)
	opts = append(opts, optEnd)

	out := make([]byte, 0, len(buf)+4+len(opts))
	out = append(out, buf...)
	var cookie [4]byte
	binary.BigEndian.PutUint32(cookie[:], dhcpMagicCookie)
	out = append(out, cookie[:]...)
	out = append(out, opts...)
	return out
}

func appendOption(opts []byte, code byte, val []byte) []byte {
	opts = append(opts, code, byte(len(val)))
	return append(opts, val...)
}

func uint16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// parseDHCPPacket decodes the fixed BOOTP header and option TLVs.
func parseDHCPPacket(data []byte) (dhcpFields, map[byte][]byte, error) {
	var f dhcpFields
	if len(data) < 240 {
		return f, nil, ErrMalformedFrame
	}
	f.op = data[0]
	f.htype = data[1]
	f.hlen = data[2]
	f.xid = binary.BigEndian.Uint32(data[4:8])
	copy(f.yiaddr[:], data[16:20])
	copy(f.siaddr[:], data[20:24])
	copy(f.chaddr[:], data[28:34])

	if binary.BigEndian.Uint32(data[236:240]) != dhcpMagicCookie {
		return f, nil, ErrMalformedFrame
	}

	opts := make(map[byte][]byte)
	i := 240
	for i < len(data) {
		code := data[i]
		if code == optEnd {
			break
		}
		if code == optPad {
			i++
			continue
		}
		if i+1 >= len(data) {
			break
		}
		l := int(data[i+1])
		start := i + 2
		end := start + l
		if end > len(data) {
			break
		}
		opts[code] = data[start:end]
		i = end
	}
	return f, opts, nil
}
