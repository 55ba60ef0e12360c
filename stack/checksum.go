// https://github.com/usbarmory/enc28j60
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package stack

// checksum computes the Internet checksum (RFC 1071) over b, starting from
// the given accumulator. Callers zero the checksum field of b before calling
// this and then fold the negated result back in.
//
// Sum big-endian 16-bit words, treat a trailing odd byte as the high byte of
// a zero-padded word, fold the carry twice, then return the one's
// complement.
func checksum(b []byte, start uint32) uint16 {
	sum := start

	n := len(b) - (len(b) % 2)
	for i := 0; i < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}

	sum = (sum >> 16) + (sum & 0xffff)
	sum += sum >> 16

	return ^uint16(sum)
}

// pseudoHeaderSum accumulates the IPv4 pseudo-header (src, dst, zero byte,
// protocol, transport length) used by UDP and TCP checksums.
func pseudoHeaderSum(src, dst [4]byte, protocol uint8, length uint16) uint32 {
	var sum uint32
	sum += uint32(src[0])<<8 | uint32(src[1])
	sum += uint32(src[2])<<8 | uint32(src[3])
	sum += uint32(dst[0])<<8 | uint32(dst[1])
	sum += uint32(dst[2])<<8 | uint32(dst[3])
	sum += uint32(protocol)
	sum += uint32(length)
	return sum
}

// escapeZeroChecksum substitutes 0xFFFF for a computed checksum of zero, per
// RFC 768 (a UDP checksum of 0x0000 means "no checksum computed").
func escapeZeroChecksum(sum uint16) uint16 {
	if sum == 0 {
		return 0xFFFF
	}
	return sum
}
