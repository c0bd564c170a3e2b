package net

import (
	"net/netip"

	"github.com/pkg/errors"
)

// OctetLen is the number of bits in an octet
const OctetLen = 8

var (
	// ErrNonZeroPaddingBits is returned when bits beyond a prefix length are set
	ErrNonZeroPaddingBits = errors.New("non-zero padding bits")

	// ErrPrefixLength is returned when a prefix length exceeds the address width
	ErrPrefixLength = errors.New("prefix length exceeds address width")
)

// WireLen returns the number of octets a prefix of pfxlen bits occupies on the wire
func WireLen(pfxlen uint8) int {
	return (int(pfxlen) + OctetLen - 1) / OctetLen
}

// PrefixFromWire creates a prefix of pfxlen bits from its significant octets b.
// addrLen is the width of the address family in octets (4 or 16).
func PrefixFromWire(b []byte, pfxlen uint8, addrLen int) (netip.Prefix, error) {
	return PatternFromWire(b, 0, pfxlen, addrLen)
}

// PatternFromWire places the bits [offset, pfxlen) taken from b into an address of
// addrLen octets. Bits of b beyond pfxlen-offset have to be zero.
func PatternFromWire(b []byte, offset uint8, pfxlen uint8, addrLen int) (netip.Prefix, error) {
	if int(pfxlen) > addrLen*OctetLen || offset > pfxlen {
		return netip.Prefix{}, errors.Wrapf(ErrPrefixLength, "offset %d length %d for %d bit address", offset, pfxlen, addrLen*OctetLen)
	}

	n := pfxlen - offset
	if len(b) != WireLen(n) {
		return netip.Prefix{}, errors.Wrapf(ErrPrefixLength, "%d bits need %d octets, got %d", n, WireLen(n), len(b))
	}

	if n%OctetLen != 0 {
		mask := byte(0xff) >> (n % OctetLen)
		if b[len(b)-1]&mask != 0 {
			return netip.Prefix{}, errors.Wrapf(ErrNonZeroPaddingBits, "last octet %#02x of /%d", b[len(b)-1], pfxlen)
		}
	}

	var addr [16]byte
	if offset%OctetLen == 0 {
		copy(addr[offset/OctetLen:], b)
	} else {
		for i := uint8(0); i < n; i++ {
			if b[i/OctetLen]&(0x80>>(i%OctetLen)) == 0 {
				continue
			}
			pos := offset + i
			addr[pos/OctetLen] |= 0x80 >> (pos % OctetLen)
		}
	}

	if addrLen == 4 {
		return netip.PrefixFrom(netip.AddrFrom4([4]byte(addr[:4])), int(pfxlen)), nil
	}
	return netip.PrefixFrom(netip.AddrFrom16(addr), int(pfxlen)), nil
}

// PrefixToWire returns the significant octets of pfx
func PrefixToWire(pfx netip.Prefix) []byte {
	addr := pfx.Masked().Addr().AsSlice()
	return addr[:WireLen(uint8(pfx.Bits()))]
}
