package packet

import (
	"net"
	"net/netip"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Tunnel types
const (
	TunnelTypeL2TPv3 = 1
	TunnelTypeGRE    = 2
	TunnelTypeVXLAN  = 8
	TunnelTypeNVGRE  = 9
)

// Tunnel encapsulation sub-TLV types
const (
	EncapSubTLVEncapsulation  = 1
	EncapSubTLVProtocolType   = 2
	EncapSubTLVColor          = 4
	EncapSubTLVEgressEndpoint = 6
	EncapSubTLVDSField        = 7
	EncapSubTLVUDPDestPort    = 8
	EncapSubTLVEmbeddedLabel  = 9

	// Sub-TLVs from this type on have a 2 octet length
	encapSubTLVExtendedLen = 128
)

type TunnelEncapsulation []EncapTunnel

type EncapTunnel struct {
	Type    uint16
	SubTLVs []EncapSubTLV
}

// EncapSubTLV holds a decoded sub-TLV value, or the raw value if the sub-TLV type
// is not known or its value failed to decode (Err set).
type EncapSubTLV struct {
	Type  uint8
	Value interface{}
	Err   error
}

type EncapVXLAN struct {
	Flags uint8
	VNI   uint32
	MAC   net.HardwareAddr
}

type EncapGRE struct {
	Key uint32
}

type EncapL2TPv3 struct {
	SessionID uint32
	Cookie    []byte
}

type EncapEgressEndpoint struct {
	Addr netip.Addr
}

func (pa *PathAttribute) decodeTunnelEncapsulation(c *cursor) error {
	tunnels := make(TunnelEncapsulation, 0, 1)
	pa.Value = tunnels

	var errs error
	for c.len() > 0 {
		t := EncapTunnel{}
		var l uint16
		err := c.decode("tunnel TLV header", &t.Type, &l)
		if err != nil {
			return multierr.Append(errs, err)
		}

		tc, err := c.sub(int(l), "tunnel TLV")
		if err != nil {
			return multierr.Append(errs, err)
		}

		for tc.len() > 0 {
			sub, err := decodeEncapSubTLV(t.Type, tc)
			if err != nil {
				errs = multierr.Append(errs, err)
				break
			}
			errs = multierr.Append(errs, sub.Err)
			t.SubTLVs = append(t.SubTLVs, sub)
		}

		tunnels = append(tunnels, t)
		pa.Value = tunnels
	}

	return errs
}

// decodeEncapSubTLV returns an error only if the sub-TLV boundaries are broken
func decodeEncapSubTLV(tunnelType uint16, c *cursor) (EncapSubTLV, error) {
	sub := EncapSubTLV{}

	var err error
	sub.Type, err = c.uint8("sub-TLV type")
	if err != nil {
		return sub, err
	}

	var l int
	if sub.Type >= encapSubTLVExtendedLen {
		x, err := c.uint16("sub-TLV length")
		if err != nil {
			return sub, err
		}
		l = int(x)
	} else {
		x, err := c.uint8("sub-TLV length")
		if err != nil {
			return sub, err
		}
		l = int(x)
	}

	vc, err := c.sub(l, "sub-TLV value")
	if err != nil {
		return sub, err
	}

	sub.Value, sub.Err = decodeEncapSubTLVValue(tunnelType, sub.Type, vc)
	if sub.Err == nil {
		sub.Err = vc.done("sub-TLV value")
	}

	if sub.Err != nil {
		sub.Err = errors.Wrapf(sub.Err, "tunnel %d sub-TLV %d", tunnelType, sub.Type)
		sub.Value = append([]byte(nil), vc.buf...)
	}

	return sub, nil
}

func decodeEncapSubTLVValue(tunnelType uint16, t uint8, c *cursor) (interface{}, error) {
	switch t {
	case EncapSubTLVEncapsulation:
		return decodeEncapsulationInfo(tunnelType, c)
	case EncapSubTLVProtocolType:
		if err := expectTLVLen(c, 2); err != nil {
			return nil, err
		}
		return c.uint16("protocol type")
	case EncapSubTLVColor:
		if err := expectTLVLen(c, extCommunityLen); err != nil {
			return nil, err
		}

		var b [extCommunityLen]byte
		if err := c.decode("color", &b); err != nil {
			return nil, err
		}

		color, ok := DecodeExtendedCommunity(b).(Color)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidDiscriminant, "color sub-TLV carries %x", b)
		}
		return color, nil
	case EncapSubTLVEgressEndpoint:
		return decodeEgressEndpoint(c)
	case EncapSubTLVDSField, EncapSubTLVEmbeddedLabel:
		if err := expectTLVLen(c, 1); err != nil {
			return nil, err
		}
		return c.uint8("sub-TLV value")
	case EncapSubTLVUDPDestPort:
		if err := expectTLVLen(c, 2); err != nil {
			return nil, err
		}
		return c.uint16("UDP destination port")
	}

	return c.rest(), nil
}

func decodeEncapsulationInfo(tunnelType uint16, c *cursor) (interface{}, error) {
	switch tunnelType {
	case TunnelTypeVXLAN, TunnelTypeNVGRE:
		if err := expectTLVLen(c, 12); err != nil {
			return nil, err
		}

		e := EncapVXLAN{}
		var err error
		if e.Flags, err = c.uint8("VXLAN flags"); err != nil {
			return nil, err
		}

		if e.VNI, err = c.uint24("VNI"); err != nil {
			return nil, err
		}

		mac, err := c.bytes(6, "MAC")
		if err != nil {
			return nil, err
		}

		// M flag
		if e.Flags&0x40 != 0 {
			e.MAC = net.HardwareAddr(mac)
		}

		_, err = c.bytes(2, "reserved")
		return e, err
	case TunnelTypeGRE:
		if err := expectTLVLen(c, 4); err != nil {
			return nil, err
		}

		key, err := c.uint32("GRE key")
		return EncapGRE{Key: key}, err
	case TunnelTypeL2TPv3:
		if c.len() < 4 || c.len() > 12 {
			return nil, errors.Wrapf(ErrUnexpectedTLVLength, "L2TPv3 encapsulation of %d bytes", c.len())
		}

		id, err := c.uint32("L2TPv3 session ID")
		if err != nil {
			return nil, err
		}
		return EncapL2TPv3{SessionID: id, Cookie: c.rest()}, nil
	}

	return c.rest(), nil
}

func decodeEgressEndpoint(c *cursor) (EncapEgressEndpoint, error) {
	if err := expectTLVLen(c, 6, 10, 22); err != nil {
		return EncapEgressEndpoint{}, err
	}

	var reserved uint32
	var afi uint16
	err := c.decode("tunnel egress endpoint", &reserved, &afi)
	if err != nil {
		return EncapEgressEndpoint{}, err
	}

	if c.len() == 0 {
		return EncapEgressEndpoint{}, nil
	}

	if addrLen(AFI(afi)) != c.len() {
		return EncapEgressEndpoint{}, errors.Wrapf(ErrUnexpectedTLVLength, "AFI %d with %d byte address", afi, c.len())
	}

	addr, err := c.addr(c.len(), "tunnel egress endpoint")
	return EncapEgressEndpoint{Addr: addr}, err
}

// expectTLVLen checks the value length of a TLV whose length is fixed
func expectTLVLen(c *cursor, want ...int) error {
	for _, w := range want {
		if c.len() == w {
			return nil
		}
	}
	return errors.Wrapf(ErrUnexpectedTLVLength, "length %d at offset %d, expected %v", c.len(), c.offset(), want)
}
