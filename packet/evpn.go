package packet

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

type EVPNRouteType uint8

const (
	EVPNEthernetADRoute         EVPNRouteType = 1
	EVPNMACIPAdvertisementRoute EVPNRouteType = 2
	EVPNInclusiveMulticastRoute EVPNRouteType = 3
	EVPNEthernetSegmentRoute    EVPNRouteType = 4
	EVPNIPPrefixRoute           EVPNRouteType = 5
)

type ESIType uint8

const (
	ESIArbitrary ESIType = 0
	ESILACP      ESIType = 1
	ESIMSTP      ESIType = 2
	ESIMAC       ESIType = 3
	ESIRouterID  ESIType = 4
	ESIAS        ESIType = 5

	esiLen = 10
)

// ESI is an Ethernet Segment Identifier. Value always holds the 9 octets following
// the type; the remaining fields are set according to Type.
type ESI struct {
	Type  ESIType
	Value [9]byte

	// System MAC (LACP, MAC) or root bridge MAC (MSTP)
	MAC net.HardwareAddr

	// CE LACP port key (LACP) or root bridge priority (MSTP)
	Key uint16

	RouterID      netip.Addr
	AS            uint32
	Discriminator uint32
}

type EVPNEthernetAD struct {
	RD          RouteDistinguisher
	ESI         ESI
	EthernetTag uint32
	Label       uint32
}

type EVPNMACIPAdvertisement struct {
	RD          RouteDistinguisher
	ESI         ESI
	EthernetTag uint32
	MAC         net.HardwareAddr
	IP          netip.Addr
	Labels      []uint32
}

type EVPNInclusiveMulticast struct {
	RD                RouteDistinguisher
	EthernetTag       uint32
	OriginatingRouter netip.Addr
}

type EVPNEthernetSegment struct {
	RD                RouteDistinguisher
	ESI               ESI
	OriginatingRouter netip.Addr
}

type EVPNIPPrefix struct {
	RD          RouteDistinguisher
	ESI         ESI
	EthernetTag uint32
	Prefix      netip.Prefix
	GatewayIP   netip.Addr
	Label       uint32
}

func (EVPNEthernetAD) isNLRI()         {}
func (EVPNMACIPAdvertisement) isNLRI() {}
func (EVPNInclusiveMulticast) isNLRI() {}
func (EVPNEthernetSegment) isNLRI()    {}
func (EVPNIPPrefix) isNLRI()           {}

func (r EVPNEthernetAD) String() string {
	return fmt.Sprintf("evpn ethernet-ad %s esi %s tag %d label %d", r.RD, r.ESI, r.EthernetTag, r.Label)
}

func (r EVPNMACIPAdvertisement) String() string {
	return fmt.Sprintf("evpn mac-ip %s esi %s tag %d mac %s ip %s labels %v", r.RD, r.ESI, r.EthernetTag, r.MAC, r.IP, r.Labels)
}

func (r EVPNInclusiveMulticast) String() string {
	return fmt.Sprintf("evpn imet %s tag %d router %s", r.RD, r.EthernetTag, r.OriginatingRouter)
}

func (r EVPNEthernetSegment) String() string {
	return fmt.Sprintf("evpn es %s esi %s router %s", r.RD, r.ESI, r.OriginatingRouter)
}

func (r EVPNIPPrefix) String() string {
	return fmt.Sprintf("evpn ip-prefix %s esi %s tag %d %s gw %s label %d", r.RD, r.ESI, r.EthernetTag, r.Prefix, r.GatewayIP, r.Label)
}

func (e ESI) String() string {
	return fmt.Sprintf("%d:%x", e.Type, e.Value)
}

// decodeEVPNRoutes decodes a list of {type, length, route}. Routes that fail to
// decode are kept as MalformedNLRI since their length is known.
func decodeEVPNRoutes(c *cursor) ([]NLRI, error) {
	routes := make([]NLRI, 0)

	for c.len() > 0 {
		off := c.offset()

		var typ, l uint8
		err := c.decode("EVPN route header", &typ, &l)
		if err != nil {
			return routes, err
		}

		rc, err := c.sub(int(l), "EVPN route")
		if err != nil {
			return routes, err
		}

		r, err := decodeEVPNRoute(EVPNRouteType(typ), rc)
		if err == nil {
			err = rc.done("EVPN route")
		}

		if err != nil {
			routes = append(routes, MalformedNLRI{Offset: off, Raw: append([]byte(nil), rc.buf...), Err: err})
			continue
		}
		routes = append(routes, r)
	}

	return routes, nil
}

func decodeEVPNRoute(t EVPNRouteType, c *cursor) (NLRI, error) {
	switch t {
	case EVPNEthernetADRoute:
		return decodeEVPNEthernetAD(c)
	case EVPNMACIPAdvertisementRoute:
		return decodeEVPNMACIPAdvertisement(c)
	case EVPNInclusiveMulticastRoute:
		return decodeEVPNInclusiveMulticast(c)
	case EVPNEthernetSegmentRoute:
		return decodeEVPNEthernetSegment(c)
	case EVPNIPPrefixRoute:
		return decodeEVPNIPPrefix(c)
	}
	return nil, errors.Wrapf(ErrInvalidDiscriminant, "EVPN route type %d", t)
}

func decodeESI(c *cursor) (ESI, error) {
	esi := ESI{}

	var t uint8
	err := c.decode("ESI", &t, &esi.Value)
	if err != nil {
		return esi, err
	}
	esi.Type = ESIType(t)

	v := esi.Value[:]
	switch esi.Type {
	case ESIArbitrary:
		return esi, nil
	case ESILACP, ESIMSTP:
		esi.MAC = net.HardwareAddr(append([]byte(nil), v[:6]...))
		esi.Key = uint16(v[6])<<8 | uint16(v[7])
	case ESIMAC:
		esi.MAC = net.HardwareAddr(append([]byte(nil), v[:6]...))
		esi.Discriminator = uint32(v[6])<<16 | uint32(v[7])<<8 | uint32(v[8])
		return esi, nil
	case ESIRouterID:
		esi.RouterID = netip.AddrFrom4([4]byte(v[:4]))
		esi.Discriminator = be32(v[4:8])
	case ESIAS:
		esi.AS = be32(v[:4])
		esi.Discriminator = be32(v[4:8])
	default:
		return esi, errors.Wrapf(ErrInvalidDiscriminant, "ESI type %d", esi.Type)
	}

	if v[8] != 0 {
		return esi, errors.Wrapf(ErrInvalidDiscriminant, "ESI type %d with non-zero last octet %#02x", esi.Type, v[8])
	}
	return esi, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func decodeEVPNEthernetAD(c *cursor) (NLRI, error) {
	if err := expectLen("EVPN Ethernet A-D route", c.len(), 25); err != nil {
		return nil, err
	}

	r := EVPNEthernetAD{}
	var err error
	if r.RD, err = decodeRD(c); err != nil {
		return nil, err
	}

	if r.ESI, err = decodeESI(c); err != nil {
		return nil, err
	}

	if r.EthernetTag, err = c.uint32("ethernet tag"); err != nil {
		return nil, err
	}

	if r.Label, err = c.uint24("MPLS label"); err != nil {
		return nil, err
	}

	return r, nil
}

func decodeEVPNMACIPAdvertisement(c *cursor) (NLRI, error) {
	r := EVPNMACIPAdvertisement{}
	var err error
	if r.RD, err = decodeRD(c); err != nil {
		return nil, err
	}

	if r.ESI, err = decodeESI(c); err != nil {
		return nil, err
	}

	if r.EthernetTag, err = c.uint32("ethernet tag"); err != nil {
		return nil, err
	}

	macLen, err := c.uint8("MAC address length")
	if err != nil {
		return nil, err
	}

	if macLen != 48 {
		return nil, errors.Wrapf(ErrLengthMismatch, "MAC address length %d", macLen)
	}

	mac, err := c.bytes(6, "MAC address")
	if err != nil {
		return nil, err
	}
	r.MAC = net.HardwareAddr(mac)

	ipLen, err := c.uint8("IP address length")
	if err != nil {
		return nil, err
	}

	if r.IP, err = addrFromBits(c, ipLen, "IP address"); err != nil {
		return nil, err
	}

	// MPLS label 1 and optionally MPLS label 2
	for i := 0; i < 2 && (i == 0 || c.len() > 0); i++ {
		label, err := c.uint24("MPLS label")
		if err != nil {
			return nil, err
		}
		r.Labels = append(r.Labels, label)
	}

	return r, nil
}

func decodeEVPNInclusiveMulticast(c *cursor) (NLRI, error) {
	r := EVPNInclusiveMulticast{}
	var err error
	if r.RD, err = decodeRD(c); err != nil {
		return nil, err
	}

	if r.EthernetTag, err = c.uint32("ethernet tag"); err != nil {
		return nil, err
	}

	ipLen, err := c.uint8("IP address length")
	if err != nil {
		return nil, err
	}

	if ipLen == 0 {
		return nil, errors.Wrap(ErrLengthMismatch, "originating router address missing")
	}

	if r.OriginatingRouter, err = addrFromBits(c, ipLen, "originating router"); err != nil {
		return nil, err
	}

	return r, nil
}

func decodeEVPNEthernetSegment(c *cursor) (NLRI, error) {
	// RD, ESI, address length and at least an IPv4 address
	if c.len() < rdLen+esiLen+1+4 {
		return nil, errors.Wrapf(ErrLengthMismatch, "Ethernet Segment route of %d bytes", c.len())
	}

	r := EVPNEthernetSegment{}
	var err error
	if r.RD, err = decodeRD(c); err != nil {
		return nil, err
	}

	if r.ESI, err = decodeESI(c); err != nil {
		return nil, err
	}

	ipLen, err := c.uint8("IP address length")
	if err != nil {
		return nil, err
	}

	if ipLen == 0 {
		return nil, errors.Wrap(ErrLengthMismatch, "originating router address missing")
	}

	if r.OriginatingRouter, err = addrFromBits(c, ipLen, "originating router"); err != nil {
		return nil, err
	}

	return r, nil
}

func decodeEVPNIPPrefix(c *cursor) (NLRI, error) {
	if err := expectLen("EVPN IP prefix route", c.len(), 34, 58); err != nil {
		return nil, err
	}

	n := 4
	if c.len() == 58 {
		n = 16
	}

	r := EVPNIPPrefix{}
	var err error
	if r.RD, err = decodeRD(c); err != nil {
		return nil, err
	}

	if r.ESI, err = decodeESI(c); err != nil {
		return nil, err
	}

	if r.EthernetTag, err = c.uint32("ethernet tag"); err != nil {
		return nil, err
	}

	pfxlen, err := c.uint8("IP prefix length")
	if err != nil {
		return nil, err
	}

	if int(pfxlen) > n*OctetLen {
		return nil, errors.Wrapf(ErrLengthMismatch, "IP prefix length %d", pfxlen)
	}

	addr, err := c.addr(n, "IP prefix")
	if err != nil {
		return nil, err
	}
	r.Prefix = netip.PrefixFrom(addr, int(pfxlen))
	if r.Prefix.Masked().Addr() != addr {
		return nil, errors.Wrapf(ErrNonZeroPaddingBits, "IP prefix %s", r.Prefix)
	}

	if r.GatewayIP, err = c.addr(n, "gateway IP"); err != nil {
		return nil, err
	}

	if r.Label, err = c.uint24("MPLS label"); err != nil {
		return nil, err
	}

	return r, nil
}
