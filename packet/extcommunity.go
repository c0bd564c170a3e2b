package packet

import (
	"encoding/binary"
	"math"
	"net"
	"net/netip"

	"github.com/pkg/errors"
)

const extCommunityLen = 8

// Extended community types (high octet)
const (
	ExtTypeTransitiveAS2       = 0x00
	ExtTypeTransitiveIPv4      = 0x01
	ExtTypeTransitiveAS4       = 0x02
	ExtTypeTransitiveOpaque    = 0x03
	ExtTypeTransitiveQoS       = 0x04
	ExtTypeTransitiveCoS       = 0x05
	ExtTypeEVPN                = 0x06
	ExtTypeFlowSpecRedirectIP  = 0x08
	ExtTypeNonTransitiveAS2    = 0x40
	ExtTypeNonTransitiveIPv4   = 0x41
	ExtTypeNonTransitiveAS4    = 0x42
	ExtTypeNonTransitiveOpaque = 0x43
	ExtTypeNonTransitiveQoS    = 0x44
	ExtTypeExperimental        = 0x80
	ExtTypeExperimentalIPv4    = 0x81
	ExtTypeExperimentalAS4     = 0x82
)

// Extended community sub-types
const (
	ExtSubTypeRouteTarget       = 0x02
	ExtSubTypeRouteOrigin       = 0x03
	ExtSubTypeLinkBandwidth     = 0x04
	ExtSubTypeOSPFDomainID      = 0x05
	ExtSubTypeOSPFRouteType     = 0x06
	ExtSubTypeOSPFRouterID      = 0x07
	ExtSubTypeBGPDataCollection = 0x08
	ExtSubTypeSourceAS          = 0x09
	ExtSubTypeL2VPNID           = 0x0a
	ExtSubTypeVRFRouteImport    = 0x0b
	ExtSubTypeColor             = 0x0b
	ExtSubTypeEncapsulation     = 0x0c
	ExtSubTypeDefaultGateway    = 0x0d
	ExtSubTypeVPNDistinguisher  = 0x10

	ExtSubTypeMACMobility   = 0x00
	ExtSubTypeESILabel      = 0x01
	ExtSubTypeESImportRT    = 0x02
	ExtSubTypeRouterMAC     = 0x03
	ExtSubTypeL2Attributes  = 0x04
	ExtSubTypeTrafficRate   = 0x06
	ExtSubTypeTrafficAction = 0x07
	ExtSubTypeRedirect      = 0x08
	ExtSubTypeTrafficMark   = 0x09
	ExtSubTypeL2Info        = 0x0a
)

// ExtendedCommunity is implemented by all decoded extended communities
type ExtendedCommunity interface {
	isExtendedCommunity()
}

// AdminKind is the format of the global administrator field
type AdminKind uint8

const (
	AdminAS2 AdminKind = iota
	AdminIPv4
	AdminAS4
)

// ExtAdmin is the {global administrator, local administrator} layout shared by
// the AS2, IPv4 and AS4 specific communities. AS is set for AdminAS2 and AdminAS4,
// Addr for AdminIPv4.
type ExtAdmin struct {
	Kind  AdminKind
	AS    uint32
	Addr  netip.Addr
	Value uint32
}

type RouteTarget ExtAdmin
type RouteOrigin ExtAdmin
type OSPFDomainID ExtAdmin
type SourceAS ExtAdmin
type VRFRouteImport ExtAdmin

// Redirect is the flow-spec redirect to VRF action
type Redirect ExtAdmin

// AdminSpecific holds administrator specific communities without a dedicated type
// (BGP data collection, L2VPN ID, VPN distinguisher)
type AdminSpecific struct {
	TypeHigh uint8
	SubType  uint8
	ExtAdmin
}

type LinkBandwidth struct {
	AS        uint16
	Bandwidth float32
}

type OSPFRouterID struct {
	Addr netip.Addr
}

type OSPFRouteType struct {
	Area      netip.Addr
	RouteType uint8
	Options   uint8
}

type Color struct {
	Flags uint16
	Color uint32
}

type Encapsulation struct {
	TunnelType uint16
}

type DefaultGateway struct{}

type QoSMarking struct {
	Flags           uint8
	SetNumber       uint8
	Technology      uint8
	MarkingO        uint16
	MarkingA        uint8
	ProcessingCount uint8
}

type CoSCapability struct {
	Flags [7]byte
}

type MACMobility struct {
	Sticky   bool
	Sequence uint32
}

type ESILabel struct {
	SingleActive bool
	Label        uint32
}

type ESImportRouteTarget struct {
	MAC net.HardwareAddr
}

type RouterMAC struct {
	MAC net.HardwareAddr
}

type EVPNL2Attributes struct {
	Flags uint16
	MTU   uint16
}

// TrafficRate limits matching traffic to Rate bytes per second
type TrafficRate struct {
	AS   uint16
	Rate float32
}

type TrafficAction struct {
	Sample   bool
	Terminal bool
}

type TrafficMarking struct {
	DSCP uint8
}

// L2Info is the RFC 4761 Layer2 Info community
type L2Info struct {
	EncapsType   uint8
	ControlFlags uint8
	MTU          uint16
}

type RedirectIPNextHop struct {
	Addr netip.Addr
	Copy bool
}

type UnknownExtCommunity struct {
	TypeHigh uint8
	SubType  uint8
	Raw      [6]byte
}

func (RouteTarget) isExtendedCommunity()         {}
func (RouteOrigin) isExtendedCommunity()         {}
func (OSPFDomainID) isExtendedCommunity()        {}
func (SourceAS) isExtendedCommunity()            {}
func (VRFRouteImport) isExtendedCommunity()      {}
func (Redirect) isExtendedCommunity()            {}
func (AdminSpecific) isExtendedCommunity()       {}
func (LinkBandwidth) isExtendedCommunity()       {}
func (OSPFRouterID) isExtendedCommunity()        {}
func (OSPFRouteType) isExtendedCommunity()       {}
func (Color) isExtendedCommunity()               {}
func (Encapsulation) isExtendedCommunity()       {}
func (DefaultGateway) isExtendedCommunity()      {}
func (QoSMarking) isExtendedCommunity()          {}
func (CoSCapability) isExtendedCommunity()       {}
func (MACMobility) isExtendedCommunity()         {}
func (ESILabel) isExtendedCommunity()            {}
func (ESImportRouteTarget) isExtendedCommunity() {}
func (RouterMAC) isExtendedCommunity()           {}
func (EVPNL2Attributes) isExtendedCommunity()    {}
func (TrafficRate) isExtendedCommunity()         {}
func (TrafficAction) isExtendedCommunity()       {}
func (TrafficMarking) isExtendedCommunity()      {}
func (L2Info) isExtendedCommunity()              {}
func (RedirectIPNextHop) isExtendedCommunity()   {}
func (UnknownExtCommunity) isExtendedCommunity() {}

func (pa *PathAttribute) decodeExtendedCommunities(c *cursor) error {
	if c.len()%extCommunityLen != 0 {
		return errors.Wrapf(ErrLengthMismatch, "EXTENDED_COMMUNITIES length %d is not a multiple of %d", c.len(), extCommunityLen)
	}

	comms := make(ExtendedCommunities, 0, c.len()/extCommunityLen)
	for c.len() > 0 {
		var b [extCommunityLen]byte
		if err := c.decode("extended community", &b); err != nil {
			return err
		}
		comms = append(comms, DecodeExtendedCommunity(b))
	}

	pa.Value = comms
	return nil
}

// DecodeExtendedCommunity decodes a single extended community. Unknown types and
// sub-types decode to UnknownExtCommunity.
func DecodeExtendedCommunity(b [extCommunityLen]byte) ExtendedCommunity {
	typeHigh, subType, v := b[0], b[1], b[2:]

	switch typeHigh {
	case ExtTypeTransitiveAS2, ExtTypeNonTransitiveAS2:
		if subType == ExtSubTypeLinkBandwidth {
			return LinkBandwidth{
				AS:        binary.BigEndian.Uint16(v),
				Bandwidth: math.Float32frombits(binary.BigEndian.Uint32(v[2:])),
			}
		}
		if ec := decodeAdminCommunity(typeHigh, subType, extAdmin(AdminAS2, v)); ec != nil {
			return ec
		}
	case ExtTypeTransitiveIPv4, ExtTypeNonTransitiveIPv4:
		if subType == ExtSubTypeOSPFRouterID {
			return OSPFRouterID{Addr: netip.AddrFrom4([4]byte(v[:4]))}
		}
		if ec := decodeAdminCommunity(typeHigh, subType, extAdmin(AdminIPv4, v)); ec != nil {
			return ec
		}
	case ExtTypeTransitiveAS4, ExtTypeNonTransitiveAS4:
		if ec := decodeAdminCommunity(typeHigh, subType, extAdmin(AdminAS4, v)); ec != nil {
			return ec
		}
	case ExtTypeTransitiveOpaque, ExtTypeNonTransitiveOpaque:
		switch subType {
		case ExtSubTypeOSPFRouteType:
			return OSPFRouteType{
				Area:      netip.AddrFrom4([4]byte(v[:4])),
				RouteType: v[4],
				Options:   v[5],
			}
		case ExtSubTypeColor:
			return Color{
				Flags: binary.BigEndian.Uint16(v),
				Color: binary.BigEndian.Uint32(v[2:]),
			}
		case ExtSubTypeEncapsulation:
			return Encapsulation{TunnelType: binary.BigEndian.Uint16(v[4:])}
		case ExtSubTypeDefaultGateway:
			return DefaultGateway{}
		}
	case ExtTypeTransitiveQoS, ExtTypeNonTransitiveQoS:
		// No sub-type, the second octet holds the flags
		return QoSMarking{
			Flags:           subType,
			SetNumber:       v[0],
			Technology:      v[1],
			MarkingO:        binary.BigEndian.Uint16(v[2:]),
			MarkingA:        v[4],
			ProcessingCount: v[5],
		}
	case ExtTypeTransitiveCoS:
		cos := CoSCapability{}
		copy(cos.Flags[:], b[1:])
		return cos
	case ExtTypeEVPN:
		if ec := decodeEVPNCommunity(subType, v); ec != nil {
			return ec
		}
	case ExtTypeExperimental:
		if ec := decodeFlowSpecAction(subType, v); ec != nil {
			return ec
		}
	case ExtTypeExperimentalIPv4:
		if subType == ExtSubTypeRedirect {
			return Redirect(extAdmin(AdminIPv4, v))
		}
	case ExtTypeExperimentalAS4:
		if subType == ExtSubTypeRedirect {
			return Redirect(extAdmin(AdminAS4, v))
		}
	case ExtTypeFlowSpecRedirectIP:
		if subType == 0x00 {
			return RedirectIPNextHop{
				Addr: netip.AddrFrom4([4]byte(v[:4])),
				Copy: v[5]&0x01 != 0,
			}
		}
	}

	u := UnknownExtCommunity{
		TypeHigh: typeHigh,
		SubType:  subType,
	}
	copy(u.Raw[:], v)
	return u
}

func extAdmin(kind AdminKind, v []byte) ExtAdmin {
	a := ExtAdmin{
		Kind: kind,
	}

	switch kind {
	case AdminAS2:
		a.AS = uint32(binary.BigEndian.Uint16(v))
		a.Value = binary.BigEndian.Uint32(v[2:])
	case AdminIPv4:
		a.Addr = netip.AddrFrom4([4]byte(v[:4]))
		a.Value = uint32(binary.BigEndian.Uint16(v[4:]))
	case AdminAS4:
		a.AS = binary.BigEndian.Uint32(v)
		a.Value = uint32(binary.BigEndian.Uint16(v[4:]))
	}

	return a
}

func decodeAdminCommunity(typeHigh, subType uint8, a ExtAdmin) ExtendedCommunity {
	switch subType {
	case ExtSubTypeRouteTarget:
		return RouteTarget(a)
	case ExtSubTypeRouteOrigin:
		return RouteOrigin(a)
	case ExtSubTypeOSPFDomainID:
		return OSPFDomainID(a)
	case ExtSubTypeSourceAS:
		if a.Kind != AdminIPv4 {
			return SourceAS(a)
		}
	case ExtSubTypeVRFRouteImport:
		if a.Kind == AdminIPv4 {
			return VRFRouteImport(a)
		}
	case ExtSubTypeBGPDataCollection, ExtSubTypeL2VPNID, ExtSubTypeVPNDistinguisher:
		return AdminSpecific{
			TypeHigh: typeHigh,
			SubType:  subType,
			ExtAdmin: a,
		}
	}
	return nil
}

func decodeEVPNCommunity(subType uint8, v []byte) ExtendedCommunity {
	switch subType {
	case ExtSubTypeMACMobility:
		return MACMobility{
			Sticky:   v[0]&0x01 != 0,
			Sequence: binary.BigEndian.Uint32(v[2:]),
		}
	case ExtSubTypeESILabel:
		return ESILabel{
			SingleActive: v[0]&0x01 != 0,
			Label:        uint32(v[3])<<16 | uint32(v[4])<<8 | uint32(v[5]),
		}
	case ExtSubTypeESImportRT:
		return ESImportRouteTarget{MAC: net.HardwareAddr(append([]byte(nil), v...))}
	case ExtSubTypeRouterMAC:
		return RouterMAC{MAC: net.HardwareAddr(append([]byte(nil), v...))}
	case ExtSubTypeL2Attributes:
		return EVPNL2Attributes{
			Flags: binary.BigEndian.Uint16(v),
			MTU:   binary.BigEndian.Uint16(v[2:]),
		}
	}
	return nil
}

func decodeFlowSpecAction(subType uint8, v []byte) ExtendedCommunity {
	switch subType {
	case ExtSubTypeTrafficRate:
		return TrafficRate{
			AS:   binary.BigEndian.Uint16(v),
			Rate: math.Float32frombits(binary.BigEndian.Uint32(v[2:])),
		}
	case ExtSubTypeTrafficAction:
		return TrafficAction{
			Sample:   v[5]&0x02 != 0,
			Terminal: v[5]&0x01 != 0,
		}
	case ExtSubTypeRedirect:
		return Redirect(extAdmin(AdminAS2, v))
	case ExtSubTypeTrafficMark:
		return TrafficMarking{DSCP: v[5] & 0x3f}
	case ExtSubTypeL2Info:
		return L2Info{
			EncapsType:   v[0],
			ControlFlags: v[1],
			MTU:          binary.BigEndian.Uint16(v[2:]),
		}
	}
	return nil
}
