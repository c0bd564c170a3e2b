package packet

import (
	"fmt"
	"net/netip"
)

type MsgType uint8
type AttrTypeCode uint8
type AFI uint16
type SAFI uint8

const (
	OctetLen = 8

	MarkerLen = 16
	HeaderLen = 19
	MinLen    = 19
	MaxLen    = 4096

	// ExtendedMaxLen is the maximum message length once extended messages are negotiated
	ExtendedMaxLen = 65535

	OpenMsg         = 1
	UpdateMsg       = 2
	NotificationMsg = 3
	KeepaliveMsg    = 4
	RouteRefreshMsg = 5

	// Path attribute flags
	FlagOptional       = 0x80
	FlagTransitive     = 0x40
	FlagPartial        = 0x20
	FlagExtendedLength = 0x10

	// ORIGIN values
	IGP        = 0
	EGP        = 1
	INCOMPLETE = 2

	// ASPath Segment Types
	ASSet            = 1
	ASSequence       = 2
	ASConfedSequence = 3
	ASConfedSet      = 4
)

// Attribute Type Codes
const (
	OriginAttr         AttrTypeCode = 1
	ASPathAttr         AttrTypeCode = 2
	NextHopAttr        AttrTypeCode = 3
	MEDAttr            AttrTypeCode = 4
	LocalPrefAttr      AttrTypeCode = 5
	AtomicAggrAttr     AttrTypeCode = 6
	AggregatorAttr     AttrTypeCode = 7
	CommunitiesAttr    AttrTypeCode = 8
	OriginatorIDAttr   AttrTypeCode = 9
	ClusterListAttr    AttrTypeCode = 10
	MPReachNLRIAttr    AttrTypeCode = 14
	MPUnreachNLRIAttr  AttrTypeCode = 15
	ExtCommunitiesAttr AttrTypeCode = 16
	AS4PathAttr        AttrTypeCode = 17
	AS4AggregatorAttr  AttrTypeCode = 18
	PMSITunnelAttr     AttrTypeCode = 22
	TunnelEncapAttr    AttrTypeCode = 23
	AIGPAttr           AttrTypeCode = 26
	LinkStateAttr      AttrTypeCode = 29
	LargeCommunityAttr AttrTypeCode = 32
	AttrSetAttr        AttrTypeCode = 128
)

const (
	AFIIPv4      AFI = 1
	AFIIPv6      AFI = 2
	AFIL2VPN     AFI = 25
	AFILinkState AFI = 16388
)

const (
	SAFIUnicast               SAFI = 1
	SAFIMulticast             SAFI = 2
	SAFILabeledUnicast        SAFI = 4
	SAFIMcastVPN              SAFI = 5
	SAFIVPLS                  SAFI = 65
	SAFIEVPN                  SAFI = 70
	SAFILinkState             SAFI = 71
	SAFILinkStateVPN          SAFI = 72
	SAFIMPLSVPN               SAFI = 128
	SAFIMPLSVPNMulticast      SAFI = 129
	SAFIRouteTargetConstraint SAFI = 132
	SAFIFlowSpec              SAFI = 133
	SAFIFlowSpecVPN           SAFI = 134
)

type BGPMessage struct {
	Header *BGPHeader
	Body   *BGPUpdate
}

type BGPHeader struct {
	Length uint16
	Type   MsgType
}

// BGPUpdate is a decoded UPDATE message body. Errors holds every failure recorded
// while decoding; the remaining fields hold everything that could be decoded.
type BGPUpdate struct {
	WithdrawnRoutesLen uint16
	WithdrawnRoutes    []NLRI
	TotalPathAttrLen   uint16
	PathAttributes     []PathAttribute
	NLRI               []NLRI
	AddPath            bool
	Errors             []error
}

type PathAttribute struct {
	Length         uint16
	Optional       bool
	Transitive     bool
	Partial        bool
	ExtendedLength bool
	TypeCode       AttrTypeCode
	Offset         int
	Value          AttrValue
	Err            error
}

// HeaderLen returns the length of the attribute header on the wire
func (pa *PathAttribute) HeaderLen() int {
	if pa.ExtendedLength {
		return 4
	}
	return 3
}

// Attr returns the first path attribute of type t or nil
func (u *BGPUpdate) Attr(t AttrTypeCode) *PathAttribute {
	for i := range u.PathAttributes {
		if u.PathAttributes[i].TypeCode == t {
			return &u.PathAttributes[i]
		}
	}
	return nil
}

// AttrValue is implemented by all decoded path attribute values
type AttrValue interface {
	isAttrValue()
}

type Origin uint8
type MED uint32
type LocalPref uint32
type AtomicAggregate struct{}

type ASPath []ASPathSegment
type ASPathSegment struct {
	Type  uint8
	Count uint8
	ASNs  []uint32
}

type NextHop struct {
	Addr netip.Addr
}

type Aggregator struct {
	ASN       uint32
	Addr      netip.Addr
	FourOctet bool
}

type Communities []uint32

type OriginatorID struct {
	Addr netip.Addr
}

type ClusterList []netip.Addr

type MPReachNLRI struct {
	AFI        AFI
	SAFI       SAFI
	NextHopRaw []byte
	NextHops   []netip.Addr
	SNPAs      [][]byte
	AddPath    bool
	NLRI       []NLRI
}

type MPUnreachNLRI struct {
	AFI     AFI
	SAFI    SAFI
	AddPath bool
	NLRI    []NLRI
}

type ExtendedCommunities []ExtendedCommunity

type LargeCommunity struct {
	GlobalAdmin uint32
	LocalData1  uint32
	LocalData2  uint32
}

type LargeCommunities []LargeCommunity

type AttrSet struct {
	OriginAS   uint32
	Attributes []PathAttribute
}

type UnknownAttr struct {
	Raw []byte
}

func (Origin) isAttrValue()              {}
func (MED) isAttrValue()                 {}
func (LocalPref) isAttrValue()           {}
func (AtomicAggregate) isAttrValue()     {}
func (ASPath) isAttrValue()              {}
func (NextHop) isAttrValue()             {}
func (Aggregator) isAttrValue()          {}
func (Communities) isAttrValue()         {}
func (OriginatorID) isAttrValue()        {}
func (ClusterList) isAttrValue()         {}
func (*MPReachNLRI) isAttrValue()        {}
func (*MPUnreachNLRI) isAttrValue()      {}
func (ExtendedCommunities) isAttrValue() {}
func (LargeCommunities) isAttrValue()    {}
func (*AttrSet) isAttrValue()            {}
func (*PMSITunnel) isAttrValue()         {}
func (TunnelEncapsulation) isAttrValue() {}
func (AIGP) isAttrValue()                {}
func (*LinkState) isAttrValue()          {}
func (UnknownAttr) isAttrValue()         {}

// NLRI is implemented by all decoded reachability entries
type NLRI interface {
	fmt.Stringer
	isNLRI()
}

// IPPrefix is a plain unicast or multicast prefix
type IPPrefix struct {
	PathID uint32
	Prefix netip.Prefix
}

type MPLSLabel struct {
	Label         uint32
	TC            uint8
	BottomOfStack bool
}

type LabeledPrefix struct {
	PathID uint32
	Labels []MPLSLabel
	Prefix netip.Prefix
}

type VPNPrefix struct {
	PathID uint32
	Labels []MPLSLabel
	RD     RouteDistinguisher
	Prefix netip.Prefix
}

// RouteDistinguisher types 0 (AS2:AN4), 1 (IPv4:AN2) and 2 (AS4:AN2)
type RouteDistinguisher struct {
	Type  uint16
	AS    uint32
	Addr  netip.Addr
	Value uint32
}

type RouteTargetMembership struct {
	PathID      uint32
	PrefixLen   uint8
	OriginAS    uint32
	RouteTarget [8]byte
}

// VPLSRoute is an RFC 4761 VPLS NLRI
type VPLSRoute struct {
	RD          RouteDistinguisher
	VEID        uint16
	BlockOffset uint16
	BlockSize   uint16
	LabelBase   uint32
}

// BGPADRoute is an RFC 6074 auto-discovery NLRI
type BGPADRoute struct {
	RD     RouteDistinguisher
	PEAddr netip.Addr
}

// UnknownNLRI holds the NLRI bytes of an address family this package does not decode
type UnknownNLRI struct {
	AFI  AFI
	SAFI SAFI
	Raw  []byte
}

// MalformedNLRI holds an explicitly delimited entry that failed to decode
type MalformedNLRI struct {
	Offset int
	Raw    []byte
	Err    error
}

func (IPPrefix) isNLRI()              {}
func (LabeledPrefix) isNLRI()         {}
func (VPNPrefix) isNLRI()             {}
func (RouteTargetMembership) isNLRI() {}
func (VPLSRoute) isNLRI()             {}
func (BGPADRoute) isNLRI()            {}
func (UnknownNLRI) isNLRI()           {}
func (MalformedNLRI) isNLRI()         {}

func (p IPPrefix) String() string {
	if p.PathID != 0 {
		return fmt.Sprintf("%s path-id %d", p.Prefix, p.PathID)
	}
	return p.Prefix.String()
}

func (l MPLSLabel) String() string {
	return fmt.Sprintf("%d", l.Label)
}

func (p LabeledPrefix) String() string {
	return fmt.Sprintf("%s labels %v", p.Prefix, p.Labels)
}

func (p VPNPrefix) String() string {
	return fmt.Sprintf("%s:%s labels %v", p.RD, p.Prefix, p.Labels)
}

func (rd RouteDistinguisher) String() string {
	switch rd.Type {
	case 1:
		return fmt.Sprintf("%s:%d", rd.Addr, rd.Value)
	default:
		return fmt.Sprintf("%d:%d", rd.AS, rd.Value)
	}
}

func (r RouteTargetMembership) String() string {
	if r.PrefixLen == 0 {
		return "rt-membership default"
	}
	return fmt.Sprintf("rt-membership %d:%x/%d", r.OriginAS, r.RouteTarget, r.PrefixLen)
}

func (r VPLSRoute) String() string {
	return fmt.Sprintf("vpls %s ve-id %d offset %d size %d label %d", r.RD, r.VEID, r.BlockOffset, r.BlockSize, r.LabelBase)
}

func (r BGPADRoute) String() string {
	return fmt.Sprintf("bgp-ad %s pe %s", r.RD, r.PEAddr)
}

func (n UnknownNLRI) String() string {
	return fmt.Sprintf("afi %d safi %d: %x", n.AFI, n.SAFI, n.Raw)
}

func (n MalformedNLRI) String() string {
	return fmt.Sprintf("malformed at %d: %v", n.Offset, n.Err)
}
