package packet

import (
	"math"
	"net/netip"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// LINK_STATE attribute TLV types
const (
	LSAttrMultiTopologyID    = 263
	LSAttrNodeFlags          = 1024
	LSAttrOpaqueNode         = 1025
	LSAttrNodeName           = 1026
	LSAttrISISAreaID         = 1027
	LSAttrLocalIPv4RouterID  = 1028
	LSAttrLocalIPv6RouterID  = 1029
	LSAttrRemoteIPv4RouterID = 1030
	LSAttrRemoteIPv6RouterID = 1031
	LSAttrSRCapabilities     = 1034
	LSAttrSRAlgorithm        = 1035
	LSAttrSRLocalBlock       = 1036
	LSAttrSRMSPreference     = 1037

	LSAttrAdminGroup          = 1088
	LSAttrMaxLinkBandwidth    = 1089
	LSAttrMaxReservableBW     = 1090
	LSAttrUnreservedBandwidth = 1091
	LSAttrTEDefaultMetric     = 1092
	LSAttrLinkProtectionType  = 1093
	LSAttrMPLSProtocolMask    = 1094
	LSAttrIGPMetric           = 1095
	LSAttrSRLG                = 1096
	LSAttrOpaqueLink          = 1097
	LSAttrLinkName            = 1098
	LSAttrAdjSID              = 1099
	LSAttrLANAdjSID           = 1100
	LSAttrPeerNodeSID         = 1101
	LSAttrPeerAdjSID          = 1102
	LSAttrPeerSetSID          = 1103
	LSAttrLinkDelay           = 1114
	LSAttrMinMaxLinkDelay     = 1115
	LSAttrDelayVariation      = 1116
	LSAttrLinkLoss            = 1117
	LSAttrResidualBandwidth   = 1118
	LSAttrAvailableBandwidth  = 1119
	LSAttrUtilizedBandwidth   = 1120

	LSAttrIGPFlags             = 1152
	LSAttrRouteTag             = 1153
	LSAttrExtendedRouteTag     = 1154
	LSAttrPrefixMetric         = 1155
	LSAttrOSPFForwardingAddr   = 1156
	LSAttrOpaquePrefix         = 1157
	LSAttrPrefixSID            = 1158
	LSAttrSIDLabel             = 1161
	LSAttrPrefixAttributeFlags = 1170
	LSAttrSourceRouterID       = 1171
)

// LinkState is the LINK_STATE attribute. The layout of SID flags depends on the
// Protocol-ID of the BGP-LS NLRI in the same message. ProtocolKnown is false if the
// message carried no such NLRI, the IS-IS layout is used then.
type LinkState struct {
	ProtocolID    LSProtocolID
	ProtocolKnown bool
	TLVs          []LSAttrTLV

	// value region until the NLRI have been seen
	pending *cursor
}

// LSAttrTLV is a LINK_STATE TLV. Value holds the decoded value or the raw bytes
// if the type is unknown or Err is set.
type LSAttrTLV struct {
	Type   uint16
	Length uint16
	Value  interface{}
	Err    error
}

type NodeFlags struct {
	Overload bool
	Attached bool
	External bool
	ABR      bool
	Router   bool
	V6       bool
}

// SIDLabel is a 20 bit label (3 octets on the wire) or a 32 bit SID index
type SIDLabel struct {
	IsLabel bool
	Value   uint32
}

type SRRange struct {
	Size uint32
	SID  SIDLabel
}

// SRCapabilities is used for SR capabilities and the SR local block
type SRCapabilities struct {
	Flags  uint8
	Ranges []SRRange
}

// AdjSIDFlags holds the flags of the IS-IS and OSPF layouts. AddressFamily and Set
// only exist in IS-IS, Group only in OSPF.
type AdjSIDFlags struct {
	Raw           uint8
	AddressFamily bool
	Backup        bool
	Value         bool
	Local         bool
	Set           bool
	Group         bool
	Persistent    bool
}

type AdjSID struct {
	Flags  AdjSIDFlags
	Weight uint8
	SID    SIDLabel
}

// LANAdjSID carries the IS-IS system ID (6 octets) or OSPF router ID (4 octets) of the neighbor
type LANAdjSID struct {
	Flags      AdjSIDFlags
	Weight     uint8
	NeighborID []byte
	SID        SIDLabel
}

// PeerSID is a BGP peering segment (Peer-Node, Peer-Adj or Peer-Set SID)
type PeerSID struct {
	Flags  uint8
	Weight uint8
	SID    SIDLabel
}

// PrefixSIDFlags holds the flags of the IS-IS and OSPF layouts. ReAdvertisement
// and NodeSID only exist in IS-IS, MappingServer only in OSPF.
type PrefixSIDFlags struct {
	Raw             uint8
	ReAdvertisement bool
	NodeSID         bool
	NoPHP           bool
	MappingServer   bool
	ExplicitNull    bool
	Value           bool
	Local           bool
}

type PrefixSID struct {
	Flags     PrefixSIDFlags
	Algorithm uint8
	SID       SIDLabel
}

type IGPFlags struct {
	Down          bool
	NoUnicast     bool
	LocalAddress  bool
	PropagateNSSA bool
}

// LinkDelay is a delay or loss value with its anomalous flag
type LinkDelay struct {
	Anomalous bool
	Value     uint32
}

type MinMaxDelay struct {
	Anomalous bool
	Min       uint32
	Max       uint32
}

// deferLinkState keeps the value region of a LINK_STATE attribute. It is decoded by
// resolveLinkState once all attributes of the message are known.
func (ctx *decodeContext) deferLinkState(pa *PathAttribute, c *cursor) {
	pa.Value = &LinkState{
		pending: c,
	}
}

// resolveLinkState decodes all deferred LINK_STATE attributes in attrs
func (ctx *decodeContext) resolveLinkState(attrs []PathAttribute) {
	for i := range attrs {
		pa := &attrs[i]

		switch v := pa.Value.(type) {
		case *AttrSet:
			ctx.resolveLinkState(v.Attributes)
		case *LinkState:
			if v.pending == nil {
				continue
			}

			c := v.pending
			v.pending = nil
			v.ProtocolID = ctx.lsProtocol
			v.ProtocolKnown = ctx.lsProtocolKnown
			if !v.ProtocolKnown {
				glog.V(3).Infof("LINK_STATE at offset %d without BGP-LS NLRI, assuming IS-IS flag layout", pa.Offset)
			}

			err := v.decodeTLVs(c)
			if err == nil {
				err = c.done("LINK_STATE")
			}
			ctx.finishAttr(pa, c, err)
		}
	}
}

// decodeTLVs walks the TLV list. A TLV whose value fails to decode keeps its raw
// bytes and the walk continues; only a broken TLV header ends it.
func (ls *LinkState) decodeTLVs(c *cursor) error {
	var errs error

	for c.len() > 0 {
		tlv := LSAttrTLV{}
		err := c.decode("LINK_STATE TLV header", &tlv.Type, &tlv.Length)
		if err != nil {
			return multierr.Append(errs, err)
		}

		vc, err := c.sub(int(tlv.Length), "LINK_STATE TLV value")
		if err != nil {
			return multierr.Append(errs, err)
		}

		tlv.Value, tlv.Err = ls.decodeTLVValue(tlv.Type, vc)
		if tlv.Err == nil {
			tlv.Err = vc.done("LINK_STATE TLV value")
		}

		if tlv.Err != nil {
			tlv.Err = errors.Wrapf(tlv.Err, "LINK_STATE TLV %d", tlv.Type)
			tlv.Value = append([]byte(nil), vc.buf...)
			errs = multierr.Append(errs, tlv.Err)
		}

		ls.TLVs = append(ls.TLVs, tlv)
	}

	return errs
}

func (ls *LinkState) decodeTLVValue(t uint16, c *cursor) (interface{}, error) {
	switch t {
	case LSAttrMultiTopologyID:
		return decodeMultiTopologyIDs(c)
	case LSAttrNodeFlags:
		if err := expectTLVLen(c, 1); err != nil {
			return nil, err
		}
		return decodeNodeFlags(c)
	case LSAttrNodeName, LSAttrLinkName:
		return string(c.rest()), nil
	case LSAttrISISAreaID:
		if c.len() == 0 {
			return nil, errors.Wrap(ErrUnexpectedTLVLength, "empty IS-IS area ID")
		}
		return c.rest(), nil
	case LSAttrLocalIPv4RouterID, LSAttrRemoteIPv4RouterID:
		return lsAddr(c, 4)
	case LSAttrLocalIPv6RouterID, LSAttrRemoteIPv6RouterID:
		return lsAddr(c, 16)
	case LSAttrSRCapabilities, LSAttrSRLocalBlock:
		return decodeSRCapabilities(c)
	case LSAttrSRAlgorithm, LSAttrPrefixAttributeFlags:
		return c.rest(), nil
	case LSAttrSRMSPreference, LSAttrMPLSProtocolMask:
		if err := expectTLVLen(c, 1); err != nil {
			return nil, err
		}
		return c.uint8("BGP-LS TLV value")
	case LSAttrAdminGroup, LSAttrPrefixMetric:
		return lsUint32(c)
	case LSAttrMaxLinkBandwidth, LSAttrMaxReservableBW, LSAttrResidualBandwidth,
		LSAttrAvailableBandwidth, LSAttrUtilizedBandwidth:
		return decodeBandwidth(c)
	case LSAttrUnreservedBandwidth:
		return decodeUnreservedBandwidth(c)
	case LSAttrTEDefaultMetric:
		// Older implementations send 3 octets
		if err := expectTLVLen(c, 3, 4); err != nil {
			return nil, err
		}
		return lsVarUint(c), nil
	case LSAttrLinkProtectionType:
		if err := expectTLVLen(c, 2); err != nil {
			return nil, err
		}
		return c.uint16("link protection type")
	case LSAttrIGPMetric:
		if err := expectTLVLen(c, 1, 2, 3); err != nil {
			return nil, err
		}
		return lsVarUint(c), nil
	case LSAttrSRLG, LSAttrRouteTag:
		return decodeUint32List(c)
	case LSAttrExtendedRouteTag:
		return decodeUint64List(c)
	case LSAttrAdjSID:
		return ls.decodeAdjSID(c)
	case LSAttrLANAdjSID:
		return ls.decodeLANAdjSID(c)
	case LSAttrPeerNodeSID, LSAttrPeerAdjSID, LSAttrPeerSetSID:
		return decodePeerSID(c)
	case LSAttrLinkDelay, LSAttrDelayVariation, LSAttrLinkLoss:
		if err := expectTLVLen(c, 4); err != nil {
			return nil, err
		}
		return decodeLinkDelay(c)
	case LSAttrMinMaxLinkDelay:
		return decodeMinMaxDelay(c)
	case LSAttrIGPFlags:
		if err := expectTLVLen(c, 1); err != nil {
			return nil, err
		}
		return decodeIGPFlags(c)
	case LSAttrOSPFForwardingAddr, LSAttrSourceRouterID:
		if err := expectTLVLen(c, 4, 16); err != nil {
			return nil, err
		}
		return c.addr(c.len(), "BGP-LS address")
	case LSAttrPrefixSID:
		return ls.decodePrefixSID(c)
	case LSAttrSIDLabel:
		return decodeSIDLabel(c)
	}

	// Opaque TLVs and unknown types
	return c.rest(), nil
}

func decodeNodeFlags(c *cursor) (NodeFlags, error) {
	b, err := c.uint8("node flags")
	if err != nil {
		return NodeFlags{}, err
	}

	return NodeFlags{
		Overload: b&0x80 != 0,
		Attached: b&0x40 != 0,
		External: b&0x20 != 0,
		ABR:      b&0x10 != 0,
		Router:   b&0x08 != 0,
		V6:       b&0x04 != 0,
	}, nil
}

func decodeIGPFlags(c *cursor) (IGPFlags, error) {
	b, err := c.uint8("IGP flags")
	if err != nil {
		return IGPFlags{}, err
	}

	return IGPFlags{
		Down:          b&0x80 != 0,
		NoUnicast:     b&0x40 != 0,
		LocalAddress:  b&0x20 != 0,
		PropagateNSSA: b&0x10 != 0,
	}, nil
}

func lsAddr(c *cursor, n int) (netip.Addr, error) {
	if err := expectTLVLen(c, n); err != nil {
		return netip.Addr{}, err
	}
	return c.addr(n, "BGP-LS address")
}

// lsVarUint reads a big endian integer spanning the rest of c
func lsVarUint(c *cursor) uint32 {
	v := uint32(0)
	for _, b := range c.rest() {
		v = v<<8 | uint32(b)
	}
	return v
}

// decodeBandwidth reads an IEEE floating point value in bytes per second
func decodeBandwidth(c *cursor) (float32, error) {
	if err := expectTLVLen(c, 4); err != nil {
		return 0, err
	}

	v, err := c.uint32("bandwidth")
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func decodeUnreservedBandwidth(c *cursor) ([8]float32, error) {
	bw := [8]float32{}
	if err := expectTLVLen(c, 32); err != nil {
		return bw, err
	}

	for i := range bw {
		v, err := c.uint32("unreserved bandwidth")
		if err != nil {
			return bw, err
		}
		bw[i] = math.Float32frombits(v)
	}
	return bw, nil
}

func decodeUint32List(c *cursor) ([]uint32, error) {
	if c.len()%4 != 0 {
		return nil, errors.Wrapf(ErrUnexpectedTLVLength, "length %d is not a multiple of 4", c.len())
	}

	list := make([]uint32, 0, c.len()/4)
	for c.len() > 0 {
		v, err := c.uint32("BGP-LS TLV value")
		if err != nil {
			return list, err
		}
		list = append(list, v)
	}
	return list, nil
}

func decodeUint64List(c *cursor) ([]uint64, error) {
	if c.len()%8 != 0 {
		return nil, errors.Wrapf(ErrUnexpectedTLVLength, "length %d is not a multiple of 8", c.len())
	}

	list := make([]uint64, 0, c.len()/8)
	for c.len() > 0 {
		v, err := c.uint64("BGP-LS TLV value")
		if err != nil {
			return list, err
		}
		list = append(list, v)
	}
	return list, nil
}

func decodeLinkDelay(c *cursor) (LinkDelay, error) {
	v, err := c.uint32("link delay")
	if err != nil {
		return LinkDelay{}, err
	}

	return LinkDelay{
		Anomalous: v&0x80000000 != 0,
		Value:     v & 0x00ffffff,
	}, nil
}

func decodeMinMaxDelay(c *cursor) (MinMaxDelay, error) {
	if err := expectTLVLen(c, 8); err != nil {
		return MinMaxDelay{}, err
	}

	var lo, hi uint32
	err := c.decode("min/max link delay", &lo, &hi)
	if err != nil {
		return MinMaxDelay{}, err
	}

	return MinMaxDelay{
		Anomalous: lo&0x80000000 != 0,
		Min:       lo & 0x00ffffff,
		Max:       hi & 0x00ffffff,
	}, nil
}

// decodeSIDLabel reads the rest of c as a label (3 octets) or an index (4 octets)
func decodeSIDLabel(c *cursor) (SIDLabel, error) {
	switch c.len() {
	case 3:
		v, err := c.uint24("SID/label")
		return SIDLabel{IsLabel: true, Value: v & 0x0fffff}, err
	case 4:
		v, err := c.uint32("SID/label")
		return SIDLabel{Value: v}, err
	}
	return SIDLabel{}, errors.Wrapf(ErrUnexpectedTLVLength, "SID/label of %d bytes", c.len())
}

// decodeSRCapabilities reads flags, a reserved octet and then {range, SID/label
// sub-TLV} groups until c is exhausted.
func decodeSRCapabilities(c *cursor) (SRCapabilities, error) {
	caps := SRCapabilities{}

	var reserved uint8
	err := c.decode("SR capabilities", &caps.Flags, &reserved)
	if err != nil {
		return caps, err
	}

	for c.len() > 0 {
		r := SRRange{}
		r.Size, err = c.uint24("SR range size")
		if err != nil {
			return caps, err
		}

		typ, vc, err := readLSTLV(c)
		if err != nil {
			return caps, err
		}

		if typ != LSAttrSIDLabel {
			return caps, errors.Wrapf(ErrInvalidDiscriminant, "SR range with sub-TLV %d", typ)
		}

		r.SID, err = decodeSIDLabel(vc)
		if err != nil {
			return caps, err
		}
		caps.Ranges = append(caps.Ranges, r)
	}

	return caps, nil
}

func (ls *LinkState) adjSIDFlags(b uint8) AdjSIDFlags {
	f := AdjSIDFlags{
		Raw: b,
	}

	if ls.ProtocolID.isOSPF() {
		f.Backup = b&0x80 != 0
		f.Value = b&0x40 != 0
		f.Local = b&0x20 != 0
		f.Group = b&0x10 != 0
		f.Persistent = b&0x08 != 0
		return f
	}

	f.AddressFamily = b&0x80 != 0
	f.Backup = b&0x40 != 0
	f.Value = b&0x20 != 0
	f.Local = b&0x10 != 0
	f.Set = b&0x08 != 0
	f.Persistent = b&0x04 != 0
	return f
}

func (ls *LinkState) prefixSIDFlags(b uint8) PrefixSIDFlags {
	f := PrefixSIDFlags{
		Raw:          b,
		NoPHP:        b&0x40 != 0,
		ExplicitNull: b&0x10 != 0,
		Value:        b&0x08 != 0,
		Local:        b&0x04 != 0,
	}

	if ls.ProtocolID.isOSPF() {
		f.MappingServer = b&0x20 != 0
		return f
	}

	f.ReAdvertisement = b&0x80 != 0
	f.NodeSID = b&0x40 != 0
	f.NoPHP = b&0x20 != 0
	return f
}

// sidHeader reads {flags, weight or algorithm, 2 reserved octets}
func sidHeader(c *cursor) (uint8, uint8, error) {
	var flags, weight uint8
	var reserved uint16
	err := c.decode("SID header", &flags, &weight, &reserved)
	return flags, weight, err
}

func (ls *LinkState) decodeAdjSID(c *cursor) (AdjSID, error) {
	if err := expectTLVLen(c, 7, 8); err != nil {
		return AdjSID{}, err
	}

	flags, weight, err := sidHeader(c)
	if err != nil {
		return AdjSID{}, err
	}

	sid, err := decodeSIDLabel(c)
	return AdjSID{
		Flags:  ls.adjSIDFlags(flags),
		Weight: weight,
		SID:    sid,
	}, err
}

func (ls *LinkState) decodeLANAdjSID(c *cursor) (LANAdjSID, error) {
	idLen := 6
	if ls.ProtocolID.isOSPF() {
		idLen = 4
	}

	if err := expectTLVLen(c, 4+idLen+3, 4+idLen+4); err != nil {
		return LANAdjSID{}, err
	}

	flags, weight, err := sidHeader(c)
	if err != nil {
		return LANAdjSID{}, err
	}

	id, err := c.bytes(idLen, "LAN Adj-SID neighbor ID")
	if err != nil {
		return LANAdjSID{}, err
	}

	sid, err := decodeSIDLabel(c)
	return LANAdjSID{
		Flags:      ls.adjSIDFlags(flags),
		Weight:     weight,
		NeighborID: id,
		SID:        sid,
	}, err
}

func decodePeerSID(c *cursor) (PeerSID, error) {
	if err := expectTLVLen(c, 7, 8); err != nil {
		return PeerSID{}, err
	}

	flags, weight, err := sidHeader(c)
	if err != nil {
		return PeerSID{}, err
	}

	sid, err := decodeSIDLabel(c)
	return PeerSID{
		Flags:  flags,
		Weight: weight,
		SID:    sid,
	}, err
}

func (ls *LinkState) decodePrefixSID(c *cursor) (PrefixSID, error) {
	if err := expectTLVLen(c, 7, 8); err != nil {
		return PrefixSID{}, err
	}

	flags, algo, err := sidHeader(c)
	if err != nil {
		return PrefixSID{}, err
	}

	sid, err := decodeSIDLabel(c)
	return PrefixSID{
		Flags:     ls.prefixSIDFlags(flags),
		Algorithm: algo,
		SID:       sid,
	}, err
}
