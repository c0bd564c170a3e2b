package packet

import (
	"fmt"
	"net/netip"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	bnet "github.com/taktv6/bgpdecode/net"
)

// LSProtocolID is the source protocol of BGP-LS information
type LSProtocolID uint8

const (
	LSProtocolISISL1 LSProtocolID = 1
	LSProtocolISISL2 LSProtocolID = 2
	LSProtocolOSPFv2 LSProtocolID = 3
	LSProtocolDirect LSProtocolID = 4
	LSProtocolStatic LSProtocolID = 5
	LSProtocolOSPFv3 LSProtocolID = 6
	LSProtocolBGP    LSProtocolID = 7
)

func (p LSProtocolID) isOSPF() bool {
	return p == LSProtocolOSPFv2 || p == LSProtocolOSPFv3
}

type LSNLRIType uint16

const (
	LSNodeNLRI       LSNLRIType = 1
	LSLinkNLRI       LSNLRIType = 2
	LSIPv4PrefixNLRI LSNLRIType = 3
	LSIPv6PrefixNLRI LSNLRIType = 4
)

// Descriptor TLV types
const (
	lsLocalNodeDescriptors  = 256
	lsRemoteNodeDescriptors = 257
	lsLinkIdentifiers       = 258
	lsIPv4InterfaceAddr     = 259
	lsIPv4NeighborAddr      = 260
	lsIPv6InterfaceAddr     = 261
	lsIPv6NeighborAddr      = 262
	lsMultiTopologyID       = 263
	lsOSPFRouteType         = 264
	lsIPReachability        = 265

	lsAutonomousSystem = 512
	lsBGPLSIdentifier  = 513
	lsOSPFAreaID       = 514
	lsIGPRouterID      = 515
	lsBGPRouterID      = 516
	lsMemberAS         = 517
)

// LSTLV is a TLV kept undecoded
type LSTLV struct {
	Type  uint16
	Value []byte
}

type NodeDescriptor struct {
	AS          uint32
	BGPLSID     uint32
	OSPFAreaID  uint32
	IGPRouterID []byte
	BGPRouterID netip.Addr
	MemberAS    uint32
	Unknown     []LSTLV
}

type LinkDescriptor struct {
	LocalID          uint32
	RemoteID         uint32
	InterfaceAddr    netip.Addr
	NeighborAddr     netip.Addr
	MultiTopologyIDs []uint16
	Unknown          []LSTLV
}

type PrefixDescriptor struct {
	MultiTopologyIDs []uint16
	OSPFRouteType    uint8
	Prefix           netip.Prefix
	Unknown          []LSTLV
}

// LinkStateNLRI is a BGP-LS Node, Link or Prefix NLRI. RemoteNode and Link are set
// for Link NLRI, Prefix for Prefix NLRI. NLRI of other types keep their body in Raw.
type LinkStateNLRI struct {
	Type       LSNLRIType
	RD         *RouteDistinguisher
	ProtocolID LSProtocolID
	Identifier uint64
	LocalNode  NodeDescriptor
	RemoteNode *NodeDescriptor
	Link       *LinkDescriptor
	Prefix     *PrefixDescriptor
	Raw        []byte
}

func (LinkStateNLRI) isNLRI() {}

func (n LinkStateNLRI) String() string {
	switch n.Type {
	case LSNodeNLRI:
		return fmt.Sprintf("ls node proto %d id %d as %d igp %x", n.ProtocolID, n.Identifier, n.LocalNode.AS, n.LocalNode.IGPRouterID)
	case LSLinkNLRI:
		return fmt.Sprintf("ls link proto %d id %d %x -> %x", n.ProtocolID, n.Identifier, n.LocalNode.IGPRouterID, n.RemoteNode.IGPRouterID)
	case LSIPv4PrefixNLRI, LSIPv6PrefixNLRI:
		return fmt.Sprintf("ls prefix proto %d id %d %x %s", n.ProtocolID, n.Identifier, n.LocalNode.IGPRouterID, n.Prefix.Prefix)
	}
	return fmt.Sprintf("ls type %d: %x", n.Type, n.Raw)
}

// decodeLinkStateNLRIs decodes BGP-LS NLRI. The Protocol-ID of the first decoded
// NLRI is kept in ctx for the LINK_STATE attribute.
func (ctx *decodeContext) decodeLinkStateNLRIs(c *cursor, vpn bool) ([]NLRI, error) {
	entries := make([]NLRI, 0)

	for c.len() > 0 {
		off := c.offset()

		var typ, l uint16
		err := c.decode("BGP-LS NLRI header", &typ, &l)
		if err != nil {
			return entries, err
		}

		nc, err := c.sub(int(l), "BGP-LS NLRI")
		if err != nil {
			return entries, err
		}

		n, err := decodeLinkStateNLRI(LSNLRIType(typ), nc, vpn)
		if err == nil {
			err = nc.done("BGP-LS NLRI")
		}

		if err != nil {
			entries = append(entries, MalformedNLRI{Offset: off, Raw: append([]byte(nil), nc.buf...), Err: err})
			continue
		}

		if n.Raw == nil {
			ctx.learnLSProtocol(n.ProtocolID)
		}
		entries = append(entries, n)
	}

	return entries, nil
}

func (ctx *decodeContext) learnLSProtocol(p LSProtocolID) {
	if !ctx.lsProtocolKnown {
		ctx.lsProtocol = p
		ctx.lsProtocolKnown = true
		return
	}

	if p != ctx.lsProtocol {
		glog.V(3).Infof("BGP-LS NLRI with protocol %d and %d in one message, using %d", ctx.lsProtocol, p, ctx.lsProtocol)
	}
}

func decodeLinkStateNLRI(t LSNLRIType, c *cursor, vpn bool) (LinkStateNLRI, error) {
	n := LinkStateNLRI{
		Type: t,
	}

	if vpn {
		rd, err := decodeRD(c)
		if err != nil {
			return n, err
		}
		n.RD = &rd
	}

	switch t {
	case LSNodeNLRI, LSLinkNLRI, LSIPv4PrefixNLRI, LSIPv6PrefixNLRI:
	default:
		n.Raw = c.rest()
		return n, nil
	}

	var proto uint8
	err := c.decode("BGP-LS NLRI", &proto, &n.Identifier)
	if err != nil {
		return n, err
	}
	n.ProtocolID = LSProtocolID(proto)

	typ, vc, err := readLSTLV(c)
	if err != nil {
		return n, err
	}

	if typ != lsLocalNodeDescriptors {
		return n, errors.Wrapf(ErrInvalidDiscriminant, "BGP-LS NLRI starts with TLV %d", typ)
	}

	n.LocalNode, err = decodeNodeDescriptor(vc)
	if err != nil {
		return n, err
	}

	switch t {
	case LSLinkNLRI:
		typ, vc, err := readLSTLV(c)
		if err != nil {
			return n, err
		}

		if typ != lsRemoteNodeDescriptors {
			return n, errors.Wrapf(ErrInvalidDiscriminant, "link NLRI without remote node descriptors, TLV %d", typ)
		}

		remote, err := decodeNodeDescriptor(vc)
		if err != nil {
			return n, err
		}
		n.RemoteNode = &remote

		link, err := decodeLinkDescriptor(c)
		if err != nil {
			return n, err
		}
		n.Link = &link
	case LSIPv4PrefixNLRI, LSIPv6PrefixNLRI:
		afi := AFIIPv4
		if t == LSIPv6PrefixNLRI {
			afi = AFIIPv6
		}

		pfx, err := decodePrefixDescriptor(c, afi)
		if err != nil {
			return n, err
		}
		n.Prefix = &pfx
	}

	return n, nil
}

// readLSTLV reads a {type, length} header and returns a cursor over the value
func readLSTLV(c *cursor) (uint16, *cursor, error) {
	var typ, l uint16
	err := c.decode("BGP-LS TLV header", &typ, &l)
	if err != nil {
		return 0, nil, err
	}

	vc, err := c.sub(int(l), "BGP-LS TLV value")
	if err != nil {
		return typ, nil, err
	}
	return typ, vc, nil
}

func decodeNodeDescriptor(c *cursor) (NodeDescriptor, error) {
	d := NodeDescriptor{}

	for c.len() > 0 {
		typ, vc, err := readLSTLV(c)
		if err != nil {
			return d, err
		}

		switch typ {
		case lsAutonomousSystem:
			d.AS, err = lsUint32(vc)
		case lsBGPLSIdentifier:
			d.BGPLSID, err = lsUint32(vc)
		case lsOSPFAreaID:
			d.OSPFAreaID, err = lsUint32(vc)
		case lsIGPRouterID:
			// IS-IS system ID or pseudonode, OSPF router ID or DR interface
			if err = expectTLVLen(vc, 4, 6, 7, 8); err == nil {
				d.IGPRouterID = vc.rest()
			}
		case lsBGPRouterID:
			if err = expectTLVLen(vc, 4); err == nil {
				d.BGPRouterID, err = vc.addr(4, "BGP router ID")
			}
		case lsMemberAS:
			d.MemberAS, err = lsUint32(vc)
		default:
			d.Unknown = append(d.Unknown, LSTLV{Type: typ, Value: vc.rest()})
		}

		if err != nil {
			return d, errors.Wrapf(err, "node descriptor TLV %d", typ)
		}
	}

	return d, nil
}

func decodeLinkDescriptor(c *cursor) (LinkDescriptor, error) {
	d := LinkDescriptor{}

	for c.len() > 0 {
		typ, vc, err := readLSTLV(c)
		if err != nil {
			return d, err
		}

		switch typ {
		case lsLinkIdentifiers:
			if err = expectTLVLen(vc, 8); err == nil {
				err = vc.decode("link identifiers", &d.LocalID, &d.RemoteID)
			}
		case lsIPv4InterfaceAddr, lsIPv4NeighborAddr:
			if err = expectTLVLen(vc, 4); err == nil {
				err = d.setAddr(typ, vc)
			}
		case lsIPv6InterfaceAddr, lsIPv6NeighborAddr:
			if err = expectTLVLen(vc, 16); err == nil {
				err = d.setAddr(typ, vc)
			}
		case lsMultiTopologyID:
			d.MultiTopologyIDs, err = decodeMultiTopologyIDs(vc)
		default:
			d.Unknown = append(d.Unknown, LSTLV{Type: typ, Value: vc.rest()})
		}

		if err != nil {
			return d, errors.Wrapf(err, "link descriptor TLV %d", typ)
		}
	}

	return d, nil
}

func (d *LinkDescriptor) setAddr(typ uint16, c *cursor) error {
	addr, err := c.addr(c.len(), "link address")
	if err != nil {
		return err
	}

	if typ == lsIPv4InterfaceAddr || typ == lsIPv6InterfaceAddr {
		d.InterfaceAddr = addr
	} else {
		d.NeighborAddr = addr
	}
	return nil
}

func decodePrefixDescriptor(c *cursor, afi AFI) (PrefixDescriptor, error) {
	d := PrefixDescriptor{}

	for c.len() > 0 {
		typ, vc, err := readLSTLV(c)
		if err != nil {
			return d, err
		}

		switch typ {
		case lsMultiTopologyID:
			d.MultiTopologyIDs, err = decodeMultiTopologyIDs(vc)
		case lsOSPFRouteType:
			if err = expectTLVLen(vc, 1); err == nil {
				d.OSPFRouteType, err = vc.uint8("OSPF route type")
			}
		case lsIPReachability:
			d.Prefix, err = decodeIPReachability(vc, afi)
		default:
			d.Unknown = append(d.Unknown, LSTLV{Type: typ, Value: vc.rest()})
		}

		if err != nil {
			return d, errors.Wrapf(err, "prefix descriptor TLV %d", typ)
		}
	}

	return d, nil
}

func decodeIPReachability(c *cursor, afi AFI) (netip.Prefix, error) {
	pfxlen, err := c.uint8("IP reachability prefix length")
	if err != nil {
		return netip.Prefix{}, err
	}

	if c.len() != bnet.WireLen(pfxlen) {
		return netip.Prefix{}, errors.Wrapf(ErrUnexpectedTLVLength, "prefix length %d with %d bytes", pfxlen, c.len())
	}
	return readPrefix(c, afi, int(pfxlen))
}

func decodeMultiTopologyIDs(c *cursor) ([]uint16, error) {
	if c.len()%2 != 0 {
		return nil, errors.Wrapf(ErrUnexpectedTLVLength, "multi-topology ID length %d", c.len())
	}

	ids := make([]uint16, 0, c.len()/2)
	for c.len() > 0 {
		id, err := c.uint16("multi-topology ID")
		if err != nil {
			return ids, err
		}
		ids = append(ids, id&0x0fff)
	}
	return ids, nil
}

func lsUint32(c *cursor) (uint32, error) {
	if err := expectTLVLen(c, 4); err != nil {
		return 0, err
	}
	return c.uint32("BGP-LS TLV value")
}
