package packet

import (
	"fmt"
	"net/netip"

	"github.com/pkg/errors"
)

type MVPNRouteType uint8

const (
	MVPNIntraASIPMSIADRoute MVPNRouteType = 1
	MVPNInterASIPMSIADRoute MVPNRouteType = 2
	MVPNSPMSIADRoute        MVPNRouteType = 3
	MVPNLeafADRoute         MVPNRouteType = 4
	MVPNSourceActiveADRoute MVPNRouteType = 5
	MVPNSharedTreeJoinRoute MVPNRouteType = 6
	MVPNSourceTreeJoinRoute MVPNRouteType = 7
)

type MVPNIntraASIPMSIAD struct {
	RD                RouteDistinguisher
	OriginatingRouter netip.Addr
}

type MVPNInterASIPMSIAD struct {
	RD       RouteDistinguisher
	SourceAS uint32
}

type MVPNSPMSIAD struct {
	RD                RouteDistinguisher
	Source            netip.Addr
	Group             netip.Addr
	OriginatingRouter netip.Addr
}

// MVPNLeafAD carries the route it responds to as RouteKey
type MVPNLeafAD struct {
	RouteKey          NLRI
	OriginatingRouter netip.Addr
}

type MVPNSourceActiveAD struct {
	RD     RouteDistinguisher
	Source netip.Addr
	Group  netip.Addr
}

// MVPNCMulticast is a Shared Tree Join or Source Tree Join route
type MVPNCMulticast struct {
	RouteType MVPNRouteType
	RD        RouteDistinguisher
	SourceAS  uint32
	Source    netip.Addr
	Group     netip.Addr
}

func (MVPNIntraASIPMSIAD) isNLRI() {}
func (MVPNInterASIPMSIAD) isNLRI() {}
func (MVPNSPMSIAD) isNLRI()        {}
func (MVPNLeafAD) isNLRI()         {}
func (MVPNSourceActiveAD) isNLRI() {}
func (MVPNCMulticast) isNLRI()     {}

func (r MVPNIntraASIPMSIAD) String() string {
	return fmt.Sprintf("mvpn intra-as i-pmsi a-d %s router %s", r.RD, r.OriginatingRouter)
}

func (r MVPNInterASIPMSIAD) String() string {
	return fmt.Sprintf("mvpn inter-as i-pmsi a-d %s source-as %d", r.RD, r.SourceAS)
}

func (r MVPNSPMSIAD) String() string {
	return fmt.Sprintf("mvpn s-pmsi a-d %s (%s, %s) router %s", r.RD, r.Source, r.Group, r.OriginatingRouter)
}

func (r MVPNLeafAD) String() string {
	return fmt.Sprintf("mvpn leaf a-d [%s] router %s", r.RouteKey, r.OriginatingRouter)
}

func (r MVPNSourceActiveAD) String() string {
	return fmt.Sprintf("mvpn source-active a-d %s (%s, %s)", r.RD, r.Source, r.Group)
}

func (r MVPNCMulticast) String() string {
	return fmt.Sprintf("mvpn c-multicast type %d %s source-as %d (%s, %s)", r.RouteType, r.RD, r.SourceAS, r.Source, r.Group)
}

func decodeMVPNRoutes(c *cursor) ([]NLRI, error) {
	routes := make([]NLRI, 0)

	for c.len() > 0 {
		off := c.offset()

		var typ, l uint8
		err := c.decode("MCAST-VPN route header", &typ, &l)
		if err != nil {
			return routes, err
		}

		rc, err := c.sub(int(l), "MCAST-VPN route")
		if err != nil {
			return routes, err
		}

		r, err := decodeMVPNRoute(MVPNRouteType(typ), rc, true)
		if err == nil {
			err = rc.done("MCAST-VPN route")
		}

		if err != nil {
			routes = append(routes, MalformedNLRI{Offset: off, Raw: append([]byte(nil), rc.buf...), Err: err})
			continue
		}
		routes = append(routes, r)
	}

	return routes, nil
}

// decodeMVPNRoute decodes one route. allowLeaf is false while decoding the route
// key of a Leaf A-D route.
func decodeMVPNRoute(t MVPNRouteType, c *cursor, allowLeaf bool) (NLRI, error) {
	switch t {
	case MVPNIntraASIPMSIADRoute:
		r := MVPNIntraASIPMSIAD{}
		var err error
		if r.RD, err = decodeRD(c); err != nil {
			return nil, err
		}
		r.OriginatingRouter, err = originatingRouter(c)
		return r, err
	case MVPNInterASIPMSIADRoute:
		r := MVPNInterASIPMSIAD{}
		var err error
		if r.RD, err = decodeRD(c); err != nil {
			return nil, err
		}
		r.SourceAS, err = c.uint32("source AS")
		return r, err
	case MVPNSPMSIADRoute:
		r := MVPNSPMSIAD{}
		var err error
		if r.RD, err = decodeRD(c); err != nil {
			return nil, err
		}
		if r.Source, r.Group, err = sourceGroup(c); err != nil {
			return nil, err
		}
		r.OriginatingRouter, err = originatingRouter(c)
		return r, err
	case MVPNLeafADRoute:
		if !allowLeaf {
			return nil, errors.Wrap(ErrInvalidDiscriminant, "Leaf A-D route as route key")
		}
		return decodeMVPNLeafAD(c)
	case MVPNSourceActiveADRoute:
		r := MVPNSourceActiveAD{}
		var err error
		if r.RD, err = decodeRD(c); err != nil {
			return nil, err
		}
		r.Source, r.Group, err = sourceGroup(c)
		return r, err
	case MVPNSharedTreeJoinRoute, MVPNSourceTreeJoinRoute:
		r := MVPNCMulticast{RouteType: t}
		var err error
		if r.RD, err = decodeRD(c); err != nil {
			return nil, err
		}
		if r.SourceAS, err = c.uint32("source AS"); err != nil {
			return nil, err
		}
		r.Source, r.Group, err = sourceGroup(c)
		return r, err
	}

	return nil, errors.Wrapf(ErrInvalidDiscriminant, "MCAST-VPN route type %d", t)
}

func decodeMVPNLeafAD(c *cursor) (NLRI, error) {
	var typ, l uint8
	err := c.decode("route key header", &typ, &l)
	if err != nil {
		return nil, err
	}

	kc, err := c.sub(int(l), "route key")
	if err != nil {
		return nil, err
	}

	key, err := decodeMVPNRoute(MVPNRouteType(typ), kc, false)
	if err == nil {
		err = kc.done("route key")
	}
	if err != nil {
		return nil, err
	}

	r := MVPNLeafAD{
		RouteKey: key,
	}
	r.OriginatingRouter, err = originatingRouter(c)
	return r, err
}

// originatingRouter reads an address taking up the rest of the route
func originatingRouter(c *cursor) (netip.Addr, error) {
	if err := expectLen("originating router", c.len(), 4, 16); err != nil {
		return netip.Addr{}, err
	}
	return c.addr(c.len(), "originating router")
}

// sourceGroup reads a length prefixed multicast source and group
func sourceGroup(c *cursor) (netip.Addr, netip.Addr, error) {
	srcLen, err := c.uint8("multicast source length")
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	src, err := addrFromBits(c, srcLen, "multicast source")
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	grpLen, err := c.uint8("multicast group length")
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	grp, err := addrFromBits(c, grpLen, "multicast group")
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	return src, grp, nil
}
