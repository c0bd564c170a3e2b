package packet

import (
	"github.com/pkg/errors"
)

const (
	vplsRouteLen  = 17
	bgpADRouteLen = 12
)

// decodeVPLSRoutes decodes L2VPN VPLS NLRI. Each entry is prefixed by a 2 octet
// length that tells VPLS (RFC 4761) and BGP-AD (RFC 6074) entries apart.
func decodeVPLSRoutes(c *cursor) ([]NLRI, error) {
	routes := make([]NLRI, 0)

	for c.len() > 0 {
		off := c.offset()

		l, err := c.uint16("VPLS NLRI length")
		if err != nil {
			return routes, err
		}

		rc, err := c.sub(int(l), "VPLS NLRI")
		if err != nil {
			return routes, err
		}

		r, err := decodeVPLSRoute(rc)
		if err == nil {
			err = rc.done("VPLS NLRI")
		}

		if err != nil {
			routes = append(routes, MalformedNLRI{Offset: off, Raw: append([]byte(nil), rc.buf...), Err: err})
			continue
		}
		routes = append(routes, r)
	}

	return routes, nil
}

func decodeVPLSRoute(c *cursor) (NLRI, error) {
	switch c.len() {
	case vplsRouteLen:
		r := VPLSRoute{}

		var err error
		if r.RD, err = decodeRD(c); err != nil {
			return nil, err
		}

		err = c.decode("VPLS NLRI", &r.VEID, &r.BlockOffset, &r.BlockSize)
		if err != nil {
			return nil, err
		}

		base, err := c.uint24("label base")
		if err != nil {
			return nil, err
		}
		r.LabelBase = base >> 4

		return r, nil
	case bgpADRouteLen:
		r := BGPADRoute{}

		var err error
		if r.RD, err = decodeRD(c); err != nil {
			return nil, err
		}

		if r.PEAddr, err = c.addr(4, "PE address"); err != nil {
			return nil, err
		}

		return r, nil
	}

	return nil, errors.Wrapf(ErrLengthMismatch, "VPLS NLRI of %d bytes", c.len())
}
