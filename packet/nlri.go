package packet

import (
	"net/netip"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	bnet "github.com/taktv6/bgpdecode/net"
)

const (
	labelLen = 3
	rdLen    = 8

	// Labels of 0 or 0x800000 in a withdrawal end the stack
	withdrawLabel       = 0x000000
	withdrawLabelCompat = 0x800000
)

// entryFunc decodes a single prefix style NLRI entry following an optional Path Identifier
type entryFunc func(c *cursor, afi AFI, pathID uint32) (NLRI, error)

func addrLen(afi AFI) int {
	switch afi {
	case AFIIPv4:
		return 4
	case AFIIPv6:
		return 16
	}
	return 0
}

func isIPAFI(afi AFI) bool {
	return afi == AFIIPv4 || afi == AFIIPv6
}

func prefixEntryFunc(afi AFI, safi SAFI) entryFunc {
	if !isIPAFI(afi) {
		return nil
	}

	switch safi {
	case SAFIUnicast, SAFIMulticast:
		return decodeIPPrefix
	case SAFILabeledUnicast:
		return decodeLabeledPrefix
	case SAFIMPLSVPN, SAFIMPLSVPNMulticast:
		return decodeVPNPrefix
	case SAFIRouteTargetConstraint:
		if afi == AFIIPv4 {
			return decodeRouteTargetMembership
		}
	}
	return nil
}

// decodeNLRI decodes all NLRI of an address family in c. It reports whether Path
// Identifiers were used.
func (ctx *decodeContext) decodeNLRI(c *cursor, afi AFI, safi SAFI) ([]NLRI, bool, error) {
	var entries []NLRI
	var err error
	addPath := false

	switch {
	case afi == AFIL2VPN && safi == SAFIEVPN:
		entries, err = decodeEVPNRoutes(c)
	case afi == AFIL2VPN && safi == SAFIVPLS:
		entries, err = decodeVPLSRoutes(c)
	case isIPAFI(afi) && safi == SAFIMcastVPN:
		entries, err = decodeMVPNRoutes(c)
	case isIPAFI(afi) && (safi == SAFIFlowSpec || safi == SAFIFlowSpecVPN):
		entries, err = ctx.decodeFlowSpecRules(c, afi, safi == SAFIFlowSpecVPN)
	case afi == AFILinkState && (safi == SAFILinkState || safi == SAFILinkStateVPN):
		entries, err = ctx.decodeLinkStateNLRIs(c, safi == SAFILinkStateVPN)
	default:
		fn := prefixEntryFunc(afi, safi)
		if fn == nil {
			return []NLRI{UnknownNLRI{AFI: afi, SAFI: safi, Raw: c.rest()}}, false, nil
		}

		addPath = ctx.useAddPath(c, afi, safi)
		entries, err = decodeEntries(c, afi, fn, addPath)
	}

	for _, e := range entries {
		if m, ok := e.(MalformedNLRI); ok {
			ctx.record(&NLRIError{AFI: afi, SAFI: safi, Offset: m.Offset, Err: m.Err})
		}
	}

	if err != nil {
		return entries, addPath, &NLRIError{AFI: afi, SAFI: safi, Offset: c.offset(), Err: err}
	}
	return entries, addPath, nil
}

// decodeEntries decodes prefix style entries. Each entry spans its length octet plus
// the octets that length covers, so an entry that fails to decode is kept as
// MalformedNLRI and the next one is decoded. Only an entry overrunning c ends the section.
func decodeEntries(c *cursor, afi AFI, fn entryFunc, addPath bool) ([]NLRI, error) {
	entries := make([]NLRI, 0)

	for c.len() > 0 {
		off := c.offset()

		pathID := uint32(0)
		if addPath {
			var err error
			pathID, err = c.uint32("path identifier")
			if err != nil {
				return entries, err
			}
		}

		bits, ok := c.peek()
		if !ok {
			return entries, errors.Wrapf(ErrTruncated, "prefix length: missing at offset %d", c.offset())
		}

		ec, err := c.sub(1+bnet.WireLen(bits), "prefix")
		if err != nil {
			return entries, err
		}

		e, err := fn(ec, afi, pathID)
		if err == nil {
			err = ec.done("prefix")
		}

		if err != nil {
			entries = append(entries, MalformedNLRI{Offset: off, Raw: append([]byte(nil), ec.buf...), Err: err})
			continue
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// useAddPath decides whether the entries in c carry Path Identifiers. In auto mode
// they are assumed only if the prefix lengths do not add up to the section without
// them but do with them. Prefix values are not looked at.
func (ctx *decodeContext) useAddPath(c *cursor, afi AFI, safi SAFI) bool {
	switch ctx.opts.AddPath {
	case AddPathNever:
		return false
	case AddPathAlways:
		return true
	}

	b := c.buf[c.pos:]
	maxBits := maxPrefixBits(afi, safi)
	if entriesFit(b, maxBits, false) {
		return false
	}

	addPath := entriesFit(b, maxBits, true)
	glog.V(3).Infof("NLRI at offset %d does not fit without path identifiers, add-path: %v", c.offset(), addPath)
	return addPath
}

// maxPrefixBits is the longest prefix length an entry of afi/safi can carry
func maxPrefixBits(afi AFI, safi SAFI) int {
	switch safi {
	case SAFIUnicast, SAFIMulticast:
		return addrLen(afi) * OctetLen
	case SAFIRouteTargetConstraint:
		return 96
	}
	return 0xff
}

// entriesFit reports whether walking the prefix lengths in b ends exactly at its end
func entriesFit(b []byte, maxBits int, addPath bool) bool {
	p := 0
	for p < len(b) {
		if addPath {
			p += 4
		}
		if p >= len(b) || int(b[p]) > maxBits {
			return false
		}
		p += 1 + bnet.WireLen(b[p])
	}
	return p == len(b)
}

// readPrefix reads the significant octets of a prefix of bits length
func readPrefix(c *cursor, afi AFI, bits int) (netip.Prefix, error) {
	if bits < 0 || bits > addrLen(afi)*OctetLen {
		return netip.Prefix{}, errors.Wrapf(ErrLengthMismatch, "prefix length %d for AFI %d", bits, afi)
	}

	b, err := c.bytes(bnet.WireLen(uint8(bits)), "prefix")
	if err != nil {
		return netip.Prefix{}, err
	}

	pfx, err := bnet.PrefixFromWire(b, uint8(bits), addrLen(afi))
	if err != nil {
		return netip.Prefix{}, prefixError(err)
	}
	return pfx, nil
}

func decodeIPPrefix(c *cursor, afi AFI, pathID uint32) (NLRI, error) {
	pfxlen, err := c.uint8("prefix length")
	if err != nil {
		return nil, err
	}

	pfx, err := readPrefix(c, afi, int(pfxlen))
	if err != nil {
		return nil, err
	}

	return IPPrefix{
		PathID: pathID,
		Prefix: pfx,
	}, nil
}

func decodeLabeledPrefix(c *cursor, afi AFI, pathID uint32) (NLRI, error) {
	bits, err := c.uint8("prefix length")
	if err != nil {
		return nil, err
	}

	labels, err := decodeLabels(c, int(bits))
	if err != nil {
		return nil, err
	}

	pfx, err := readPrefix(c, afi, int(bits)-len(labels)*labelLen*OctetLen)
	if err != nil {
		return nil, err
	}

	return LabeledPrefix{
		PathID: pathID,
		Labels: labels,
		Prefix: pfx,
	}, nil
}

func decodeVPNPrefix(c *cursor, afi AFI, pathID uint32) (NLRI, error) {
	bits, err := c.uint8("prefix length")
	if err != nil {
		return nil, err
	}

	labels, err := decodeLabels(c, int(bits)-rdLen*OctetLen)
	if err != nil {
		return nil, err
	}

	rd, err := decodeRD(c)
	if err != nil {
		return nil, err
	}

	pfx, err := readPrefix(c, afi, int(bits)-len(labels)*labelLen*OctetLen-rdLen*OctetLen)
	if err != nil {
		return nil, err
	}

	return VPNPrefix{
		PathID: pathID,
		Labels: labels,
		RD:     rd,
		Prefix: pfx,
	}, nil
}

// decodeLabels reads an MPLS label stack taking at most bits bits
func decodeLabels(c *cursor, bits int) ([]MPLSLabel, error) {
	labels := make([]MPLSLabel, 0, 1)

	for {
		if (len(labels)+1)*labelLen*OctetLen > bits {
			return labels, errors.Wrapf(ErrLengthMismatch, "label stack exceeds %d bits", bits)
		}

		v, err := c.uint24("MPLS label")
		if err != nil {
			return labels, err
		}

		labels = append(labels, labelFromUint24(v))
		if v&1 == 1 {
			return labels, nil
		}

		if len(labels) == 1 && (v == withdrawLabel || v == withdrawLabelCompat) {
			return labels, nil
		}
	}
}

func labelFromUint24(v uint32) MPLSLabel {
	return MPLSLabel{
		Label:         v >> 4,
		TC:            uint8(v>>1) & 0x7,
		BottomOfStack: v&1 == 1,
	}
}

func decodeRD(c *cursor) (RouteDistinguisher, error) {
	rd := RouteDistinguisher{}

	err := c.decode("route distinguisher type", &rd.Type)
	if err != nil {
		return rd, err
	}

	switch rd.Type {
	case 0:
		var as uint16
		err = c.decode("route distinguisher", &as, &rd.Value)
		rd.AS = uint32(as)
	case 1:
		var value uint16
		rd.Addr, err = c.addr(4, "route distinguisher")
		if err == nil {
			err = c.decode("route distinguisher", &value)
		}
		rd.Value = uint32(value)
	case 2:
		var value uint16
		err = c.decode("route distinguisher", &rd.AS, &value)
		rd.Value = uint32(value)
	default:
		_, err = c.bytes(rdLen-2, "route distinguisher")
		if err == nil {
			err = errors.Wrapf(ErrInvalidDiscriminant, "route distinguisher type %d", rd.Type)
		}
	}

	return rd, err
}

func decodeRouteTargetMembership(c *cursor, afi AFI, pathID uint32) (NLRI, error) {
	r := RouteTargetMembership{
		PathID: pathID,
	}

	var err error
	r.PrefixLen, err = c.uint8("prefix length")
	if err != nil {
		return nil, err
	}

	if r.PrefixLen == 0 {
		return r, nil
	}

	if r.PrefixLen < 32 || r.PrefixLen > 96 {
		return nil, errors.Wrapf(ErrLengthMismatch, "route target membership prefix length %d", r.PrefixLen)
	}

	r.OriginAS, err = c.uint32("origin AS")
	if err != nil {
		return nil, err
	}

	bits := r.PrefixLen - 32
	rt, err := c.bytes(bnet.WireLen(bits), "route target")
	if err != nil {
		return nil, err
	}

	if bits%OctetLen != 0 && rt[len(rt)-1]&(0xff>>(bits%OctetLen)) != 0 {
		return nil, errors.Wrapf(ErrNonZeroPaddingBits, "route target /%d", r.PrefixLen)
	}
	copy(r.RouteTarget[:], rt)

	return r, nil
}

func (ctx *decodeContext) decodeMPReachNLRI(pa *PathAttribute, c *cursor) error {
	r := &MPReachNLRI{}
	pa.Value = r

	err := c.decode("MP_REACH_NLRI AFI/SAFI", &r.AFI, &r.SAFI)
	if err != nil {
		return err
	}

	nhLen, err := c.uint8("next hop length")
	if err != nil {
		return err
	}

	nhc, err := c.sub(int(nhLen), "next hop")
	if err != nil {
		return err
	}
	r.NextHopRaw = append([]byte(nil), nhc.buf...)

	r.NextHops, err = decodeNextHops(nhc)
	if err != nil {
		return err
	}

	r.SNPAs, err = decodeSNPAs(c)
	if err != nil {
		return err
	}

	r.NLRI, r.AddPath, err = ctx.decodeNLRI(c, r.AFI, r.SAFI)
	return err
}

// decodeNextHops decodes the next hop field of MP_REACH_NLRI. VPN next hops carry
// a Route Distinguisher before each address. Unknown layouts are left to NextHopRaw.
func decodeNextHops(c *cursor) ([]netip.Addr, error) {
	layout := map[int][]int{
		4:  {4},
		16: {16},
		32: {16, 16},
		12: {-rdLen, 4},
		24: {-rdLen, 16},
		48: {-rdLen, 16, -rdLen, 16},
	}

	fields, ok := layout[c.len()]
	if !ok {
		c.rest()
		return nil, nil
	}

	addrs := make([]netip.Addr, 0, len(fields))
	for _, n := range fields {
		if n < 0 {
			if _, err := c.bytes(-n, "next hop route distinguisher"); err != nil {
				return addrs, err
			}
			continue
		}

		addr, err := c.addr(n, "next hop")
		if err != nil {
			return addrs, err
		}
		addrs = append(addrs, addr)
	}

	return addrs, nil
}

// decodeSNPAs decodes the SNPA list of RFC 2858. Current speakers send a count of 0.
func decodeSNPAs(c *cursor) ([][]byte, error) {
	n, err := c.uint8("SNPA count")
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, nil
	}

	snpas := make([][]byte, 0, n)
	for i := uint8(0); i < n; i++ {
		semiOctets, err := c.uint8("SNPA length")
		if err != nil {
			return snpas, err
		}

		snpa, err := c.bytes((int(semiOctets)+1)/2, "SNPA")
		if err != nil {
			return snpas, err
		}
		snpas = append(snpas, snpa)
	}

	return snpas, nil
}

func (ctx *decodeContext) decodeMPUnreachNLRI(pa *PathAttribute, c *cursor) error {
	r := &MPUnreachNLRI{}
	pa.Value = r

	err := c.decode("MP_UNREACH_NLRI AFI/SAFI", &r.AFI, &r.SAFI)
	if err != nil {
		return err
	}

	r.NLRI, r.AddPath, err = ctx.decodeNLRI(c, r.AFI, r.SAFI)
	return err
}
