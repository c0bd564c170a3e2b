package packet

import (
	"net/netip"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// AddPathMode selects how Path Identifiers in NLRI are detected
type AddPathMode int

const (
	// AddPathAuto uses Path Identifiers only where the NLRI does not parse without them
	AddPathAuto AddPathMode = iota
	AddPathNever
	AddPathAlways
)

// Options configures a Decoder
type Options struct {
	// ASNWidth forces the AS number width of AS_PATH (2 or 4). 0 enables detection.
	ASNWidth int

	AddPath AddPathMode

	// FlowSpecLegacyIPv6 accepts IPv6 prefix components with offset and length swapped
	FlowSpecLegacyIPv6 bool
}

// DefaultOptions returns the options used by a zero configuration
func DefaultOptions() Options {
	return Options{
		AddPath:            AddPathAuto,
		FlowSpecLegacyIPv6: true,
	}
}

// Decoder decodes BGP UPDATE messages. It holds no per message state and can be
// used from multiple goroutines.
type Decoder struct {
	opts Options
}

func NewDecoder(opts Options) *Decoder {
	return &Decoder{
		opts: opts,
	}
}

// decodeContext is the state of a single decode call
type decodeContext struct {
	opts *Options
	errs []error

	// Protocol-ID learned from BGP-LS NLRI, needed to interpret LINK_STATE
	lsProtocol      LSProtocolID
	lsProtocolKnown bool

	attrSetDepth int
}

func (d *Decoder) newContext() *decodeContext {
	return &decodeContext{
		opts: &d.opts,
	}
}

func (ctx *decodeContext) record(err error) {
	glog.V(2).Infof("%v", err)
	ctx.errs = append(ctx.errs, err)
}

// Err returns all failures recorded while decoding u combined into one error
func (u *BGPUpdate) Err() error {
	return multierr.Combine(u.Errors...)
}

// DecodeMessage decodes a BGP message including its header. Only UPDATE messages
// are decoded.
func (d *Decoder) DecodeMessage(msg []byte) (*BGPMessage, error) {
	hdr, err := decodeHeader(newCursor(msg, 0))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to decode header")
	}

	if hdr.Type != UpdateMsg {
		return &BGPMessage{Header: &hdr}, errors.Wrapf(ErrInvalidDiscriminant, "message type %d is not UPDATE", hdr.Type)
	}

	u, err := d.DecodeUpdate(msg[HeaderLen:hdr.Length])
	return &BGPMessage{
		Header: &hdr,
		Body:   u,
	}, err
}

func decodeHeader(c *cursor) (BGPHeader, error) {
	hdr := BGPHeader{}

	marker, err := c.bytes(MarkerLen, "marker")
	if err != nil {
		return hdr, err
	}

	for i := range marker {
		if marker[i] != 0xff {
			return hdr, errors.Wrapf(ErrInvalidDiscriminant, "Invalid marker: %x", marker)
		}
	}

	err = c.decode("header", &hdr.Length, &hdr.Type)
	if err != nil {
		return hdr, err
	}

	if hdr.Length < MinLen || hdr.Length > ExtendedMaxLen {
		return hdr, errors.Wrapf(ErrLengthMismatch, "Invalid length in BGP header: %d", hdr.Length)
	}

	if int(hdr.Length) > len(c.buf) {
		return hdr, errors.Wrapf(ErrTruncated, "header announces %d bytes, have %d", hdr.Length, len(c.buf))
	}

	return hdr, nil
}

// DecodeUpdate decodes an UPDATE message body (the message without its 19 byte
// header). The returned update holds everything that could be decoded, even when
// an error is returned.
func (d *Decoder) DecodeUpdate(body []byte) (*BGPUpdate, error) {
	ctx := d.newContext()
	u := ctx.decodeUpdateMsg(newCursor(body, 0))
	u.Errors = ctx.errs
	return u, u.Err()
}

func (ctx *decodeContext) decodeUpdateMsg(c *cursor) *BGPUpdate {
	msg := &BGPUpdate{}

	err := c.decode("withdrawn routes length", &msg.WithdrawnRoutesLen)
	if err != nil {
		ctx.record(err)
		return msg
	}

	wc, err := c.sub(int(msg.WithdrawnRoutesLen), "withdrawn routes")
	if err != nil {
		ctx.record(err)
		return msg
	}

	msg.WithdrawnRoutes, msg.AddPath = ctx.decodeUnicastSection(wc)

	err = c.decode("total path attribute length", &msg.TotalPathAttrLen)
	if err != nil {
		ctx.record(err)
		return msg
	}

	ac, err := c.sub(int(msg.TotalPathAttrLen), "path attributes")
	if err != nil {
		ctx.record(err)
		ac, _ = c.sub(c.len(), "path attributes")
	}

	msg.PathAttributes = ctx.decodePathAttrs(ac)
	ctx.resolveLinkState(msg.PathAttributes)

	nlri, addPath := ctx.decodeUnicastSection(c)
	msg.NLRI = nlri
	msg.AddPath = msg.AddPath || addPath

	return msg
}

// decodeUnicastSection decodes the IPv4 unicast withdrawn routes or NLRI fields
func (ctx *decodeContext) decodeUnicastSection(c *cursor) ([]NLRI, bool) {
	if c.len() == 0 {
		return nil, false
	}

	nlri, addPath, err := ctx.decodeNLRI(c, AFIIPv4, SAFIUnicast)
	if err != nil {
		ctx.record(err)
	}
	return nlri, addPath
}

func (ctx *decodeContext) decodePathAttrs(c *cursor) []PathAttribute {
	attrs := make([]PathAttribute, 0)

	for c.len() > 0 {
		pa := PathAttribute{
			Offset: c.offset(),
		}

		if c.len() < 3 {
			ctx.record(errors.Wrapf(ErrTrailingBytes, "%d bytes after last path attribute at offset %d", c.len(), c.offset()))
			return attrs
		}

		flags := uint8(0)
		err := c.decode("path attribute header", &flags, &pa.TypeCode)
		if err != nil {
			ctx.record(&AttrError{Offset: pa.Offset, Err: err})
			return attrs
		}
		pa.setFlags(flags)

		err = pa.setLength(c)
		if err != nil {
			ctx.record(&AttrError{TypeCode: pa.TypeCode, Offset: pa.Offset, Err: err})
			return attrs
		}

		vc, err := c.sub(int(pa.Length), "path attribute value")
		if err != nil {
			// Where the next attribute starts is unknown
			pa.Err = &AttrError{TypeCode: pa.TypeCode, Offset: pa.Offset, Err: err}
			pa.Value = UnknownAttr{Raw: c.rest()}
			ctx.record(pa.Err)
			return append(attrs, pa)
		}

		ctx.decodePathAttr(&pa, vc)
		attrs = append(attrs, pa)
	}

	return attrs
}

func (ctx *decodeContext) decodePathAttr(pa *PathAttribute, c *cursor) {
	var err error

	switch pa.TypeCode {
	case OriginAttr:
		err = pa.decodeOrigin(c)
	case ASPathAttr, AS4PathAttr:
		err = pa.decodeASPath(c, ctx.opts.ASNWidth)
	case NextHopAttr:
		err = pa.decodeNextHop(c)
	case MEDAttr:
		err = pa.decodeMED(c)
	case LocalPrefAttr:
		err = pa.decodeLocalPref(c)
	case AtomicAggrAttr:
		pa.Value = AtomicAggregate{}
	case AggregatorAttr, AS4AggregatorAttr:
		err = pa.decodeAggregator(c)
	case CommunitiesAttr:
		err = pa.decodeCommunities(c)
	case OriginatorIDAttr:
		err = pa.decodeOriginatorID(c)
	case ClusterListAttr:
		err = pa.decodeClusterList(c)
	case MPReachNLRIAttr:
		err = ctx.decodeMPReachNLRI(pa, c)
	case MPUnreachNLRIAttr:
		err = ctx.decodeMPUnreachNLRI(pa, c)
	case ExtCommunitiesAttr:
		err = pa.decodeExtendedCommunities(c)
	case PMSITunnelAttr:
		err = pa.decodePMSITunnel(c)
	case TunnelEncapAttr:
		err = pa.decodeTunnelEncapsulation(c)
	case AIGPAttr:
		err = pa.decodeAIGP(c)
	case LinkStateAttr:
		ctx.deferLinkState(pa, c)
		return
	case LargeCommunityAttr:
		err = pa.decodeLargeCommunities(c)
	case AttrSetAttr:
		err = ctx.decodeAttrSet(pa, c)
	default:
		pa.Value = UnknownAttr{Raw: c.rest()}
	}

	if err == nil {
		err = c.done("path attribute value")
	}
	ctx.finishAttr(pa, c, err)
}

// finishAttr records the outcome of decoding pa
func (ctx *decodeContext) finishAttr(pa *PathAttribute, c *cursor, err error) {
	err = multierr.Append(pa.validateFlags(), err)
	if err == nil {
		return
	}

	if pa.Value == nil {
		pa.Value = UnknownAttr{Raw: append([]byte(nil), c.buf...)}
	}

	pa.Err = &AttrError{TypeCode: pa.TypeCode, Offset: pa.Offset, Err: err}
	ctx.record(pa.Err)
}

func (pa *PathAttribute) setFlags(flags uint8) {
	pa.Optional = isOptional(flags)
	pa.Transitive = isTransitive(flags)
	pa.Partial = isPartial(flags)
	pa.ExtendedLength = isExtendedLength(flags)
}

func (pa *PathAttribute) setLength(c *cursor) error {
	if pa.ExtendedLength {
		return c.decode("extended attribute length", &pa.Length)
	}

	x, err := c.uint8("attribute length")
	if err != nil {
		return err
	}
	pa.Length = uint16(x)
	return nil
}

// validateFlags checks the optional and transitive bits of attributes whose category is fixed
func (pa *PathAttribute) validateFlags() error {
	wellKnown := false
	switch pa.TypeCode {
	case OriginAttr, ASPathAttr, NextHopAttr, LocalPrefAttr, AtomicAggrAttr:
		wellKnown = true
	case MEDAttr, AggregatorAttr, CommunitiesAttr, OriginatorIDAttr, ClusterListAttr,
		MPReachNLRIAttr, MPUnreachNLRIAttr, ExtCommunitiesAttr, AS4PathAttr, AS4AggregatorAttr,
		PMSITunnelAttr, TunnelEncapAttr, AIGPAttr, LinkStateAttr, LargeCommunityAttr, AttrSetAttr:
	default:
		return nil
	}

	if wellKnown && (pa.Optional || !pa.Transitive) {
		return errors.Wrapf(ErrInvalidFlags, "well-known attribute %d optional=%v transitive=%v", pa.TypeCode, pa.Optional, pa.Transitive)
	}

	if !wellKnown && !pa.Optional {
		return errors.Wrapf(ErrInvalidFlags, "optional attribute %d without optional flag", pa.TypeCode)
	}

	return nil
}

func isOptional(x uint8) bool {
	return x&FlagOptional == FlagOptional
}

func isTransitive(x uint8) bool {
	return x&FlagTransitive == FlagTransitive
}

func isPartial(x uint8) bool {
	return x&FlagPartial == FlagPartial
}

func isExtendedLength(x uint8) bool {
	return x&FlagExtendedLength == FlagExtendedLength
}

func (pa *PathAttribute) decodeOrigin(c *cursor) error {
	if err := expectLen("ORIGIN", c.len(), 1); err != nil {
		return err
	}

	origin, err := c.uint8("ORIGIN")
	if err != nil {
		return err
	}

	pa.Value = Origin(origin)
	if origin > INCOMPLETE {
		return errors.Wrapf(ErrInvalidDiscriminant, "ORIGIN %d", origin)
	}
	return nil
}

func (pa *PathAttribute) decodeNextHop(c *cursor) error {
	if err := expectLen("NEXT_HOP", c.len(), 4, 16); err != nil {
		return err
	}

	addr, err := c.addr(c.len(), "NEXT_HOP")
	if err != nil {
		return err
	}

	pa.Value = NextHop{Addr: addr}
	return nil
}

func (pa *PathAttribute) decodeMED(c *cursor) error {
	med, err := pa.decodeUint32(c, "MULTI_EXIT_DISC")
	if err != nil {
		return err
	}

	pa.Value = MED(med)
	return nil
}

func (pa *PathAttribute) decodeLocalPref(c *cursor) error {
	lpref, err := pa.decodeUint32(c, "LOCAL_PREF")
	if err != nil {
		return err
	}

	pa.Value = LocalPref(lpref)
	return nil
}

func (pa *PathAttribute) decodeUint32(c *cursor, field string) (uint32, error) {
	if err := expectLen(field, c.len(), 4); err != nil {
		return 0, err
	}
	return c.uint32(field)
}

func (pa *PathAttribute) decodeAggregator(c *cursor) error {
	want := []int{6, 8}
	if pa.TypeCode == AS4AggregatorAttr {
		want = []int{8}
	}

	if err := expectLen("AGGREGATOR", c.len(), want...); err != nil {
		return err
	}

	aggr := Aggregator{
		FourOctet: c.len() == 8,
	}

	var err error
	if aggr.FourOctet {
		aggr.ASN, err = c.uint32("aggregator AS")
	} else {
		var asn uint16
		asn, err = c.uint16("aggregator AS")
		aggr.ASN = uint32(asn)
	}
	if err != nil {
		return err
	}

	aggr.Addr, err = c.addr(4, "aggregator address")
	if err != nil {
		return err
	}

	pa.Value = aggr
	return nil
}

func (pa *PathAttribute) decodeCommunities(c *cursor) error {
	if c.len()%4 != 0 {
		return errors.Wrapf(ErrLengthMismatch, "COMMUNITIES length %d is not a multiple of 4", c.len())
	}

	comms := make(Communities, 0, c.len()/4)
	for c.len() > 0 {
		comm, err := c.uint32("community")
		if err != nil {
			return err
		}
		comms = append(comms, comm)
	}

	pa.Value = comms
	return nil
}

func (pa *PathAttribute) decodeLargeCommunities(c *cursor) error {
	if c.len()%12 != 0 {
		return errors.Wrapf(ErrLengthMismatch, "LARGE_COMMUNITY length %d is not a multiple of 12", c.len())
	}

	comms := make(LargeCommunities, 0, c.len()/12)
	for c.len() > 0 {
		lc := LargeCommunity{}
		err := c.decode("large community", &lc.GlobalAdmin, &lc.LocalData1, &lc.LocalData2)
		if err != nil {
			return err
		}
		comms = append(comms, lc)
	}

	pa.Value = comms
	return nil
}

func (pa *PathAttribute) decodeOriginatorID(c *cursor) error {
	if err := expectLen("ORIGINATOR_ID", c.len(), 4); err != nil {
		return err
	}

	addr, err := c.addr(4, "ORIGINATOR_ID")
	if err != nil {
		return err
	}

	pa.Value = OriginatorID{Addr: addr}
	return nil
}

func (pa *PathAttribute) decodeClusterList(c *cursor) error {
	if c.len()%4 != 0 {
		return errors.Wrapf(ErrLengthMismatch, "CLUSTER_LIST length %d is not a multiple of 4", c.len())
	}

	list := make(ClusterList, 0, c.len()/4)
	for c.len() > 0 {
		addr, err := c.addr(4, "cluster ID")
		if err != nil {
			return err
		}
		list = append(list, addr)
	}

	pa.Value = list
	return nil
}

// decodeAttrSet decodes ATTR_SET. Its nested attributes are decoded like top level
// ones; ATTR_SET itself must not nest.
func (ctx *decodeContext) decodeAttrSet(pa *PathAttribute, c *cursor) error {
	if ctx.attrSetDepth > 0 {
		pa.Value = UnknownAttr{Raw: c.rest()}
		return errors.Wrap(ErrInvalidDiscriminant, "ATTR_SET inside ATTR_SET")
	}

	set := &AttrSet{}
	pa.Value = set

	var err error
	set.OriginAS, err = c.uint32("ATTR_SET origin AS")
	if err != nil {
		return err
	}

	ctx.attrSetDepth++
	set.Attributes = ctx.decodePathAttrs(c)
	ctx.attrSetDepth--

	return nil
}

// addrFromBits reads an address whose length is given in bits (0, 32 or 128)
func addrFromBits(c *cursor, bits uint8, field string) (netip.Addr, error) {
	switch bits {
	case 0:
		return netip.Addr{}, nil
	case 32:
		return c.addr(4, field)
	case 128:
		return c.addr(16, field)
	}
	return netip.Addr{}, errors.Wrapf(ErrLengthMismatch, "%s: address length %d bits", field, bits)
}
