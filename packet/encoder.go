package packet

import (
	"bytes"
	"net/netip"

	"github.com/bio-routing/tflow2/convert"
	"github.com/pkg/errors"

	bnet "github.com/taktv6/bgpdecode/net"
)

// EncodeUpdateMsg encodes u as a complete UPDATE message including the header
func EncodeUpdateMsg(u *BGPUpdate) ([]byte, error) {
	body, err := EncodeUpdate(u)
	if err != nil {
		return nil, err
	}

	length := HeaderLen + len(body)
	if length > ExtendedMaxLen {
		return nil, errors.Errorf("Unable to encode UPDATE of %d bytes", length)
	}

	buf := bytes.NewBuffer(make([]byte, 0, length))
	err = encodeHeader(buf, uint16(length), UpdateMsg)
	if err != nil {
		return nil, err
	}

	buf.Write(body)
	return buf.Bytes(), nil
}

func encodeHeader(buf *bytes.Buffer, length uint16, typ uint8) error {
	for i := 0; i < MarkerLen; i++ {
		if err := buf.WriteByte(0xff); err != nil {
			return err
		}
	}

	if _, err := buf.Write(convert.Uint16Byte(length)); err != nil {
		return err
	}

	return buf.WriteByte(typ)
}

// EncodeUpdate encodes u as an UPDATE message body. Path attribute values other than
// extended communities, PMSI tunnel, tunnel encapsulation, AIGP and LINK_STATE are
// supported; NLRI can be plain, labeled, VPN or flow-spec.
func EncodeUpdate(u *BGPUpdate) ([]byte, error) {
	withdrawn := &bytes.Buffer{}
	err := encodeNLRIs(withdrawn, u.WithdrawnRoutes, u.AddPath)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to encode withdrawn routes")
	}

	attrs := &bytes.Buffer{}
	err = encodePathAttrs(attrs, u.PathAttributes)
	if err != nil {
		return nil, err
	}

	nlri := &bytes.Buffer{}
	err = encodeNLRIs(nlri, u.NLRI, u.AddPath)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to encode NLRI")
	}

	if withdrawn.Len() > 0xffff || attrs.Len() > 0xffff {
		return nil, errors.Errorf("Unable to encode sections of %d and %d bytes", withdrawn.Len(), attrs.Len())
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+withdrawn.Len()+attrs.Len()+nlri.Len()))
	buf.Write(convert.Uint16Byte(uint16(withdrawn.Len())))
	buf.Write(withdrawn.Bytes())

	buf.Write(convert.Uint16Byte(uint16(attrs.Len())))
	buf.Write(attrs.Bytes())
	buf.Write(nlri.Bytes())

	return buf.Bytes(), nil
}

func writeUint32s(buf *bytes.Buffer, values ...uint32) {
	for _, v := range values {
		buf.Write(convert.Uint32Byte(v))
	}
}

func encodePathAttrs(buf *bytes.Buffer, attrs []PathAttribute) error {
	for i := range attrs {
		if err := encodePathAttr(buf, &attrs[i]); err != nil {
			return errors.Wrapf(err, "Unable to encode path attribute %d", attrs[i].TypeCode)
		}
	}
	return nil
}

func encodePathAttr(buf *bytes.Buffer, pa *PathAttribute) error {
	val := &bytes.Buffer{}
	err := encodeAttrValue(val, pa.Value)
	if err != nil {
		return err
	}

	if val.Len() > 0xffff {
		return errors.Errorf("value of %d bytes", val.Len())
	}

	flags := pa.flags()
	if val.Len() > 0xff {
		flags |= FlagExtendedLength
	}

	buf.WriteByte(flags)
	buf.WriteByte(uint8(pa.TypeCode))

	if flags&FlagExtendedLength != 0 {
		buf.Write(convert.Uint16Byte(uint16(val.Len())))
	} else {
		buf.WriteByte(uint8(val.Len()))
	}

	_, err = buf.Write(val.Bytes())
	return err
}

func (pa *PathAttribute) flags() uint8 {
	flags := uint8(0)
	if pa.Optional {
		flags |= FlagOptional
	}
	if pa.Transitive {
		flags |= FlagTransitive
	}
	if pa.Partial {
		flags |= FlagPartial
	}
	if pa.ExtendedLength {
		flags |= FlagExtendedLength
	}
	return flags
}

func encodeAttrValue(buf *bytes.Buffer, v AttrValue) error {
	switch v := v.(type) {
	case Origin:
		buf.WriteByte(uint8(v))
	case ASPath:
		return encodeASPath(buf, v)
	case NextHop:
		buf.Write(v.Addr.AsSlice())
	case MED:
		buf.Write(convert.Uint32Byte(uint32(v)))
	case LocalPref:
		buf.Write(convert.Uint32Byte(uint32(v)))
	case AtomicAggregate:
	case Aggregator:
		if v.FourOctet {
			buf.Write(convert.Uint32Byte(v.ASN))
		} else {
			buf.Write(convert.Uint16Byte(uint16(v.ASN)))
		}
		buf.Write(v.Addr.AsSlice())
	case Communities:
		writeUint32s(buf, v...)
	case OriginatorID:
		buf.Write(v.Addr.AsSlice())
	case ClusterList:
		for _, addr := range v {
			buf.Write(addr.AsSlice())
		}
	case LargeCommunities:
		for _, lc := range v {
			writeUint32s(buf, lc.GlobalAdmin, lc.LocalData1, lc.LocalData2)
		}
	case *AttrSet:
		buf.Write(convert.Uint32Byte(v.OriginAS))
		return encodePathAttrs(buf, v.Attributes)
	case *MPReachNLRI:
		return encodeMPReachNLRI(buf, v)
	case *MPUnreachNLRI:
		buf.Write(convert.Uint16Byte(uint16(v.AFI)))
		buf.WriteByte(uint8(v.SAFI))
		return encodeNLRIs(buf, v.NLRI, v.AddPath)
	case UnknownAttr:
		buf.Write(v.Raw)
	default:
		return errors.Errorf("Unable to encode value of type %T", v)
	}

	return nil
}

// encodeASPath writes 4 octet AS numbers
func encodeASPath(buf *bytes.Buffer, path ASPath) error {
	for _, seg := range path {
		if len(seg.ASNs) > 0xff {
			return errors.Errorf("AS path segment with %d ASNs", len(seg.ASNs))
		}

		buf.WriteByte(seg.Type)
		buf.WriteByte(uint8(len(seg.ASNs)))
		writeUint32s(buf, seg.ASNs...)
	}
	return nil
}

func encodeMPReachNLRI(buf *bytes.Buffer, r *MPReachNLRI) error {
	nh := r.NextHopRaw
	if nh == nil {
		for _, addr := range r.NextHops {
			nh = append(nh, addr.AsSlice()...)
		}
	}

	if len(nh) > 0xff {
		return errors.Errorf("next hop of %d bytes", len(nh))
	}

	buf.Write(convert.Uint16Byte(uint16(r.AFI)))
	buf.WriteByte(uint8(r.SAFI))
	buf.WriteByte(uint8(len(nh)))
	buf.Write(nh)

	buf.WriteByte(uint8(len(r.SNPAs)))
	for _, snpa := range r.SNPAs {
		buf.WriteByte(uint8(len(snpa) * 2))
		buf.Write(snpa)
	}

	return encodeNLRIs(buf, r.NLRI, r.AddPath)
}

func encodeNLRIs(buf *bytes.Buffer, nlri []NLRI, addPath bool) error {
	for _, n := range nlri {
		if err := encodeNLRI(buf, n, addPath); err != nil {
			return errors.Wrapf(err, "Unable to encode %s", n)
		}
	}
	return nil
}

func encodeNLRI(buf *bytes.Buffer, n NLRI, addPath bool) error {
	switch n := n.(type) {
	case IPPrefix:
		if addPath {
			buf.Write(convert.Uint32Byte(n.PathID))
		}
		encodePrefix(buf, n.Prefix, 0)
	case LabeledPrefix:
		if addPath {
			buf.Write(convert.Uint32Byte(n.PathID))
		}
		encodeLabeledPrefix(buf, n.Labels, nil, n.Prefix)
	case VPNPrefix:
		if addPath {
			buf.Write(convert.Uint32Byte(n.PathID))
		}
		encodeLabeledPrefix(buf, n.Labels, &n.RD, n.Prefix)
	case FlowSpecRule:
		return encodeFlowSpecRule(buf, n)
	default:
		return errors.Errorf("Unable to encode NLRI of type %T", n)
	}

	return nil
}

// encodePrefix writes the prefix length plus extra bits followed by the significant octets
func encodePrefix(buf *bytes.Buffer, pfx netip.Prefix, extra int) {
	buf.WriteByte(uint8(pfx.Bits() + extra))
	buf.Write(bnet.PrefixToWire(pfx))
}

func encodeLabeledPrefix(buf *bytes.Buffer, labels []MPLSLabel, rd *RouteDistinguisher, pfx netip.Prefix) {
	extra := len(labels) * labelLen * OctetLen
	if rd != nil {
		extra += rdLen * OctetLen
	}

	buf.WriteByte(uint8(pfx.Bits() + extra))
	for _, l := range labels {
		v := l.Label<<4 | uint32(l.TC&0x7)<<1
		if l.BottomOfStack {
			v |= 1
		}
		buf.Write([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
	}

	if rd != nil {
		encodeRD(buf, *rd)
	}
	buf.Write(bnet.PrefixToWire(pfx))
}

func encodeRD(buf *bytes.Buffer, rd RouteDistinguisher) {
	buf.Write(convert.Uint16Byte(rd.Type))
	switch rd.Type {
	case 0:
		buf.Write(convert.Uint16Byte(uint16(rd.AS)))
		buf.Write(convert.Uint32Byte(rd.Value))
	case 1:
		buf.Write(rd.Addr.AsSlice())
		buf.Write(convert.Uint16Byte(uint16(rd.Value)))
	default:
		buf.Write(convert.Uint32Byte(rd.AS))
		buf.Write(convert.Uint16Byte(uint16(rd.Value)))
	}
}

func encodeFlowSpecRule(buf *bytes.Buffer, r FlowSpecRule) error {
	body := &bytes.Buffer{}
	if r.RD != nil {
		encodeRD(body, *r.RD)
	}

	for _, comp := range r.Components {
		body.WriteByte(uint8(comp.Type))

		if comp.Type == FlowSpecDestPrefix || comp.Type == FlowSpecSourcePrefix {
			encodeFlowSpecPrefix(body, comp)
			continue
		}

		for _, item := range comp.Items {
			if err := encodeFlowSpecItem(body, comp.Type, item); err != nil {
				return err
			}
		}
	}

	switch {
	case body.Len() < flowSpecExtendedLen:
		buf.WriteByte(uint8(body.Len()))
	case body.Len() <= 0xfff:
		buf.Write(convert.Uint16Byte(uint16(0xf000 | body.Len())))
	default:
		return errors.Errorf("flow-spec NLRI of %d bytes", body.Len())
	}

	buf.Write(body.Bytes())
	return nil
}

func encodeFlowSpecPrefix(buf *bytes.Buffer, comp FlowSpecComponent) {
	if comp.Prefix.Addr().Is4() {
		encodePrefix(buf, comp.Prefix, 0)
		return
	}

	pfxlen := uint8(comp.Prefix.Bits())
	buf.WriteByte(pfxlen)
	buf.WriteByte(comp.Offset)

	// pattern holds bits [offset, pfxlen) of the address
	addr := comp.Prefix.Masked().Addr().As16()
	n := pfxlen - comp.Offset
	pattern := make([]byte, bnet.WireLen(n))
	for i := uint8(0); i < n; i++ {
		pos := comp.Offset + i
		if addr[pos/OctetLen]&(0x80>>(pos%OctetLen)) != 0 {
			pattern[i/OctetLen] |= 0x80 >> (i % OctetLen)
		}
	}
	buf.Write(pattern)
}

func encodeFlowSpecItem(buf *bytes.Buffer, t FlowSpecComponentType, item FlowSpecItem) error {
	op := uint8(0)
	if item.Op.EndOfList {
		op |= flowSpecOpEndOfList
	}
	if item.Op.And {
		op |= flowSpecOpAnd
	}

	if isBitmaskComponent(t) {
		if item.Op.Not {
			op |= flowSpecOpNot
		}
		if item.Op.Match {
			op |= flowSpecOpMatch
		}
	} else {
		if item.Op.LT {
			op |= flowSpecOpLT
		}
		if item.Op.GT {
			op |= flowSpecOpGT
		}
		if item.Op.EQ {
			op |= flowSpecOpEQ
		}
	}

	switch item.Op.Len {
	case 1:
		buf.WriteByte(op)
		buf.WriteByte(uint8(item.Value))
	case 2:
		buf.WriteByte(op | 0x10)
		buf.Write(convert.Uint16Byte(uint16(item.Value)))
	case 4:
		buf.WriteByte(op | 0x20)
		buf.Write(convert.Uint32Byte(uint32(item.Value)))
	case 8:
		buf.WriteByte(op | 0x30)
		writeUint32s(buf, uint32(item.Value>>32), uint32(item.Value))
	default:
		return errors.Errorf("flow-spec value length %d", item.Op.Len)
	}
	return nil
}
