package packet

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/pkg/errors"

	bnet "github.com/taktv6/bgpdecode/net"
)

type FlowSpecComponentType uint8

const (
	FlowSpecDestPrefix   FlowSpecComponentType = 1
	FlowSpecSourcePrefix FlowSpecComponentType = 2
	FlowSpecIPProtocol   FlowSpecComponentType = 3
	FlowSpecPort         FlowSpecComponentType = 4
	FlowSpecDestPort     FlowSpecComponentType = 5
	FlowSpecSourcePort   FlowSpecComponentType = 6
	FlowSpecICMPType     FlowSpecComponentType = 7
	FlowSpecICMPCode     FlowSpecComponentType = 8
	FlowSpecTCPFlags     FlowSpecComponentType = 9
	FlowSpecPacketLength FlowSpecComponentType = 10
	FlowSpecDSCP         FlowSpecComponentType = 11
	FlowSpecFragment     FlowSpecComponentType = 12
	FlowSpecFlowLabel    FlowSpecComponentType = 13
)

// Operator byte
const (
	flowSpecOpEndOfList = 0x80
	flowSpecOpAnd       = 0x40
	flowSpecOpLenMask   = 0x30
	flowSpecOpLT        = 0x04
	flowSpecOpGT        = 0x02
	flowSpecOpEQ        = 0x01
	flowSpecOpNot       = 0x02
	flowSpecOpMatch     = 0x01

	// NLRI lengths of 240 and above take two octets
	flowSpecExtendedLen = 0xf0
)

// Fragment bitmask values
const (
	FlowSpecFragmentDF  = 0x01
	FlowSpecFragmentIsF = 0x02
	FlowSpecFragmentFF  = 0x04
	FlowSpecFragmentLF  = 0x08
)

// FlowSpecOp is a decoded operator byte. LT, GT and EQ are used by numeric
// components, Not and Match by bitmask components (TCP flags, fragment).
type FlowSpecOp struct {
	EndOfList bool
	And       bool
	Len       uint8
	LT        bool
	GT        bool
	EQ        bool
	Not       bool
	Match     bool
}

type FlowSpecItem struct {
	Op    FlowSpecOp
	Value uint64
}

// FlowSpecComponent either matches a prefix (types 1 and 2) or holds an operator chain
type FlowSpecComponent struct {
	Type   FlowSpecComponentType
	Prefix netip.Prefix
	Offset uint8
	Items  []FlowSpecItem
}

type FlowSpecRule struct {
	RD         *RouteDistinguisher
	Components []FlowSpecComponent
}

func (FlowSpecRule) isNLRI() {}

func (r FlowSpecRule) String() string {
	parts := make([]string, 0, len(r.Components)+1)
	if r.RD != nil {
		parts = append(parts, r.RD.String())
	}

	for _, comp := range r.Components {
		if comp.Type == FlowSpecDestPrefix || comp.Type == FlowSpecSourcePrefix {
			parts = append(parts, fmt.Sprintf("%d:%s", comp.Type, comp.Prefix))
			continue
		}

		items := make([]string, 0, len(comp.Items))
		for _, item := range comp.Items {
			items = append(items, fmt.Sprintf("%+v=%d", item.Op, item.Value))
		}
		parts = append(parts, fmt.Sprintf("%d:[%s]", comp.Type, strings.Join(items, " ")))
	}

	return "flowspec " + strings.Join(parts, " ")
}

func isBitmaskComponent(t FlowSpecComponentType) bool {
	return t == FlowSpecTCPFlags || t == FlowSpecFragment
}

func decodeFlowSpecOp(op uint8, bitmask bool) FlowSpecOp {
	o := FlowSpecOp{
		EndOfList: op&flowSpecOpEndOfList != 0,
		And:       op&flowSpecOpAnd != 0,
		Len:       1 << ((op & flowSpecOpLenMask) >> 4),
	}

	if bitmask {
		o.Not = op&flowSpecOpNot != 0
		o.Match = op&flowSpecOpMatch != 0
	} else {
		o.LT = op&flowSpecOpLT != 0
		o.GT = op&flowSpecOpGT != 0
		o.EQ = op&flowSpecOpEQ != 0
	}

	return o
}

func (ctx *decodeContext) decodeFlowSpecRules(c *cursor, afi AFI, vpn bool) ([]NLRI, error) {
	rules := make([]NLRI, 0)

	for c.len() > 0 {
		off := c.offset()

		first, err := c.uint8("flow-spec NLRI length")
		if err != nil {
			return rules, err
		}

		l := int(first)
		if first >= flowSpecExtendedLen {
			second, err := c.uint8("flow-spec NLRI length")
			if err != nil {
				return rules, err
			}
			l = int(first&0x0f)<<8 | int(second)
		}

		rc, err := c.sub(l, "flow-spec NLRI")
		if err != nil {
			return rules, err
		}

		r, err := ctx.decodeFlowSpecRule(rc, afi, vpn)
		if err != nil {
			rules = append(rules, MalformedNLRI{Offset: off, Raw: append([]byte(nil), rc.buf...), Err: err})
			continue
		}
		rules = append(rules, r)
	}

	return rules, nil
}

func (ctx *decodeContext) decodeFlowSpecRule(c *cursor, afi AFI, vpn bool) (FlowSpecRule, error) {
	r := FlowSpecRule{}

	if vpn {
		rd, err := decodeRD(c)
		if err != nil {
			return r, err
		}
		r.RD = &rd
	}

	for c.len() > 0 {
		t, err := c.uint8("flow-spec component type")
		if err != nil {
			return r, err
		}

		comp, err := ctx.decodeFlowSpecComponent(FlowSpecComponentType(t), c, afi)
		if err != nil {
			return r, err
		}
		r.Components = append(r.Components, comp)
	}

	return r, nil
}

func (ctx *decodeContext) decodeFlowSpecComponent(t FlowSpecComponentType, c *cursor, afi AFI) (FlowSpecComponent, error) {
	comp := FlowSpecComponent{
		Type: t,
	}

	var err error
	switch {
	case t == FlowSpecDestPrefix || t == FlowSpecSourcePrefix:
		if afi == AFIIPv6 {
			comp.Prefix, comp.Offset, err = ctx.decodeFlowSpecIPv6Prefix(c)
		} else {
			comp.Prefix, err = decodeFlowSpecIPv4Prefix(c)
		}
	case t >= FlowSpecIPProtocol && t <= FlowSpecFragment:
		comp.Items, err = decodeOperatorChain(c, t)
	case t == FlowSpecFlowLabel && afi == AFIIPv6:
		comp.Items, err = decodeOperatorChain(c, t)
	default:
		err = errors.Wrapf(ErrInvalidDiscriminant, "flow-spec component type %d", t)
	}

	return comp, err
}

func decodeFlowSpecIPv4Prefix(c *cursor) (netip.Prefix, error) {
	pfxlen, err := c.uint8("flow-spec prefix length")
	if err != nil {
		return netip.Prefix{}, err
	}
	return readPrefix(c, AFIIPv4, int(pfxlen))
}

// decodeFlowSpecIPv6Prefix reads {length, offset, pattern}. Early drafts sent
// {offset, length}; with a zero first octet and a non-zero second octet the standard
// reading is invalid, so the legacy order is assumed if enabled.
func (ctx *decodeContext) decodeFlowSpecIPv6Prefix(c *cursor) (netip.Prefix, uint8, error) {
	var pfxlen, offset uint8
	err := c.decode("flow-spec IPv6 prefix", &pfxlen, &offset)
	if err != nil {
		return netip.Prefix{}, 0, err
	}

	if pfxlen == 0 && offset != 0 && ctx.opts.FlowSpecLegacyIPv6 {
		pfxlen, offset = offset, pfxlen
	}

	if offset > pfxlen || int(pfxlen) > 128 {
		return netip.Prefix{}, 0, errors.Wrapf(ErrLengthMismatch, "flow-spec IPv6 prefix length %d offset %d", pfxlen, offset)
	}

	pattern, err := c.bytes(bnet.WireLen(pfxlen-offset), "flow-spec IPv6 pattern")
	if err != nil {
		return netip.Prefix{}, 0, err
	}

	pfx, err := bnet.PatternFromWire(pattern, offset, pfxlen, 16)
	if err != nil {
		return netip.Prefix{}, 0, prefixError(err)
	}

	return pfx, offset, nil
}

// decodeOperatorChain reads {operator, value} pairs up to the end-of-list flag
func decodeOperatorChain(c *cursor, t FlowSpecComponentType) ([]FlowSpecItem, error) {
	items := make([]FlowSpecItem, 0, 1)

	for {
		op, err := c.uint8("flow-spec operator")
		if err != nil {
			return items, err
		}

		item := FlowSpecItem{
			Op: decodeFlowSpecOp(op, isBitmaskComponent(t)),
		}

		switch item.Op.Len {
		case 1:
			var v uint8
			v, err = c.uint8("flow-spec value")
			item.Value = uint64(v)
		case 2:
			var v uint16
			v, err = c.uint16("flow-spec value")
			item.Value = uint64(v)
		case 4:
			var v uint32
			v, err = c.uint32("flow-spec value")
			item.Value = uint64(v)
		case 8:
			item.Value, err = c.uint64("flow-spec value")
		}
		if err != nil {
			return items, err
		}

		if t == FlowSpecDSCP && (item.Op.Len != 1 || item.Value > 63) {
			return items, errors.Wrapf(ErrLengthMismatch, "DSCP value %d of %d bytes", item.Value, item.Op.Len)
		}

		items = append(items, item)
		if item.Op.EndOfList {
			return items, nil
		}
	}
}
