package packet

import (
	"fmt"
	"io"
)

func (b *BGPMessage) Dump(w io.Writer) {
	fmt.Fprintf(w, "Type: %d Length: %d\n", b.Header.Type, b.Header.Length)
	if b.Body != nil {
		b.Body.Dump(w)
	}
}

func (u *BGPUpdate) Dump(w io.Writer) {
	fmt.Fprintf(w, "UPDATE Message:\n")
	if u.AddPath {
		fmt.Fprintf(w, "\tAdd-Path: true\n")
	}

	fmt.Fprintf(w, "Withdrawn routes:\n")
	dumpNLRI(w, "\t", u.WithdrawnRoutes)

	fmt.Fprintf(w, "Path attributes:\n")
	dumpPathAttrs(w, "\t", u.PathAttributes)

	fmt.Fprintf(w, "NLRIs:\n")
	dumpNLRI(w, "\t", u.NLRI)

	if len(u.Errors) > 0 {
		fmt.Fprintf(w, "Errors:\n")
		for _, err := range u.Errors {
			fmt.Fprintf(w, "\t%v\n", err)
		}
	}
}

func dumpPathAttrs(w io.Writer, indent string, attrs []PathAttribute) {
	for i := range attrs {
		a := &attrs[i]
		fmt.Fprintf(w, "%sType:%d Offset:%d Optional:%v Transitive:%v Partial:%v\n", indent, a.TypeCode, a.Offset, a.Optional, a.Transitive, a.Partial)
		if a.Err != nil {
			fmt.Fprintf(w, "%s Error: %v\n", indent, a.Err)
		}

		switch v := a.Value.(type) {
		case *MPReachNLRI:
			fmt.Fprintf(w, "%s AFI:%d SAFI:%d NextHops:%v\n", indent, v.AFI, v.SAFI, v.NextHops)
			dumpNLRI(w, indent+"\t", v.NLRI)
		case *MPUnreachNLRI:
			fmt.Fprintf(w, "%s AFI:%d SAFI:%d\n", indent, v.AFI, v.SAFI)
			dumpNLRI(w, indent+"\t", v.NLRI)
		case *AttrSet:
			fmt.Fprintf(w, "%s OriginAS:%d\n", indent, v.OriginAS)
			dumpPathAttrs(w, indent+"\t", v.Attributes)
		case *LinkState:
			fmt.Fprintf(w, "%s Protocol:%d Known:%v\n", indent, v.ProtocolID, v.ProtocolKnown)
			for _, tlv := range v.TLVs {
				fmt.Fprintf(w, "%s\t%d: %+v\n", indent, tlv.Type, tlv.Value)
			}
		default:
			fmt.Fprintf(w, "%s:%+v\n", indent, a.Value)
		}
	}
}

func dumpNLRI(w io.Writer, indent string, nlri []NLRI) {
	for _, n := range nlri {
		fmt.Fprintf(w, "%s%s\n", indent, n)
	}
}
