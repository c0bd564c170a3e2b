package packet

import (
	"net/netip"

	"github.com/pkg/errors"
)

type PMSITunnelType uint8

const (
	PMSINoTunnel           PMSITunnelType = 0
	PMSIRSVPTEP2MP         PMSITunnelType = 1
	PMSIMLDPP2MP           PMSITunnelType = 2
	PMSIPIMSSM             PMSITunnelType = 3
	PMSIPIMSM              PMSITunnelType = 4
	PMSIBIDIRPIM           PMSITunnelType = 5
	PMSIIngressReplication PMSITunnelType = 6
	PMSIMLDPMP2MP          PMSITunnelType = 7

	pmsiFlagLeafInfoRequired = 0x01
)

// PMSITunnel is the PMSI_TUNNEL attribute. Label holds the 24 bit field as sent,
// which is a VNI for VXLAN based EVPN. TunnelID is one of RSVPTEP2MPTunnel,
// MLDPFEC, PIMTunnel, IngressReplicationTunnel or []byte for other tunnel types.
type PMSITunnel struct {
	Flags            uint8
	LeafInfoRequired bool
	TunnelType       PMSITunnelType
	Label            uint32
	TunnelID         interface{}
}

type RSVPTEP2MPTunnel struct {
	P2MPID           uint32
	TunnelID         uint16
	ExtendedTunnelID netip.Addr
}

// MLDPFEC is an mLDP P2MP or MP2MP FEC element
type MLDPFEC struct {
	Type   uint8
	AFI    uint16
	Root   netip.Addr
	Opaque []MLDPOpaque
}

type MLDPOpaque struct {
	Type  uint8
	Value []byte
}

type PIMTunnel struct {
	Sender netip.Addr
	Group  netip.Addr
}

type IngressReplicationTunnel struct {
	Endpoint netip.Addr
}

func (pa *PathAttribute) decodePMSITunnel(c *cursor) error {
	p := &PMSITunnel{}
	pa.Value = p

	var typ uint8
	err := c.decode("PMSI tunnel", &p.Flags, &typ)
	if err != nil {
		return err
	}
	p.TunnelType = PMSITunnelType(typ)
	p.LeafInfoRequired = p.Flags&pmsiFlagLeafInfoRequired != 0

	p.Label, err = c.uint24("PMSI tunnel label")
	if err != nil {
		return err
	}

	p.TunnelID, err = decodePMSITunnelID(p.TunnelType, c)
	return err
}

func decodePMSITunnelID(t PMSITunnelType, c *cursor) (interface{}, error) {
	switch t {
	case PMSIRSVPTEP2MP:
		if err := expectLen("RSVP-TE P2MP tunnel identifier", c.len(), 12); err != nil {
			return nil, err
		}

		id := RSVPTEP2MPTunnel{}
		var reserved uint16
		err := c.decode("RSVP-TE P2MP tunnel identifier", &id.P2MPID, &reserved, &id.TunnelID)
		if err != nil {
			return nil, err
		}

		id.ExtendedTunnelID, err = c.addr(4, "extended tunnel ID")
		return id, err
	case PMSIMLDPP2MP, PMSIMLDPMP2MP:
		return decodeMLDPFEC(c)
	case PMSIPIMSSM, PMSIPIMSM, PMSIBIDIRPIM:
		if err := expectLen("PIM tunnel identifier", c.len(), 8, 32); err != nil {
			return nil, err
		}

		n := c.len() / 2
		id := PIMTunnel{}
		var err error
		if id.Sender, err = c.addr(n, "PIM sender"); err != nil {
			return nil, err
		}
		id.Group, err = c.addr(n, "PIM group")
		return id, err
	case PMSIIngressReplication:
		if err := expectLen("ingress replication tunnel identifier", c.len(), 4, 16); err != nil {
			return nil, err
		}

		addr, err := c.addr(c.len(), "tunnel endpoint")
		return IngressReplicationTunnel{Endpoint: addr}, err
	}

	if c.len() == 0 {
		return nil, nil
	}
	return c.rest(), nil
}

func decodeMLDPFEC(c *cursor) (MLDPFEC, error) {
	fec := MLDPFEC{}

	var addrLen uint8
	err := c.decode("mLDP FEC", &fec.Type, &fec.AFI, &addrLen)
	if err != nil {
		return fec, err
	}

	if fec.Root, err = c.addr(int(addrLen), "mLDP root node"); err != nil {
		return fec, err
	}

	opaqueLen, err := c.uint16("mLDP opaque length")
	if err != nil {
		return fec, err
	}

	oc, err := c.sub(int(opaqueLen), "mLDP opaque values")
	if err != nil {
		return fec, err
	}

	for oc.len() > 0 {
		o := MLDPOpaque{}
		var l uint16
		err := oc.decode("mLDP opaque value", &o.Type, &l)
		if err != nil {
			return fec, err
		}

		if o.Value, err = oc.bytes(int(l), "mLDP opaque value"); err != nil {
			return fec, err
		}
		fec.Opaque = append(fec.Opaque, o)
	}

	if c.len() != 0 {
		return fec, errors.Wrapf(ErrLengthMismatch, "%d bytes after mLDP FEC", c.len())
	}
	return fec, nil
}
