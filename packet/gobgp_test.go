package packet

import (
	"net"
	"net/netip"
	"testing"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Messages built with GoBGP's encoder must decode to the same routes and attributes

func serializeUpdate(t *testing.T, withdrawn []*bgp.IPAddrPrefix, attrs []bgp.PathAttributeInterface, nlri []*bgp.IPAddrPrefix) []byte {
	t.Helper()

	b, err := bgp.NewBGPUpdateMessage(withdrawn, attrs, nlri).Serialize()
	require.NoError(t, err)
	return b
}

func attrValue(u *BGPUpdate, typ AttrTypeCode) AttrValue {
	for _, pa := range u.PathAttributes {
		if pa.TypeCode == typ {
			return pa.Value
		}
	}
	return nil
}

func TestDecodeGoBGPUnicastUpdate(t *testing.T) {
	msg := serializeUpdate(t,
		[]*bgp.IPAddrPrefix{bgp.NewIPAddrPrefix(24, "10.2.0.0")},
		[]bgp.PathAttributeInterface{
			bgp.NewPathAttributeOrigin(0),
			bgp.NewPathAttributeAsPath([]bgp.AsPathParamInterface{
				bgp.NewAs4PathParam(bgp.BGP_ASPATH_ATTR_TYPE_SEQ, []uint32{65000, 200000}),
			}),
			bgp.NewPathAttributeNextHop("192.0.2.1"),
			bgp.NewPathAttributeMultiExitDisc(100),
			bgp.NewPathAttributeLocalPref(200),
			bgp.NewPathAttributeCommunities([]uint32{0xfde80001}),
			bgp.NewPathAttributeExtendedCommunities([]bgp.ExtendedCommunityInterface{
				bgp.NewTwoOctetAsSpecificExtended(bgp.EC_SUBTYPE_ROUTE_TARGET, 65000, 100, true),
				bgp.NewColorExtended(7),
			}),
			bgp.NewPathAttributeLargeCommunities([]*bgp.LargeCommunity{
				bgp.NewLargeCommunity(200000, 1, 2),
			}),
		},
		[]*bgp.IPAddrPrefix{bgp.NewIPAddrPrefix(16, "10.1.0.0")},
	)

	m, err := NewDecoder(Options{ASNWidth: 4}).DecodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, uint16(len(msg)), m.Header.Length)
	assert.Equal(t, MsgType(UpdateMsg), m.Header.Type)

	u := m.Body
	assert.Equal(t, []NLRI{IPPrefix{Prefix: netip.MustParsePrefix("10.2.0.0/24")}}, u.WithdrawnRoutes)
	assert.Equal(t, []NLRI{IPPrefix{Prefix: netip.MustParsePrefix("10.1.0.0/16")}}, u.NLRI)
	require.Len(t, u.PathAttributes, 8)

	assert.Equal(t, Origin(IGP), attrValue(u, OriginAttr))
	assert.Equal(t, ASPath{{Type: ASSequence, Count: 2, ASNs: []uint32{65000, 200000}}}, attrValue(u, ASPathAttr))
	assert.Equal(t, NextHop{Addr: netip.MustParseAddr("192.0.2.1")}, attrValue(u, NextHopAttr))
	assert.Equal(t, MED(100), attrValue(u, MEDAttr))
	assert.Equal(t, LocalPref(200), attrValue(u, LocalPrefAttr))
	assert.Equal(t, Communities{0xfde80001}, attrValue(u, CommunitiesAttr))
	assert.Equal(t, ExtendedCommunities{
		RouteTarget{Kind: AdminAS2, AS: 65000, Value: 100},
		Color{Color: 7},
	}, attrValue(u, ExtCommunitiesAttr))
	assert.Equal(t, LargeCommunities{{GlobalAdmin: 200000, LocalData1: 1, LocalData2: 2}}, attrValue(u, LargeCommunityAttr))
}

func TestDecodeGoBGPVPNUpdate(t *testing.T) {
	rd := bgp.NewRouteDistinguisherTwoOctetAS(65000, 100)
	msg := serializeUpdate(t, nil, []bgp.PathAttributeInterface{
		bgp.NewPathAttributeOrigin(0),
		bgp.NewPathAttributeMpReachNLRI("192.0.2.1", []bgp.AddrPrefixInterface{
			bgp.NewLabeledVPNIPAddrPrefix(24, "10.3.0.0", *bgp.NewMPLSLabelStack(100), rd),
		}),
	}, nil)

	m, err := NewDecoder(DefaultOptions()).DecodeMessage(msg)
	require.NoError(t, err)

	r, ok := attrValue(m.Body, MPReachNLRIAttr).(*MPReachNLRI)
	require.True(t, ok)

	assert.Equal(t, AFIIPv4, r.AFI)
	assert.Equal(t, SAFIMPLSVPN, r.SAFI)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.0.2.1")}, r.NextHops)
	assert.Equal(t, []NLRI{
		VPNPrefix{
			Labels: []MPLSLabel{{Label: 100, BottomOfStack: true}},
			RD:     RouteDistinguisher{AS: 65000, Value: 100},
			Prefix: netip.MustParsePrefix("10.3.0.0/24"),
		},
	}, r.NLRI)
}

func TestDecodeGoBGPEVPNUpdate(t *testing.T) {
	rd := bgp.NewRouteDistinguisherTwoOctetAS(65000, 100)
	esi := bgp.EthernetSegmentIdentifier{Value: make([]byte, 9)}

	msg := serializeUpdate(t, nil, []bgp.PathAttributeInterface{
		bgp.NewPathAttributeOrigin(0),
		bgp.NewPathAttributeMpReachNLRI("192.0.2.1", []bgp.AddrPrefixInterface{
			bgp.NewEVPNMacIPAdvertisementRoute(rd, esi, 0, "00:11:22:33:44:55", "10.0.0.1", []uint32{10000}),
			bgp.NewEVPNMulticastEthernetTagRoute(rd, 0, "192.0.2.1"),
		}),
		bgp.NewPathAttributeExtendedCommunities([]bgp.ExtendedCommunityInterface{
			bgp.NewMacMobilityExtended(5, true),
			bgp.NewRoutersMacExtended("00:11:22:33:44:55"),
		}),
		bgp.NewPathAttributePmsiTunnel(bgp.PMSI_TUNNEL_TYPE_INGRESS_REPL, false, 10000, bgp.NewIngressReplTunnelID("192.0.2.1")),
	}, nil)

	m, err := NewDecoder(DefaultOptions()).DecodeMessage(msg)
	require.NoError(t, err)

	r, ok := attrValue(m.Body, MPReachNLRIAttr).(*MPReachNLRI)
	require.True(t, ok)

	assert.Equal(t, AFIL2VPN, r.AFI)
	assert.Equal(t, SAFIEVPN, r.SAFI)
	assert.Equal(t, []NLRI{
		EVPNMACIPAdvertisement{
			RD:     testRDValue,
			MAC:    net.HardwareAddr(testMAC),
			IP:     netip.MustParseAddr("10.0.0.1"),
			Labels: []uint32{10000},
		},
		EVPNInclusiveMulticast{
			RD:                testRDValue,
			OriginatingRouter: netip.MustParseAddr("192.0.2.1"),
		},
	}, r.NLRI)

	assert.Equal(t, ExtendedCommunities{
		MACMobility{Sticky: true, Sequence: 5},
		RouterMAC{MAC: net.HardwareAddr(testMAC)},
	}, attrValue(m.Body, ExtCommunitiesAttr))

	assert.Equal(t, &PMSITunnel{
		TunnelType: PMSIIngressReplication,
		Label:      10000,
		TunnelID: IngressReplicationTunnel{
			Endpoint: netip.MustParseAddr("192.0.2.1"),
		},
	}, attrValue(m.Body, PMSITunnelAttr))
}

func TestDecodeGoBGPFlowSpecUpdate(t *testing.T) {
	msg := serializeUpdate(t, nil, []bgp.PathAttributeInterface{
		bgp.NewPathAttributeOrigin(0),
		bgp.NewPathAttributeMpReachNLRI("0.0.0.0", []bgp.AddrPrefixInterface{
			bgp.NewFlowSpecIPv4Unicast([]bgp.FlowSpecComponentInterface{
				bgp.NewFlowSpecComponent(bgp.FLOW_SPEC_TYPE_IP_PROTO, []*bgp.FlowSpecComponentItem{
					bgp.NewFlowSpecComponentItem(0x01, 6), // == TCP
				}),
				bgp.NewFlowSpecDestinationPrefix(bgp.NewIPAddrPrefix(24, "10.1.2.0")),
			}),
		}),
		bgp.NewPathAttributeExtendedCommunities([]bgp.ExtendedCommunityInterface{
			bgp.NewRedirectTwoOctetAsSpecificExtended(65000, 100),
		}),
	}, nil)

	m, err := NewDecoder(DefaultOptions()).DecodeMessage(msg)
	require.NoError(t, err)

	r, ok := attrValue(m.Body, MPReachNLRIAttr).(*MPReachNLRI)
	require.True(t, ok)

	assert.Equal(t, SAFIFlowSpec, r.SAFI)
	assert.Empty(t, r.NextHopRaw)
	assert.Equal(t, []NLRI{
		FlowSpecRule{
			Components: []FlowSpecComponent{
				{
					Type:   FlowSpecDestPrefix,
					Prefix: netip.MustParsePrefix("10.1.2.0/24"),
				},
				{
					Type: FlowSpecIPProtocol,
					Items: []FlowSpecItem{
						{Op: FlowSpecOp{EndOfList: true, Len: 1, EQ: true}, Value: 6},
					},
				},
			},
		},
	}, r.NLRI)

	assert.Equal(t, ExtendedCommunities{
		Redirect{Kind: AdminAS2, AS: 65000, Value: 100},
	}, attrValue(m.Body, ExtCommunitiesAttr))
}

func TestDecodeGoBGPEndOfRIB(t *testing.T) {
	msg, err := bgp.NewEndOfRib(bgp.RF_IPv6_UC).Serialize()
	require.NoError(t, err)

	m, err := NewDecoder(DefaultOptions()).DecodeMessage(msg)
	require.NoError(t, err)
	require.Len(t, m.Body.PathAttributes, 1)

	assert.Equal(t, &MPUnreachNLRI{AFI: AFIIPv6, SAFI: SAFIUnicast, NLRI: []NLRI{}}, m.Body.PathAttributes[0].Value)
}
