package packet

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRD      = []byte{0, 0, 0xfd, 0xe8, 0, 0, 0, 100}
	testRDValue = RouteDistinguisher{AS: 65000, Value: 100}
	testMAC     = []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

func TestDecodeEVPNRoutes(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantFail bool
		expected []NLRI
	}{
		{
			name: "Inclusive multicast",
			input: join(
				[]byte{3, 17}, // Route type, length
				testRD,
				[]byte{
					0, 0, 0, 10, // Ethernet Tag
					32,          // IP address length
					192, 0, 2, 1, // Originating router
				},
			),
			expected: []NLRI{
				EVPNInclusiveMulticast{
					RD:                testRDValue,
					EthernetTag:       10,
					OriginatingRouter: netip.MustParseAddr("192.0.2.1"),
				},
			},
		},
		{
			name: "MAC advertisement without IP",
			input: join(
				[]byte{2, 33}, // Route type, length
				testRD,
				make([]byte, esiLen), // ESI
				[]byte{
					0, 0, 0, 0, // Ethernet Tag
					48, // MAC address length
				},
				testMAC,
				[]byte{
					0,           // IP address length
					0, 0x06, 0x41, // MPLS label
				},
			),
			expected: []NLRI{
				EVPNMACIPAdvertisement{
					RD:     testRDValue,
					MAC:    net.HardwareAddr(testMAC),
					Labels: []uint32{0x641},
				},
			},
		},
		{
			name: "MAC/IP advertisement with two labels",
			input: join(
				[]byte{2, 40}, // Route type, length
				testRD,
				make([]byte, esiLen), // ESI
				[]byte{
					0, 0, 0, 0, // Ethernet Tag
					48, // MAC address length
				},
				testMAC,
				[]byte{
					32,           // IP address length
					10, 0, 0, 1, // IP address
					0, 0x06, 0x41, // MPLS label 1
					0, 0x27, 0x10, // MPLS label 2
				},
			),
			expected: []NLRI{
				EVPNMACIPAdvertisement{
					RD:     testRDValue,
					MAC:    net.HardwareAddr(testMAC),
					IP:     netip.MustParseAddr("10.0.0.1"),
					Labels: []uint32{0x641, 0x2710},
				},
			},
		},
		{
			name: "Ethernet segment with LACP ESI",
			input: join(
				[]byte{4, 23}, // Route type, length
				testRD,
				[]byte{1}, // ESI type LACP
				testMAC,
				[]byte{
					0x01, 0x02, // Port key
					0,          // Reserved
					32,          // IP address length
					192, 0, 2, 1, // Originating router
				},
			),
			expected: []NLRI{
				EVPNEthernetSegment{
					RD: testRDValue,
					ESI: ESI{
						Type:  ESILACP,
						Value: [9]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x01, 0x02, 0},
						MAC:   net.HardwareAddr(testMAC),
						Key:   0x0102,
					},
					OriginatingRouter: netip.MustParseAddr("192.0.2.1"),
				},
			},
		},
		{
			name: "Ethernet A-D with MAC ESI",
			input: join(
				[]byte{1, 25}, // Route type, length
				testRD,
				[]byte{3}, // ESI type MAC
				testMAC,
				[]byte{
					0, 0, 7, // Local discriminator
					0xff, 0xff, 0xff, 0xff, // Ethernet Tag
					0, 0, 0, // MPLS label
				},
			),
			expected: []NLRI{
				EVPNEthernetAD{
					RD: testRDValue,
					ESI: ESI{
						Type:          ESIMAC,
						Value:         [9]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0, 0, 7},
						MAC:           net.HardwareAddr(testMAC),
						Discriminator: 7,
					},
					EthernetTag: 0xffffffff,
				},
			},
		},
		{
			name: "IPv4 prefix",
			input: join(
				[]byte{5, 34}, // Route type, length
				testRD,
				[]byte{5}, // ESI type AS
				[]byte{0, 0, 0xfd, 0xe8, 0, 0, 0, 1, 0},
				[]byte{
					0, 0, 0, 0, // Ethernet Tag
					24,          // IP prefix length
					10, 1, 2, 0, // IP prefix
					0, 0, 0, 0, // Gateway IP
					0, 0x27, 0x10, // MPLS label
				},
			),
			expected: []NLRI{
				EVPNIPPrefix{
					RD: testRDValue,
					ESI: ESI{
						Type:          ESIAS,
						Value:         [9]byte{0, 0, 0xfd, 0xe8, 0, 0, 0, 1, 0},
						AS:            65000,
						Discriminator: 1,
					},
					Prefix:    netip.MustParsePrefix("10.1.2.0/24"),
					GatewayIP: netip.MustParseAddr("0.0.0.0"),
					Label:     0x2710,
				},
			},
		},
		{
			name: "Route exceeds NLRI",
			input: []byte{
				3, 17, // Route type, length
				0, 0, 0, 0,
			},
			wantFail: true,
		},
	}

	for _, test := range tests {
		routes, err := decodeEVPNRoutes(newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, routes, test.name)
	}
}

func TestDecodeEVPNMalformedRoute(t *testing.T) {
	short := join(
		[]byte{4, 21}, // Route type, length
		testRD,
		make([]byte, esiLen),
		[]byte{32, 192, 0}, // Truncated originating router
	)
	imet := join(
		[]byte{3, 17}, // Route type, length
		testRD,
		[]byte{0, 0, 0, 0, 32, 192, 0, 2, 1},
	)

	routes, err := decodeEVPNRoutes(newCursor(join(short, imet), 100))
	require.NoError(t, err)
	require.Len(t, routes, 2)

	m, ok := routes[0].(MalformedNLRI)
	require.True(t, ok)
	assert.Equal(t, 100, m.Offset)
	assert.Equal(t, short[2:], m.Raw)
	assert.True(t, IsKind(m.Err, ErrLengthMismatch))

	assert.Equal(t, EVPNInclusiveMulticast{
		RD:                testRDValue,
		OriginatingRouter: netip.MustParseAddr("192.0.2.1"),
	}, routes[1])
}

func TestDecodeEVPNUnknownRouteType(t *testing.T) {
	input := join(
		[]byte{9, 2, 0xaa, 0xbb}, // Route type 9, length
		[]byte{3, 17},            // Route type, length
		testRD,
		[]byte{0, 0, 0, 0, 32, 192, 0, 2, 1},
	)

	routes, err := decodeEVPNRoutes(newCursor(input, 0))
	require.NoError(t, err)
	require.Len(t, routes, 2)

	m, ok := routes[0].(MalformedNLRI)
	require.True(t, ok)
	assert.Equal(t, 0, m.Offset)
	assert.Equal(t, []byte{0xaa, 0xbb}, m.Raw)
	assert.True(t, IsKind(m.Err, ErrInvalidDiscriminant), "%v", m.Err)

	assert.Equal(t, EVPNInclusiveMulticast{
		RD:                testRDValue,
		OriginatingRouter: netip.MustParseAddr("192.0.2.1"),
	}, routes[1])
}

func TestDecodeEVPNIPPrefixHostBits(t *testing.T) {
	input := join(
		[]byte{5, 34}, // Route type, length
		testRD,
		make([]byte, esiLen),
		[]byte{
			0, 0, 0, 0, // Ethernet Tag
			24,          // IP prefix length
			10, 1, 2, 1, // IP prefix with a host bit set
			0, 0, 0, 0, // Gateway IP
			0, 0x27, 0x10, // MPLS label
		},
	)

	routes, err := decodeEVPNRoutes(newCursor(input, 0))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	m, ok := routes[0].(MalformedNLRI)
	require.True(t, ok)
	assert.True(t, IsKind(m.Err, ErrNonZeroPaddingBits), "%v", m.Err)
}

func TestDecodeEVPNTrailingBytesInRoute(t *testing.T) {
	input := join(
		[]byte{3, 18}, // Route type, length
		testRD,
		[]byte{0, 0, 0, 0, 32, 192, 0, 2, 1},
		[]byte{0}, // Not part of the route
	)

	routes, err := decodeEVPNRoutes(newCursor(input, 0))
	require.NoError(t, err)
	require.Len(t, routes, 1)

	m, ok := routes[0].(MalformedNLRI)
	require.True(t, ok)
	assert.True(t, IsKind(m.Err, ErrLengthMismatch))
}

func TestDecodeESI(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantFail bool
		expected ESI
	}{
		{
			name:     "Arbitrary",
			input:    []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
			expected: ESI{Value: [9]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}},
		},
		{
			name:  "MSTP",
			input: []byte{2, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x80, 0x00, 0},
			expected: ESI{
				Type:  ESIMSTP,
				Value: [9]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x80, 0x00, 0},
				MAC:   net.HardwareAddr(testMAC),
				Key:   0x8000,
			},
		},
		{
			name:  "Router ID",
			input: []byte{4, 192, 0, 2, 1, 0, 0, 0, 5, 0},
			expected: ESI{
				Type:          ESIRouterID,
				Value:         [9]byte{192, 0, 2, 1, 0, 0, 0, 5, 0},
				RouterID:      netip.MustParseAddr("192.0.2.1"),
				Discriminator: 5,
			},
		},
		{
			name:     "Router ID with non-zero last octet",
			input:    []byte{4, 192, 0, 2, 1, 0, 0, 0, 5, 1},
			wantFail: true,
		},
		{
			name:     "Unknown type",
			input:    []byte{6, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			wantFail: true,
		},
	}

	for _, test := range tests {
		esi, err := decodeESI(newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, esi, test.name)
	}
}
