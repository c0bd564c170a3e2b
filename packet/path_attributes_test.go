package packet

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func testContext() *decodeContext {
	return NewDecoder(DefaultOptions()).newContext()
}

// clearErrs drops the attribute errors, which are checked by kind
func clearErrs(attrs []PathAttribute) {
	for i := range attrs {
		attrs[i].Err = nil
		if set, ok := attrs[i].Value.(*AttrSet); ok {
			clearErrs(set.Attributes)
		}
	}
}

func TestDecodePathAttrs(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantErr  error
		expected []PathAttribute
	}{
		{
			name: "ORIGIN and 2 octet AS_PATH",
			input: []byte{
				64, // Attr. Flags
				1,  // Attr. Type Code (ORIGIN)
				1,  // Attr. Length
				2,  // INCOMPLETE

				64,     // Attr. Flags
				2,      // Attr. Type Code (AS_PATH)
				6,      // Attr. Length
				2,      // AS_SEQUENCE
				2,      // Path Segment Length
				59, 65, // AS15169
				12, 248, // AS3320
			},
			expected: []PathAttribute{
				{
					Length:     1,
					Transitive: true,
					TypeCode:   OriginAttr,
					Offset:     0,
					Value:      Origin(INCOMPLETE),
				},
				{
					Length:     6,
					Transitive: true,
					TypeCode:   ASPathAttr,
					Offset:     4,
					Value: ASPath{
						{
							Type:  ASSequence,
							Count: 2,
							ASNs:  []uint32{15169, 3320},
						},
					},
				},
			},
		},
		{
			name: "Extended length",
			input: []byte{
				80,   // Attr. Flags (transitive, extended length)
				1,    // Attr. Type Code (ORIGIN)
				0, 1, // Attr. Length
				0, // IGP
			},
			expected: []PathAttribute{
				{
					Length:         1,
					Transitive:     true,
					ExtendedLength: true,
					TypeCode:       OriginAttr,
					Value:          Origin(IGP),
				},
			},
		},
		{
			name: "Unknown attribute",
			input: []byte{
				192,     // Attr. Flags (optional, transitive)
				99,      // Attr. Type Code
				3,       // Attr. Length
				1, 2, 3, // Value
			},
			expected: []PathAttribute{
				{
					Length:     3,
					Optional:   true,
					Transitive: true,
					TypeCode:   99,
					Value:      UnknownAttr{Raw: []byte{1, 2, 3}},
				},
			},
		},
		{
			name: "Invalid ORIGIN followed by MED",
			input: []byte{
				64, // Attr. Flags
				1,  // Attr. Type Code (ORIGIN)
				1,  // Attr. Length
				3,  // Invalid

				128,        // Attr. Flags
				4,          // Attr. Type Code (MED)
				4,          // Attr. Length
				0, 0, 1, 0, // MED 256
			},
			wantErr: ErrInvalidDiscriminant,
			expected: []PathAttribute{
				{
					Length:     1,
					Transitive: true,
					TypeCode:   OriginAttr,
					Value:      Origin(3),
				},
				{
					Length:   4,
					Optional: true,
					TypeCode: MEDAttr,
					Offset:   4,
					Value:    MED(256),
				},
			},
		},
		{
			name: "NEXT_HOP of invalid length followed by LOCAL_PREF",
			input: []byte{
				64,                // Attr. Flags
				3,                 // Attr. Type Code (NEXT_HOP)
				5,                 // Attr. Length
				10, 0, 0, 1, 0xff, // Value

				64,          // Attr. Flags
				5,           // Attr. Type Code (LOCAL_PREF)
				4,           // Attr. Length
				0, 0, 0, 100, // LOCAL_PREF 100
			},
			wantErr: ErrLengthMismatch,
			expected: []PathAttribute{
				{
					Length:     5,
					Transitive: true,
					TypeCode:   NextHopAttr,
					Value:      UnknownAttr{Raw: []byte{10, 0, 0, 1, 0xff}},
				},
				{
					Length:     4,
					Transitive: true,
					TypeCode:   LocalPrefAttr,
					Offset:     8,
					Value:      LocalPref(100),
				},
			},
		},
		{
			name: "Value overruns attribute section",
			input: []byte{
				128,        // Attr. Flags
				4,          // Attr. Type Code (MED)
				8,          // Attr. Length
				0, 0, 1, 0, // Only 4 bytes
			},
			wantErr: ErrTruncated,
			expected: []PathAttribute{
				{
					Length:   8,
					Optional: true,
					TypeCode: MEDAttr,
					Value:    UnknownAttr{Raw: []byte{0, 0, 1, 0}},
				},
			},
		},
		{
			name: "Trailing bytes",
			input: []byte{
				64, // Attr. Flags
				1,  // Attr. Type Code (ORIGIN)
				1,  // Attr. Length
				0,  // IGP
				64, 1, // Incomplete header
			},
			wantErr: ErrTrailingBytes,
			expected: []PathAttribute{
				{
					Length:     1,
					Transitive: true,
					TypeCode:   OriginAttr,
					Value:      Origin(IGP),
				},
			},
		},
		{
			name: "MED without optional flag",
			input: []byte{
				0,          // Attr. Flags
				4,          // Attr. Type Code (MED)
				4,          // Attr. Length
				0, 0, 0, 5, // MED 5
			},
			wantErr: ErrInvalidFlags,
			expected: []PathAttribute{
				{
					Length:   4,
					TypeCode: MEDAttr,
					Value:    MED(5),
				},
			},
		},
		{
			name: "ATOMIC_AGGREGATE with value",
			input: []byte{
				64, // Attr. Flags
				6,  // Attr. Type Code (ATOMIC_AGGREGATE)
				1,  // Attr. Length
				0,  // Unexpected value
			},
			wantErr: ErrLengthMismatch,
			expected: []PathAttribute{
				{
					Length:     1,
					Transitive: true,
					TypeCode:   AtomicAggrAttr,
					Value:      AtomicAggregate{},
				},
			},
		},
		{
			name: "ATTR_SET",
			input: []byte{
				192,               // Attr. Flags
				128,               // Attr. Type Code (ATTR_SET)
				8,                 // Attr. Length
				0, 0, 0xfd, 0xe8, // Origin AS 65000

				64, // Attr. Flags
				1,  // Attr. Type Code (ORIGIN)
				1,  // Attr. Length
				0,  // IGP
			},
			expected: []PathAttribute{
				{
					Length:     8,
					Optional:   true,
					Transitive: true,
					TypeCode:   AttrSetAttr,
					Value: &AttrSet{
						OriginAS: 65000,
						Attributes: []PathAttribute{
							{
								Length:     1,
								Transitive: true,
								TypeCode:   OriginAttr,
								Offset:     7,
								Value:      Origin(IGP),
							},
						},
					},
				},
			},
		},
		{
			name: "Nested ATTR_SET",
			input: []byte{
				192,        // Attr. Flags
				128,        // Attr. Type Code (ATTR_SET)
				11,         // Attr. Length
				0, 0, 0, 1, // Origin AS 1

				192,        // Attr. Flags
				128,        // Attr. Type Code (ATTR_SET)
				4,          // Attr. Length
				0, 0, 0, 2, // Origin AS 2
			},
			wantErr: ErrInvalidDiscriminant,
			expected: []PathAttribute{
				{
					Length:     11,
					Optional:   true,
					Transitive: true,
					TypeCode:   AttrSetAttr,
					Value: &AttrSet{
						OriginAS: 1,
						Attributes: []PathAttribute{
							{
								Length:     4,
								Optional:   true,
								Transitive: true,
								TypeCode:   AttrSetAttr,
								Offset:     7,
								Value:      UnknownAttr{Raw: []byte{0, 0, 0, 2}},
							},
						},
					},
				},
			},
		},
	}

	for _, test := range tests {
		ctx := testContext()
		attrs := ctx.decodePathAttrs(newCursor(test.input, 0))
		err := multierr.Combine(ctx.errs...)

		if test.wantErr == nil && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
			continue
		}

		if test.wantErr != nil && !IsKind(err, test.wantErr) {
			t.Errorf("Expected error %v did not happen for test %q: %v", test.wantErr, test.name, err)
			continue
		}

		clearErrs(attrs)
		assert.Equal(t, test.expected, attrs, test.name)
	}
}

func TestAttrErrorsAreRecordedOnAttribute(t *testing.T) {
	ctx := testContext()
	attrs := ctx.decodePathAttrs(newCursor([]byte{
		64, // Attr. Flags
		1,  // Attr. Type Code (ORIGIN)
		2,  // Attr. Length
		0, 0,
	}, 0))

	if !assert.Len(t, attrs, 1) {
		return
	}

	var attrErr *AttrError
	assert.ErrorAs(t, attrs[0].Err, &attrErr)
	assert.Equal(t, OriginAttr, attrErr.TypeCode)
	assert.Equal(t, 0, attrErr.Offset)
	assert.ErrorIs(t, attrs[0].Err, ErrLengthMismatch)
	assert.Len(t, ctx.errs, 1)
}

func TestDecodeOrigin(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantFail bool
		expected *PathAttribute
	}{
		{
			name:     "IGP",
			input:    []byte{0},
			expected: &PathAttribute{Value: Origin(IGP)},
		},
		{
			name:     "EGP",
			input:    []byte{1},
			expected: &PathAttribute{Value: Origin(EGP)},
		},
		{
			name:     "INCOMPLETE",
			input:    []byte{2},
			expected: &PathAttribute{Value: Origin(INCOMPLETE)},
		},
		{
			name:     "Empty",
			input:    []byte{},
			wantFail: true,
		},
		{
			name:     "Too long",
			input:    []byte{0, 0},
			wantFail: true,
		},
	}

	for _, test := range tests {
		pa := &PathAttribute{}
		err := pa.decodeOrigin(newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, pa)
	}
}

func TestDecodeLocalPref(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantFail bool
		expected *PathAttribute
	}{
		{
			name: "Test #1",
			input: []byte{
				0, 0, 3, 232,
			},
			expected: &PathAttribute{
				Value: LocalPref(1000),
			},
		},
		{
			name:     "Test #2",
			input:    []byte{0, 0, 3},
			wantFail: true,
		},
		{
			name:     "Test #3",
			input:    []byte{0, 0, 3, 232, 0},
			wantFail: true,
		},
	}

	for _, test := range tests {
		pa := &PathAttribute{}
		err := pa.decodeLocalPref(newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, pa)
	}
}

func TestDecodeMED(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantFail bool
		expected *PathAttribute
	}{
		{
			name: "Test #1",
			input: []byte{
				0, 0, 3, 232,
			},
			expected: &PathAttribute{
				Value: MED(1000),
			},
		},
		{
			name:     "Test #2",
			input:    []byte{},
			wantFail: true,
		},
	}

	for _, test := range tests {
		pa := &PathAttribute{}
		err := pa.decodeMED(newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, pa)
	}
}

func TestDecodeNextHop(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantFail bool
		expected *PathAttribute
	}{
		{
			name: "IPv4",
			input: []byte{
				11, 22, 33, 44,
			},
			expected: &PathAttribute{
				Value: NextHop{Addr: netip.MustParseAddr("11.22.33.44")},
			},
		},
		{
			name: "IPv6",
			input: []byte{
				0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
			},
			expected: &PathAttribute{
				Value: NextHop{Addr: netip.MustParseAddr("2001:db8::1")},
			},
		},
		{
			name:     "Invalid length",
			input:    []byte{11, 22, 33},
			wantFail: true,
		},
	}

	for _, test := range tests {
		pa := &PathAttribute{}
		err := pa.decodeNextHop(newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, pa)
	}
}

func TestDecodeAggregator(t *testing.T) {
	tests := []struct {
		name     string
		typeCode AttrTypeCode
		input    []byte
		wantFail bool
		expected *PathAttribute
	}{
		{
			name:     "2 octet AS",
			typeCode: AggregatorAttr,
			input: []byte{
				0x0c, 0xf8, // AS3320
				10, 11, 12, 13, // Address
			},
			expected: &PathAttribute{
				TypeCode: AggregatorAttr,
				Value: Aggregator{
					ASN:  3320,
					Addr: netip.MustParseAddr("10.11.12.13"),
				},
			},
		},
		{
			name:     "4 octet AS",
			typeCode: AggregatorAttr,
			input: []byte{
				0, 3, 0x0d, 0x40, // AS200000
				10, 11, 12, 13, // Address
			},
			expected: &PathAttribute{
				TypeCode: AggregatorAttr,
				Value: Aggregator{
					ASN:       200000,
					Addr:      netip.MustParseAddr("10.11.12.13"),
					FourOctet: true,
				},
			},
		},
		{
			name:     "AS4_AGGREGATOR with 2 octet AS",
			typeCode: AS4AggregatorAttr,
			input: []byte{
				0x0c, 0xf8, // AS3320
				10, 11, 12, 13, // Address
			},
			wantFail: true,
		},
	}

	for _, test := range tests {
		pa := &PathAttribute{TypeCode: test.typeCode}
		err := pa.decodeAggregator(newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, pa)
	}
}

func TestDecodeCommunityLists(t *testing.T) {
	tests := []struct {
		name     string
		decode   func(*PathAttribute, *cursor) error
		input    []byte
		wantFail bool
		expected AttrValue
	}{
		{
			name:   "COMMUNITIES",
			decode: (*PathAttribute).decodeCommunities,
			input: []byte{
				0xfd, 0xe8, 0, 100, // 65000:100
				0xff, 0xff, 0xff, 0x01, // NO_EXPORT
			},
			expected: Communities{0xfde80064, 0xffffff01},
		},
		{
			name:     "COMMUNITIES of invalid length",
			decode:   (*PathAttribute).decodeCommunities,
			input:    []byte{0xfd, 0xe8, 0},
			wantFail: true,
		},
		{
			name:   "LARGE_COMMUNITY",
			decode: (*PathAttribute).decodeLargeCommunities,
			input: []byte{
				0, 3, 0x0d, 0x40, // Global Administrator 200000
				0, 0, 0, 1, // Local Data 1
				0, 0, 0, 2, // Local Data 2
			},
			expected: LargeCommunities{
				{GlobalAdmin: 200000, LocalData1: 1, LocalData2: 2},
			},
		},
		{
			name:     "LARGE_COMMUNITY of invalid length",
			decode:   (*PathAttribute).decodeLargeCommunities,
			input:    []byte{0, 3, 0x0d, 0x40, 0, 0, 0, 1},
			wantFail: true,
		},
		{
			name:   "CLUSTER_LIST",
			decode: (*PathAttribute).decodeClusterList,
			input: []byte{
				1, 1, 1, 1,
				2, 2, 2, 2,
			},
			expected: ClusterList{
				netip.MustParseAddr("1.1.1.1"),
				netip.MustParseAddr("2.2.2.2"),
			},
		},
		{
			name:     "ORIGINATOR_ID",
			decode:   (*PathAttribute).decodeOriginatorID,
			input:    []byte{9, 9, 9, 9},
			expected: OriginatorID{Addr: netip.MustParseAddr("9.9.9.9")},
		},
	}

	for _, test := range tests {
		pa := &PathAttribute{}
		err := test.decode(pa, newCursor(test.input, 0))

		if test.wantFail && err == nil {
			t.Errorf("Expected error did not happen for test %q", test.name)
		}

		if !test.wantFail && err != nil {
			t.Errorf("Unexpected failure for test %q: %v", test.name, err)
		}

		if err != nil {
			continue
		}

		assert.Equal(t, test.expected, pa.Value, test.name)
	}
}
