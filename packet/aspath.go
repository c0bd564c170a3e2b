package packet

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

func validSegmentType(t uint8) bool {
	return t >= ASSet && t <= ASConfedSet
}

// asnWidth returns the width in octets of the AS numbers in an AS_PATH or AS4_PATH
// value. AS4_PATH always carries 4 octets and a forced width wins over detection.
// Otherwise 2 octets are assumed only if the value walks as a consistent list of
// segments with 2 octet AS numbers and none of them is 0.
func asnWidth(typeCode AttrTypeCode, value []byte, forced int) int {
	if typeCode == AS4PathAttr {
		return 4
	}

	if forced == 2 || forced == 4 {
		return forced
	}

	if len(value) == 0 {
		return 4
	}

	if isTwoOctetPath(value) {
		return 2
	}
	return 4
}

func isTwoOctetPath(value []byte) bool {
	p := 0
	for p < len(value) {
		if p+2 > len(value) || !validSegmentType(value[p]) {
			return false
		}

		end := p + 2 + 2*int(value[p+1])
		if end > len(value) {
			return false
		}

		// 4 octet AS numbers below 65536 start with two zero octets
		for i := p + 2; i < end; i += 2 {
			if value[i] == 0 && value[i+1] == 0 {
				return false
			}
		}
		p = end
	}
	return true
}

func (pa *PathAttribute) decodeASPath(c *cursor, forced int) error {
	width := asnWidth(pa.TypeCode, c.buf[c.pos:], forced)
	glog.V(3).Infof("AS path attribute %d at offset %d: %d octet AS numbers", pa.TypeCode, pa.Offset, width)

	path, err := decodeASPathSegments(c, width)
	pa.Value = path
	return err
}

// decodeASPathSegments decodes all segments in c. The segments have to end exactly
// at the end of c.
func decodeASPathSegments(c *cursor, width int) (ASPath, error) {
	path := make(ASPath, 0)

	for c.len() > 0 {
		if c.len() < 2 {
			return path, errors.Wrapf(ErrAmbiguousASWidth, "%d octet AS numbers leave %d bytes at offset %d", width, c.len(), c.offset())
		}

		segment := ASPathSegment{}
		err := c.decode("AS path segment header", &segment.Type, &segment.Count)
		if err != nil {
			return path, err
		}

		if !validSegmentType(segment.Type) {
			return path, errors.Wrapf(ErrInvalidDiscriminant, "Invalid AS Path segment type: %d", segment.Type)
		}

		if int(segment.Count)*width > c.len() {
			return path, errors.Wrapf(ErrAmbiguousASWidth, "segment of %d %d octet AS numbers exceeds %d remaining bytes", segment.Count, width, c.len())
		}

		segment.ASNs = make([]uint32, 0, segment.Count)
		for i := uint8(0); i < segment.Count; i++ {
			var asn uint32
			if width == 2 {
				x, err := c.uint16("AS number")
				if err != nil {
					return path, err
				}
				asn = uint32(x)
			} else {
				asn, err = c.uint32("AS number")
				if err != nil {
					return path, err
				}
			}
			segment.ASNs = append(segment.ASNs, asn)
		}

		path = append(path, segment)
	}

	return path, nil
}
