package packet

import (
	"github.com/pkg/errors"
)

const (
	AIGPTLVMetric = 1

	aigpTLVHeaderLen = 3
)

type AIGP []AIGPTLV

// AIGPTLV holds the accumulated metric for type 1 and the raw value otherwise
type AIGPTLV struct {
	Type   uint8
	Metric uint64
	Raw    []byte
}

func (pa *PathAttribute) decodeAIGP(c *cursor) error {
	tlvs := make(AIGP, 0, 1)
	pa.Value = tlvs

	for c.len() > 0 {
		tlv := AIGPTLV{}
		var l uint16
		err := c.decode("AIGP TLV header", &tlv.Type, &l)
		if err != nil {
			return err
		}

		// The length covers the TLV header
		if l < aigpTLVHeaderLen {
			return errors.Wrapf(ErrUnexpectedTLVLength, "AIGP TLV length %d", l)
		}

		vc, err := c.sub(int(l)-aigpTLVHeaderLen, "AIGP TLV value")
		if err != nil {
			return err
		}

		if tlv.Type == AIGPTLVMetric {
			if err := expectTLVLen(vc, 8); err != nil {
				return err
			}
			if tlv.Metric, err = vc.uint64("AIGP metric"); err != nil {
				return err
			}
		} else {
			tlv.Raw = vc.rest()
		}

		tlvs = append(tlvs, tlv)
		pa.Value = tlvs
	}

	return nil
}
