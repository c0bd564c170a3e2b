package packet

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	bnet "github.com/taktv6/bgpdecode/net"
)

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	ErrTruncated           = errors.New("truncated")
	ErrLengthMismatch      = errors.New("length mismatch")
	ErrInvalidDiscriminant = errors.New("invalid discriminant")
	ErrAmbiguousASWidth    = errors.New("ambiguous AS number width")
	ErrNonZeroPaddingBits  = bnet.ErrNonZeroPaddingBits
	ErrUnexpectedTLVLength = errors.New("unexpected TLV length")
	ErrInvalidFlags        = errors.New("invalid attribute flags")
	ErrTrailingBytes       = errors.New("trailing bytes")
)

// AttrError is a failure to decode one path attribute
type AttrError struct {
	TypeCode AttrTypeCode
	Offset   int
	Err      error
}

func (e *AttrError) Error() string {
	return fmt.Sprintf("path attribute %d at offset %d: %v", e.TypeCode, e.Offset, e.Err)
}

func (e *AttrError) Unwrap() error {
	return e.Err
}

// NLRIError is a failure to decode an NLRI entry or section
type NLRIError struct {
	AFI    AFI
	SAFI   SAFI
	Offset int
	Err    error
}

func (e *NLRIError) Error() string {
	return fmt.Sprintf("NLRI %d/%d at offset %d: %v", e.AFI, e.SAFI, e.Offset, e.Err)
}

func (e *NLRIError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err, or any error combined into it, is of the given kind
func IsKind(err error, kind error) bool {
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, kind) {
			return true
		}
	}
	return false
}

// prefixError maps prefix helper errors onto this package's error kinds
func prefixError(err error) error {
	if errors.Is(err, bnet.ErrPrefixLength) {
		return errors.Wrap(ErrLengthMismatch, err.Error())
	}
	return err
}
