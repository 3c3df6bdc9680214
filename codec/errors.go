package codec

import "github.com/cockroachdb/errors"

// ErrRegistration marks every setup-time registration failure.
var ErrRegistration = errors.New("codec: registration error")

// Registration errors
var (
	ErrDuplicateCode  = errors.New("codec: code already bound to another type")
	ErrDuplicateType  = errors.New("codec: type already registered")
	ErrRegistryFrozen = errors.New("codec: registry is frozen")
	ErrInvalidCodec   = errors.New("codec: invalid codec")
)

// Lookup errors
var (
	ErrUnregisteredType = errors.New("codec: type is not registered")
	ErrUnknownCode      = errors.New("codec: unknown type code")
)

func registrationError(err error) error {
	return errors.Mark(err, ErrRegistration)
}
