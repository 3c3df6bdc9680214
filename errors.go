package spot

import (
	"github.com/cockroachdb/errors"

	"github.com/goforj/spot/codec"
	"github.com/goforj/spot/keygen"
	"github.com/goforj/spot/serializer"
)

// ErrRegistration marks every setup-time failure from Register and Mark.
var ErrRegistration = codec.ErrRegistration

// Setup errors
var (
	ErrFrozen         = codec.ErrRegistryFrozen
	ErrDuplicateCode  = codec.ErrDuplicateCode
	ErrDuplicateType  = codec.ErrDuplicateType
	ErrDuplicateName  = errors.New("spot: function name already marked")
	ErrEmptyName      = errors.New("spot: function name is required")
	ErrEmptyNamespace = errors.New("spot: namespace is required")
	ErrNilFunc        = errors.New("spot: function is nil")
)

// Errors seen while resolving a call. Only ErrUnhashableArgument reaches the
// caller of Call; the rest are logged and treated as a miss.
var (
	ErrUnregisteredType   = codec.ErrUnregisteredType
	ErrUnknownCode        = codec.ErrUnknownCode
	ErrUnhashableArgument = keygen.ErrUnhashableArgument
	ErrCorruptEntry       = serializer.ErrCorruptEntry
	ErrStaleEntry         = errors.New("spot: cache entry schema version is stale")
)

func registrationError(err error) error {
	return errors.Mark(err, ErrRegistration)
}
