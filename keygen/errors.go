package keygen

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel errors
var (
	ErrUnknownParam         = errors.New("keygen: unknown parameter")
	ErrDuplicateParam       = errors.New("keygen: duplicate parameter name")
	ErrInvalidDirective     = errors.New("keygen: invalid directive")
	ErrUnhashableArgument   = errors.New("keygen: unhashable argument")
	ErrArgumentTypeMismatch = errors.New("keygen: argument type mismatch")
)

// UnhashableError reports which parameter, and where inside it, could not be
// written to the fingerprint.
type UnhashableError struct {
	Param  string
	Path   []string
	Reason string
}

func (e *UnhashableError) Error() string {
	where := e.Param
	if len(e.Path) > 0 {
		where += strings.Join(e.Path, "")
	}
	return fmt.Sprintf("keygen: unhashable argument %s: %s", where, e.Reason)
}

func (e *UnhashableError) Unwrap() error { return ErrUnhashableArgument }
