package protocol

import (
	"errors"
	"fmt"

	"github.com/near-handshake/handshake-go/pkg/wire"
)

// Decode errors.
var (
	// ErrDecode is returned when an envelope or a payload inside it cannot be decoded.
	ErrDecode = errors.New("decode error")

	// ErrUnsupportedKind is returned for well-formed messages of a kind this
	// node does not handle.
	ErrUnsupportedKind = errors.New("unsupported message kind")
)

// UnsupportedKindError reports the kind of a recognized but unsupported message.
// It matches both ErrUnsupportedKind and ErrDecode.
type UnsupportedKindError struct {
	Kind wire.MessageKind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported message kind %s", e.Kind)
}

func (e *UnsupportedKindError) Unwrap() []error {
	return []error{ErrUnsupportedKind, ErrDecode}
}

func decodeErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDecode, what, err)
}
