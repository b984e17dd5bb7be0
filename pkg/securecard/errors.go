package securecard

import (
	"fmt"

	"github.com/pkg/errors"
)

// Status word constants returned by the applets.
const (
	SWSuccess                = 0x9000 // ISO success
	SWWrongLength            = 0x6700 // Wrong length
	SWSecurityNotSatisfied   = 0x6982 // Security status not satisfied (nonce mismatch on card side)
	SWDataInvalid            = 0x6984 // Data invalid
	SWConditionsNotSatisfied = 0x6985 // Conditions not satisfied (not authenticated)
	SWFileNotFound           = 0x6A82 // Applet / file not found
	SWWrongP1P2              = 0x6B00 // Offset outside the stored data
	SWInsNotSupported        = 0x6D00 // Instruction not supported
	SWClaNotSupported        = 0x6E00 // Class not supported
)

// SWError represents a non-success status word returned by the card.
type SWError struct {
	Cmd byte   // Command INS byte
	SW  uint16 // Status word
}

func (e *SWError) Error() string {
	return fmt.Sprintf("card command 0x%02X failed with SW=0x%04X (%s)", e.Cmd, e.SW, swDescription(e.SW))
}

func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWWrongLength:
		return "wrong length"
	case SWSecurityNotSatisfied:
		return "security not satisfied"
	case SWDataInvalid:
		return "data invalid"
	case SWConditionsNotSatisfied:
		return "conditions not satisfied"
	case SWFileNotFound:
		return "applet not found"
	case SWWrongP1P2:
		return "wrong P1/P2"
	case SWInsNotSupported:
		return "instruction not supported"
	case SWClaNotSupported:
		return "class not supported"
	default:
		return "unknown error"
	}
}

// Kind classifies why a session failed.
type Kind int

const (
	KindTransportUnavailable Kind = iota + 1
	KindCommandRejected
	KindAuthenticationFailed
	KindKeyParseFailed
	KindSignatureDecodeFailed
	KindSignatureInvalid
	KindDecryptOrParseFailed
	KindPayloadTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindTransportUnavailable:
		return "transport unavailable"
	case KindCommandRejected:
		return "command rejected"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindKeyParseFailed:
		return "public key parse failed"
	case KindSignatureDecodeFailed:
		return "signature decode failed"
	case KindSignatureInvalid:
		return "signature invalid"
	case KindDecryptOrParseFailed:
		return "decrypt or parse failed"
	case KindPayloadTooLarge:
		return "payload too large"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against a SessionError of the same kind.
var (
	ErrTransportUnavailable  = errors.New("transport unavailable")
	ErrCommandRejected       = errors.New("command rejected")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrKeyParseFailed        = errors.New("public key parse failed")
	ErrSignatureDecodeFailed = errors.New("signature decode failed")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrDecryptOrParseFailed  = errors.New("decrypt or parse failed")
	ErrPayloadTooLarge       = errors.New("payload too large")

	// ErrSessionState is returned when a session operation is called out of order.
	ErrSessionState = errors.New("session operation out of order")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTransportUnavailable:
		return ErrTransportUnavailable
	case KindCommandRejected:
		return ErrCommandRejected
	case KindAuthenticationFailed:
		return ErrAuthenticationFailed
	case KindKeyParseFailed:
		return ErrKeyParseFailed
	case KindSignatureDecodeFailed:
		return ErrSignatureDecodeFailed
	case KindSignatureInvalid:
		return ErrSignatureInvalid
	case KindDecryptOrParseFailed:
		return ErrDecryptOrParseFailed
	case KindPayloadTooLarge:
		return ErrPayloadTooLarge
	default:
		return nil
	}
}

// SessionError reports a failure at a specific protocol stage.
type SessionError struct {
	Kind  Kind   // Failure classification
	Stage string // Protocol stage, e.g. "select" or "respond-auth"
	SW    uint16 // Status word (if the card rejected a command)
	Cause error  // Underlying error
}

func (e *SessionError) Error() string {
	if e == nil {
		return "session error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Cause)
	}
	if e.SW != 0 {
		return fmt.Sprintf("%s: %s (SW=%04X)", e.Stage, e.Kind, e.SW)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *SessionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches the sentinel of the error's kind.
func (e *SessionError) Is(target error) bool {
	if e == nil {
		return false
	}
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newSessionError(kind Kind, stage string, cause error) *SessionError {
	se := &SessionError{Kind: kind, Stage: stage, Cause: cause}
	var swErr *SWError
	if errors.As(cause, &swErr) {
		se.SW = swErr.SW
	}
	return se
}

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsSecurityRejection reports whether err means the card must be rejected
// rather than retried: the nonce echo check or the payload signature failed.
func IsSecurityRejection(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindAuthenticationFailed || kind == KindSignatureInvalid)
}
