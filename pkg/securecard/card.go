package securecard

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/skythen/apdu"
)

// Card abstracts card transmit behavior for real PC/SC cards and test doubles.
// The returned response includes the trailing SW1 SW2 bytes.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// Transmit encodes cmd, sends it to the card and splits off the status word.
// Transport failures and malformed responses are reported as
// KindTransportUnavailable; a non-success status word is NOT an error here.
func Transmit(card Card, stage string, cmd apdu.Capdu) (apdu.Rapdu, error) {
	raw, err := encodeShort(cmd)
	if err != nil {
		return apdu.Rapdu{}, newSessionError(KindTransportUnavailable, stage, err)
	}
	slog.Debug("apdu >>", "stage", stage, "apdu", hexUpper(raw))

	resp, err := card.Transmit(raw)
	if err != nil {
		return apdu.Rapdu{}, newSessionError(KindTransportUnavailable, stage, err)
	}
	r, err := apdu.ParseRapdu(resp)
	if err != nil {
		return apdu.Rapdu{}, newSessionError(KindTransportUnavailable, stage,
			errors.Wrapf(err, "malformed response (%d bytes)", len(resp)))
	}
	slog.Debug("apdu <<", "stage", stage, "data", hexUpper(r.Data), "sw", fmt.Sprintf("%04X", statusWord(*r)))
	return *r, nil
}

// transmitOK is Transmit plus the 90 00 check. A rejection is reported as
// KindCommandRejected, annotated with reason when one is given.
func transmitOK(card Card, stage, reason string, cmd apdu.Capdu) ([]byte, error) {
	r, err := Transmit(card, stage, cmd)
	if err != nil {
		return nil, err
	}
	if !swOK(r) {
		var cause error = &SWError{Cmd: cmd.Ins, SW: statusWord(r)}
		if reason != "" {
			cause = errors.WithMessage(cause, reason)
		}
		return nil, newSessionError(KindCommandRejected, stage, cause)
	}
	return r.Data, nil
}

func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
