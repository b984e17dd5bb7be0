package securecard

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/skythen/apdu"
)

const (
	maxShortLc = 0xFF
	maxShortNe = apdu.MaxLenResponseDataStandard
)

// encodeShort encodes c as a short ISO 7816-4 APDU (cases 1 to 4). Ne of 256
// travels as Le=0x00; anything that would need the extended form is refused.
func encodeShort(c apdu.Capdu) ([]byte, error) {
	if len(c.Data) > maxShortLc {
		return nil, errors.Errorf("command 0x%02X: data too long for short APDU (%d bytes)", c.Ins, len(c.Data))
	}
	if c.Ne < 0 || c.Ne > maxShortNe {
		return nil, errors.Errorf("command 0x%02X: Ne %d out of range", c.Ins, c.Ne)
	}
	b, err := c.Bytes()
	if err != nil {
		return nil, errors.Wrapf(err, "command 0x%02X", c.Ins)
	}
	return b, nil
}

// statusWord returns the 16-bit status word of r.
func statusWord(r apdu.Rapdu) uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// swOK reports whether r carries 90 00. 61 XX is not chained by this
// protocol and counts as a rejection.
func swOK(r apdu.Rapdu) bool {
	return r.IsSuccess() && statusWord(r) == SWSuccess
}

// CommandTemplate is a deployment-specific command header.
type CommandTemplate struct {
	CLA byte
	INS byte
	P1  byte
	P2  byte
	Ne  int // Expected response length (0 = no Le)
}

// Build fills the template with a data field.
func (t CommandTemplate) Build(data []byte) apdu.Capdu {
	return apdu.Capdu{Cla: t.CLA, Ins: t.INS, P1: t.P1, P2: t.P2, Data: data, Ne: t.Ne}
}

// AtOffset builds a GET_DATA style command addressing a 16-bit offset in P1P2.
func (t CommandTemplate) AtOffset(offset uint16, ne int) apdu.Capdu {
	return apdu.Capdu{Cla: t.CLA, Ins: t.INS, P1: byte(offset >> 8), P2: byte(offset), Ne: ne}
}

func (t CommandTemplate) String() string {
	if t.Ne > 0 {
		return fmt.Sprintf("%02X %02X %02X %02X Le=%d", t.CLA, t.INS, t.P1, t.P2, t.Ne)
	}
	return fmt.Sprintf("%02X %02X %02X %02X", t.CLA, t.INS, t.P1, t.P2)
}
