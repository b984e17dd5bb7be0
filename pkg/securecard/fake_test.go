package securecard

import (
	"github.com/pkg/errors"
	"github.com/skythen/apdu"
)

// payloadCard serves data at P1P2 offsets, or whole when single is set.
type payloadCard struct {
	data   []byte
	single bool
	failAt int // offset answered with 6A82 (-1 = never)
	sent   [][]byte
}

func newPayloadCard(data []byte) *payloadCard {
	return &payloadCard{data: data, failAt: -1}
}

func (c *payloadCard) Transmit(raw []byte) ([]byte, error) {
	c.sent = append(c.sent, append([]byte(nil), raw...))
	cmd, err := apdu.ParseCapdu(raw)
	if err != nil {
		return []byte{0x67, 0x00}, nil
	}
	if c.single {
		return append(append([]byte(nil), c.data...), 0x90, 0x00), nil
	}
	offset := int(cmd.P1)<<8 | int(cmd.P2)
	if offset == c.failAt {
		return []byte{0x6A, 0x82}, nil
	}
	if offset > len(c.data) {
		return []byte{0x6B, 0x00}, nil
	}
	end := offset + cmd.Ne
	if end > len(c.data) {
		end = len(c.data)
	}
	return append(append([]byte(nil), c.data[offset:end]...), 0x90, 0x00), nil
}

// endlessCard answers every read with exactly Ne bytes.
type endlessCard struct{ reads int }

func (c *endlessCard) Transmit(raw []byte) ([]byte, error) {
	c.reads++
	cmd, err := apdu.ParseCapdu(raw)
	if err != nil {
		return nil, err
	}
	return append(make([]byte, cmd.Ne), 0x90, 0x00), nil
}

// replyCard returns one fixed response to every command.
type replyCard struct {
	resp []byte
	err  error
}

func (c replyCard) Transmit([]byte) ([]byte, error) {
	return c.resp, c.err
}

var errUnplugged = errors.New("reader unplugged")
