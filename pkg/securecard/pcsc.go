package securecard

import (
	"github.com/ebfe/scard"
	"github.com/pkg/errors"
)

// Connection wraps a PC/SC card connection.
type Connection struct {
	ctx       *scard.Context
	Card      *scard.Card
	Reader    string
	ReaderIdx int
}

// ListReaders returns the names of the PC/SC readers attached to the host.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, newSessionError(KindTransportUnavailable, "connect", errors.Wrap(err, "EstablishContext failed"))
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, newSessionError(KindTransportUnavailable, "connect", errors.Wrap(err, "list readers"))
	}
	return readers, nil
}

// Connect establishes a connection to the card in the reader at readerIndex
// (0-based). Missing readers or cards are reported as KindTransportUnavailable.
func Connect(readerIndex int) (*Connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, newSessionError(KindTransportUnavailable, "connect", errors.Wrap(err, "EstablishContext failed"))
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		if err == nil {
			err = errors.New("no readers found")
		}
		return nil, newSessionError(KindTransportUnavailable, "connect", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, newSessionError(KindTransportUnavailable, "connect",
			errors.Errorf("reader index out of range (0..%d)", len(readers)-1))
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, newSessionError(KindTransportUnavailable, "connect", errors.Wrapf(err, "connect %q", reader))
	}

	return &Connection{
		ctx:       ctx,
		Card:      card,
		Reader:    reader,
		ReaderIdx: readerIndex,
	}, nil
}

// Close disconnects the card and releases the PC/SC context.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	if c.Card != nil {
		_ = c.Card.Disconnect(scard.LeaveCard)
	}
	if c.ctx != nil {
		_ = c.ctx.Release()
	}
}

// Transmit sends an APDU to the card (implements Card interface).
func (c *Connection) Transmit(raw []byte) ([]byte, error) {
	if c == nil || c.Card == nil {
		return nil, errors.New("connection not established")
	}
	return c.Card.Transmit(raw)
}
