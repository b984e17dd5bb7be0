package securecard

import (
	"log/slog"

	"github.com/pkg/errors"
)

const maxOffset = 0xFFFF

// ReadChunked assembles the encrypted payload from GET_DATA reads of
// chunkSize bytes at increasing offsets. The offset travels big-endian in
// P1P2 and Le carries chunkSize.
//
// The loop ends on an empty response or on a short read (fewer than
// chunkSize bytes), which marks the final block. A rejected read aborts the
// whole retrieval; partial payloads are never returned.
//
// maxPayload bounds the accumulated size (0 = unbounded).
func ReadChunked(card Card, tmpl CommandTemplate, chunkSize, maxPayload int) ([]byte, error) {
	if chunkSize < 1 || chunkSize > maxShortNe {
		return nil, newSessionError(KindCommandRejected, "get-data", errors.Errorf("chunk size %d out of range", chunkSize))
	}

	payload := []byte{}
	offset := 0
	for {
		if offset > maxOffset {
			return nil, newSessionError(KindPayloadTooLarge, "get-data",
				errors.Errorf("offset %d exceeds 16-bit P1P2 addressing", offset))
		}
		part, err := transmitOK(card, "get-data", "", tmpl.AtOffset(uint16(offset), chunkSize))
		if err != nil {
			return nil, err
		}
		if len(part) == 0 {
			break
		}
		payload = append(payload, part...)
		offset += len(part)
		slog.Debug("payload chunk", "offset", offset-len(part), "len", len(part))

		if maxPayload > 0 && len(payload) > maxPayload {
			return nil, newSessionError(KindPayloadTooLarge, "get-data",
				errors.Errorf("payload exceeds %d bytes", maxPayload))
		}
		if len(part) < chunkSize {
			break
		}
	}
	return payload, nil
}

// ReadSingle fetches the whole payload with one GET_DATA command, for
// applets that return their data in a single response.
func ReadSingle(card Card, tmpl CommandTemplate, maxPayload int) ([]byte, error) {
	data, err := transmitOK(card, "get-data", "", tmpl.Build(nil))
	if err != nil {
		return nil, err
	}
	if maxPayload > 0 && len(data) > maxPayload {
		return nil, newSessionError(KindPayloadTooLarge, "get-data",
			errors.Errorf("payload exceeds %d bytes", maxPayload))
	}
	return append([]byte(nil), data...), nil
}
