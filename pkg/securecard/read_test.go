package securecard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testGetData = CommandTemplate{CLA: 0x00, INS: 0x13}

func sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestReadChunkedAggregatesAllChunks(t *testing.T) {
	for _, n := range []int{0, 1, 239, 240, 241, 480, 1000} {
		data := sequence(n)
		card := newPayloadCard(data)

		got, err := ReadChunked(card, testGetData, DefaultChunkSize, 0)
		require.NoError(t, err, "size %d", n)
		require.Equal(t, data, got, "size %d", n)
	}
}

func TestReadChunkedOffsets(t *testing.T) {
	card := newPayloadCard(sequence(480))

	_, err := ReadChunked(card, testGetData, 240, 0)
	require.NoError(t, err)
	require.Equal(t, [][]byte{
		{0x00, 0x13, 0x00, 0x00, 0xF0},
		{0x00, 0x13, 0x00, 0xF0, 0xF0},
		{0x00, 0x13, 0x01, 0xE0, 0xF0},
	}, card.sent)
}

func TestReadChunkedStopsOnShortRead(t *testing.T) {
	card := newPayloadCard(sequence(1000))

	got, err := ReadChunked(card, testGetData, 240, 0)
	require.NoError(t, err)
	require.Len(t, got, 1000)
	require.Len(t, card.sent, 5) // 4 x 240 + 40
}

func TestReadChunkedTwoChunksEqualSingleRead(t *testing.T) {
	data := sequence(480)

	chunked, err := ReadChunked(newPayloadCard(data), testGetData, 240, 0)
	require.NoError(t, err)

	single := newPayloadCard(data)
	single.single = true
	whole, err := ReadSingle(single, CommandTemplate{CLA: 0x80, INS: 0x13, Ne: 256}, 0)
	require.NoError(t, err)

	require.Equal(t, whole, chunked)
}

func TestReadChunkedFailureDiscardsPartialPayload(t *testing.T) {
	card := newPayloadCard(sequence(1000))
	card.failAt = 480

	got, err := ReadChunked(card, testGetData, 240, 0)
	require.Nil(t, got)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindCommandRejected, kind)

	var se *SessionError
	require.ErrorAs(t, err, &se)
	require.Equal(t, uint16(SWFileNotFound), se.SW)
	require.Equal(t, "get-data", se.Stage)
}

func TestReadChunkedTransportFailure(t *testing.T) {
	_, err := ReadChunked(replyCard{err: errUnplugged}, testGetData, 240, 0)
	require.ErrorIs(t, err, ErrTransportUnavailable)
	require.ErrorIs(t, err, errUnplugged)
}

func TestReadChunkedMaxPayload(t *testing.T) {
	card := newPayloadCard(sequence(1000))

	got, err := ReadChunked(card, testGetData, 240, 500)
	require.Nil(t, got)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.Len(t, card.sent, 3)
}

func TestReadChunkedOffsetOverflow(t *testing.T) {
	card := &endlessCard{}

	_, err := ReadChunked(card, testGetData, 256, 0)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.Equal(t, 256, card.reads)
}

func TestReadChunkedRejectsChunkSize(t *testing.T) {
	_, err := ReadChunked(newPayloadCard(nil), testGetData, 0, 0)
	require.Error(t, err)
	_, err = ReadChunked(newPayloadCard(nil), testGetData, 257, 0)
	require.Error(t, err)
}

func TestReadSingleMaxPayload(t *testing.T) {
	card := newPayloadCard(sequence(300))
	card.single = true

	_, err := ReadSingle(card, CommandTemplate{CLA: 0x80, INS: 0x13, Ne: 256}, 256)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}
