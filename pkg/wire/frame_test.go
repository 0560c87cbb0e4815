package wire_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhaddad/go-relay/pkg/wire"
)

func TestEncodeRoundTrip(t *testing.T) {
	payload := []byte(`{"kind":"ok"}`)
	frame := wire.Encode(payload)

	require.Len(t, frame, 4+len(payload))
	assert.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(frame[:4]))

	dec := wire.NewDecoder(0)
	payloads, err := dec.Feed(frame)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, payload, payloads[0])
	assert.Zero(t, dec.Buffered())
}

func TestDecoderEmptyPayload(t *testing.T) {
	dec := wire.NewDecoder(0)
	payloads, err := dec.Feed(wire.Encode(nil))
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Empty(t, payloads[0])
}

// Feeding the same byte stream one byte at a time must produce the same
// payloads as feeding it whole. Chunking is a transport accident, not a
// protocol feature.
func TestDecoderChunkBoundaryIndependence(t *testing.T) {
	first := wire.Encode([]byte(`{"kind":"chat-send","body":"héllo wörld"}`))
	second := wire.Encode([]byte(`{"kind":"ok"}`))
	stream := append(append([]byte{}, first...), second...)

	dec := wire.NewDecoder(0)
	var got [][]byte
	for _, b := range stream {
		payloads, err := dec.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, payloads...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, first[4:], got[0])
	assert.Equal(t, second[4:], got[1])
	assert.Zero(t, dec.Buffered())
}

// A multi-byte UTF-8 sequence split across chunks must reassemble intact;
// framing counts bytes, never runes.
func TestDecoderSplitsMultiByteRune(t *testing.T) {
	payload := []byte("日本語テキスト")
	frame := wire.Encode(payload)
	// Split inside the first rune's bytes.
	cut := 4 + 1

	dec := wire.NewDecoder(0)
	payloads, err := dec.Feed(frame[:cut])
	require.NoError(t, err)
	assert.Empty(t, payloads)
	assert.Equal(t, cut, dec.Buffered())

	payloads, err = dec.Feed(frame[cut:])
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, string(payload), string(payloads[0]))
}

func TestDecoderManyFramesOneChunk(t *testing.T) {
	var stream []byte
	for i := 0; i < 10; i++ {
		stream = append(stream, wire.Encode([]byte{byte(i)})...)
	}

	dec := wire.NewDecoder(0)
	payloads, err := dec.Feed(stream)
	require.NoError(t, err)
	require.Len(t, payloads, 10)
	for i, p := range payloads {
		assert.Equal(t, []byte{byte(i)}, p)
	}
}

func TestDecoderOversizedFrame(t *testing.T) {
	dec := wire.NewDecoder(16)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 17)

	_, err := dec.Feed(header)
	require.Error(t, err)

	var tooLarge *wire.ErrFrameTooLarge
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, uint32(17), tooLarge.Declared)
	assert.Equal(t, uint32(16), tooLarge.Max)
}

func TestDecoderPartialHeader(t *testing.T) {
	dec := wire.NewDecoder(0)
	payloads, err := dec.Feed([]byte{0x00, 0x00})
	require.NoError(t, err)
	assert.Empty(t, payloads)
	assert.Equal(t, 2, dec.Buffered())
}
