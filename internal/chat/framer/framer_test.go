package framer

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

func TestRoundTrip(t *testing.T) {
	f := New(0)
	var buf bytes.Buffer

	payloads := [][]byte{
		[]byte(`{"type":"USERS_REQ"}`),
		[]byte(`{"type":"DM","to":"user2","msg":"hello"}`),
		bytes.Repeat([]byte("x"), 4096),
	}
	for _, p := range payloads {
		require.NoError(t, f.WriteFrame(&buf, p))
	}
	for _, want := range payloads {
		got, err := f.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := f.ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

// chunkReader returns at most one byte per Read to simulate TCP segmentation.
type chunkReader struct {
	data []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestReadFrameSplitAcrossSegments(t *testing.T) {
	f := New(0)
	var buf bytes.Buffer
	require.NoError(t, f.WriteFrame(&buf, []byte("segmented payload")))

	got, err := f.ReadFrame(&chunkReader{data: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, []byte("segmented payload"), got)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	f := New(0)
	var buf bytes.Buffer
	require.NoError(t, f.WriteFrame(&buf, []byte("truncated")))

	short := buf.Bytes()[:buf.Len()-3]
	_, err := f.ReadFrame(bytes.NewReader(short))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameTooLarge(t *testing.T) {
	f := New(16)

	err := f.WriteFrame(io.Discard, bytes.Repeat([]byte("x"), 17))
	assert.Equal(t, merr.Code(merr.ErrFrameTooLarge), merr.Code(err))

	var buf bytes.Buffer
	require.NoError(t, New(0).WriteFrame(&buf, bytes.Repeat([]byte("x"), 17)))
	_, err = f.ReadFrame(&buf)
	assert.Equal(t, merr.Code(merr.ErrFrameTooLarge), merr.Code(err))
}

func TestEmptyFrame(t *testing.T) {
	f := New(0)
	var buf bytes.Buffer
	require.NoError(t, f.WriteFrame(&buf, nil))

	got, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}
