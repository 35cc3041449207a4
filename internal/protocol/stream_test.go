package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStreamDecoderFrameAcrossReads delivers one frame split over several
// reads; nothing may be parsed until the delimiter arrives.
func TestStreamDecoderFrameAcrossReads(t *testing.T) {
	t.Parallel()

	d := &StreamDecoder{}

	assert.Empty(t, d.Feed([]byte(`0["ann`)))
	assert.Empty(t, d.Feed([]byte(`ounce",7`)))
	assert.Positive(t, d.Pending())

	frames := d.Feed([]byte("]\x00"))
	require.Len(t, frames, 1)
	assert.Equal(t, `0["announce",7]`, string(frames[0]))
	assert.Zero(t, d.Pending())
}

// TestStreamDecoderManyFramesOneRead delivers several frames plus a
// trailing fragment in a single read; the fragment must be held back.
func TestStreamDecoderManyFramesOneRead(t *testing.T) {
	t.Parallel()

	d := &StreamDecoder{}

	frames := d.Feed([]byte("1[]\x002[\"a\"]\x003[\"tail"))
	require.Len(t, frames, 2)
	assert.Equal(t, `1[]`, string(frames[0]))
	assert.Equal(t, `2["a"]`, string(frames[1]))

	frames = d.Feed([]byte("\"]\x00"))
	require.Len(t, frames, 1)
	assert.Equal(t, `3["tail"]`, string(frames[0]))
}

// TestStreamDecoderSkipsEmptyFrames tolerates consecutive delimiters.
func TestStreamDecoderSkipsEmptyFrames(t *testing.T) {
	t.Parallel()

	d := &StreamDecoder{}

	frames := d.Feed([]byte("\x00\x001[]\x00\x00"))
	require.Len(t, frames, 1)
	assert.Equal(t, `1[]`, string(frames[0]))
	assert.Zero(t, d.Pending())
}

// TestStreamDecoderFramesAreStable checks extracted frames survive later
// feeds reusing the internal buffer.
func TestStreamDecoderFramesAreStable(t *testing.T) {
	t.Parallel()

	d := &StreamDecoder{}

	frames := d.Feed([]byte("1[\"first\"]\x00partial"))
	require.Len(t, frames, 1)
	first := string(frames[0])

	d.Feed([]byte("2[\"second\"]\x00"))
	assert.Equal(t, `1["first"]`, first)
	assert.Equal(t, `1["first"]`, string(frames[0]))
}

func TestAppendDelimiter(t *testing.T) {
	t.Parallel()

	frame := []byte(`0["x"]`)
	out := AppendDelimiter(frame)

	require.Equal(t, "0[\"x\"]\x00", string(out))
	// The input must not be mutated; broadcasts share one frame buffer.
	assert.Equal(t, `0["x"]`, string(frame))
}
