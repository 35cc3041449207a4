package protocol

import "bytes"

// Delimiter terminates each frame on stream-oriented transports. JSON
// encoding escapes every control character, so a raw NUL byte can never
// occur inside an encoded frame body.
const Delimiter byte = 0x00

// StreamDecoder recovers frames from an undifferentiated byte stream. It
// keeps an accumulation buffer per connection: each read is appended,
// complete delimiter-terminated frames are extracted in order, and any
// trailing fragment is retained for the next read instead of being parsed
// prematurely.
//
// A StreamDecoder is not safe for concurrent use; each connection owns one
// and feeds it from its single read loop.
type StreamDecoder struct {
	buf []byte
}

// Feed appends p to the accumulation buffer and returns every complete
// frame now available, in arrival order, without their delimiters. Empty
// frames (consecutive delimiters) are skipped.
func (d *StreamDecoder) Feed(p []byte) [][]byte {
	d.buf = append(d.buf, p...)

	var frames [][]byte
	for {
		i := bytes.IndexByte(d.buf, Delimiter)
		if i < 0 {
			break
		}
		if i > 0 {
			frame := make([]byte, i)
			copy(frame, d.buf[:i])
			frames = append(frames, frame)
		}
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Pending returns the number of buffered bytes that do not yet form a
// complete frame.
func (d *StreamDecoder) Pending() int {
	return len(d.buf)
}

// AppendDelimiter suffixes one encoded frame for a stream write. The
// result is a fresh slice: a broadcast shares one frame buffer across
// connections, so appending in place would race.
func AppendDelimiter(frame []byte) []byte {
	out := make([]byte, len(frame)+1)
	copy(out, frame)
	out[len(frame)] = Delimiter
	return out
}
