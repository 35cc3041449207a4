package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/luciancaetano/duplexnet"
)

// maxIDDigits is the longest decimal run that can still fit an int32.
const maxIDDigits = 10

// Encode encodes one frame: the decimal correlation id immediately followed
// by the JSON array of arguments, with no separator. Id 0 marks a
// fire-and-forget frame. A nil argument list encodes as the empty array.
func Encode(id int32, args []any) ([]byte, error) {
	if id < 0 {
		return nil, fmt.Errorf("correlation id %d out of range", id)
	}
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode frame args: %w", err)
	}
	out := make([]byte, 0, maxIDDigits+len(body))
	out = strconv.AppendInt(out, int64(id), 10)
	return append(out, body...), nil
}

// Decode splits one frame at the boundary between the leading digit run and
// the remainder, then parses the remainder as a JSON array. The remainder is
// trimmed of surrounding whitespace and stripped of embedded NUL bytes
// before parsing, so a stray stream delimiter inside a frame cannot break
// it. Neither failure mode closes the connection; the caller discards the
// frame.
func Decode(data []byte) (int32, []any, error) {
	digits := 0
	for digits < len(data) && data[digits] >= '0' && data[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return 0, nil, duplexnet.ErrBadFrame
	}
	id64, err := strconv.ParseInt(string(data[:digits]), 10, 32)
	if err != nil {
		// Digit run overflows the id space.
		return 0, nil, fmt.Errorf("%w: %s", duplexnet.ErrBadFrame, data[:digits])
	}

	body := bytes.TrimSpace(data[digits:])
	if bytes.IndexByte(body, 0) >= 0 {
		body = bytes.ReplaceAll(body, []byte{0}, nil)
	}

	var args []any
	if err := json.Unmarshal(body, &args); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", duplexnet.ErrBadJSON, err)
	}
	return int32(id64), args, nil
}
