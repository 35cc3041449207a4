package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/duplexnet"
)

// TestEncodeWireFormat pins the normative wire format.
func TestEncodeWireFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   int32
		args []any
		want string
	}{
		{
			name: "broadcast frame",
			id:   0,
			args: []any{"testEvent", 5333, true, false, "test, data"},
			want: `0["testEvent",5333,true,false,"test, data"]`,
		},
		{
			name: "correlated request",
			id:   42,
			args: []any{"ping"},
			want: `42["ping"]`,
		},
		{
			name: "empty response",
			id:   42,
			args: nil,
			want: `42[]`,
		},
		{
			name: "nested values",
			id:   7,
			args: []any{"evt", map[string]any{"a": []any{1, nil}}},
			want: `7["evt",{"a":[1,null]}]`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Encode(tt.id, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

// TestRoundTrip checks that encoding then decoding arbitrary argument
// lists yields back the original arguments, including strings carrying
// delimiter-like substrings.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   int32
		args []any
		want []any
	}{
		{
			name: "mixed scalars",
			id:   0,
			args: []any{"announce", float64(7), true, nil},
			want: []any{"announce", float64(7), true, nil},
		},
		{
			name: "delimiter-like substring",
			id:   99,
			args: []any{"raw", "ab, [2]3[four]"},
			want: []any{"raw", "ab, [2]3[four]"},
		},
		{
			name: "leading digits in payload string",
			id:   1,
			args: []any{"12345 looks like an id"},
			want: []any{"12345 looks like an id"},
		},
		{
			name: "max correlation id",
			id:   duplexnet.MaxCorrelationID,
			args: []any{"x"},
			want: []any{"x"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			frame, err := Encode(tt.id, tt.args)
			require.NoError(t, err)

			id, args, err := Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.want, args)
		})
	}
}

// TestDecodeMalformed covers both decode failure modes. Neither closes
// the connection; the caller only discards the frame.
func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "no leading digits",
			input:   `abc[1,2]`,
			wantErr: duplexnet.ErrBadFrame,
		},
		{
			name:    "empty input",
			input:   ``,
			wantErr: duplexnet.ErrBadFrame,
		},
		{
			name:    "id overflows int32",
			input:   `99999999999[]`,
			wantErr: duplexnet.ErrBadFrame,
		},
		{
			name:    "body is not JSON",
			input:   `42{broken`,
			wantErr: duplexnet.ErrBadJSON,
		},
		{
			name:    "missing body",
			input:   `42`,
			wantErr: duplexnet.ErrBadJSON,
		},
		{
			name:    "body is a JSON object",
			input:   `42{"a":1}`,
			wantErr: duplexnet.ErrBadJSON,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Decode([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestDecodeSanitizesBody checks whitespace trimming and NUL stripping
// before the JSON parse.
func TestDecodeSanitizesBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		id    int32
		args  []any
	}{
		{
			name:  "surrounding whitespace",
			input: "7 \t[\"a\"]\n",
			id:    7,
			args:  []any{"a"},
		},
		{
			name:  "embedded NUL bytes",
			input: "7[\"a\"\x00,\x001]\x00",
			id:    7,
			args:  []any{"a", float64(1)},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, args, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestEncodeRejectsNegativeID(t *testing.T) {
	t.Parallel()

	_, err := Encode(-1, []any{"x"})
	require.Error(t, err)
}
