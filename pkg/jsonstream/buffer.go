// Package jsonstream reconstructs a sequence of JSON values from an
// arbitrarily chunked byte stream, such as the body of a streaming HTTP
// response carrying concatenated JSON objects.
package jsonstream

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

// Buffer is the decode state machine. Bytes before the cursor have been
// decoded; bytes from the cursor on are zero or more complete values followed
// by at most one incomplete value. Buffer is not safe for concurrent use.
type Buffer struct {
	buf       []byte
	cursor    int
	offset    int64 // absolute stream position of buf[0]
	threshold int
	eof       bool
}

// NewBuffer creates an empty buffer. A threshold <= 0 selects the default
// compaction threshold.
func NewBuffer(threshold int) *Buffer {
	if threshold <= 0 {
		threshold = constants.CompactThreshold
	}
	return &Buffer{threshold: threshold}
}

// Write appends a chunk. It never fails; writing after Close is ignored.
func (b *Buffer) Write(p []byte) (int, error) {
	if !b.eof {
		b.buf = append(b.buf, p...)
	}
	return len(p), nil
}

// Close marks the end of input. Values still buffered stay available from
// Next; once drained, Next reports io.EOF, or a malformed stream error when
// undecodable bytes remain.
func (b *Buffer) Close() {
	b.eof = true
}

// Offset is the absolute stream position of the cursor.
func (b *Buffer) Offset() int64 {
	return b.offset + int64(b.cursor)
}

// Buffered is the number of bytes held past the cursor.
func (b *Buffer) Buffered() int {
	return len(b.buf) - b.cursor
}

// Next decodes the value at the cursor. ok is false with a nil error when more
// input is needed.
func (b *Buffer) Next() (value json.RawMessage, ok bool, err error) {
	b.skipSpace()
	if b.cursor == len(b.buf) {
		b.compact()
		if b.eof {
			return nil, false, io.EOF
		}
		return nil, false, nil
	}

	pending := b.buf[b.cursor:]
	dec := json.NewDecoder(bytes.NewReader(pending))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if b.eof {
				return nil, false, b.malformed(0)
			}
			return nil, false, nil
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) && syntaxErr.Offset > 0 {
			return nil, false, b.malformed(syntaxErr.Offset - 1)
		}
		return nil, false, b.malformed(0)
	}

	consumed := int(dec.InputOffset())
	// A number running to the end of the buffer may continue in the next chunk.
	if !b.eof && consumed == len(pending) && isNumberStart(pending[0]) {
		return nil, false, nil
	}

	value = make(json.RawMessage, len(raw))
	copy(value, raw)
	b.cursor += consumed
	b.compact()
	return value, true, nil
}

func (b *Buffer) skipSpace() {
	for b.cursor < len(b.buf) {
		switch b.buf[b.cursor] {
		case ' ', '\t', '\r', '\n':
			b.cursor++
		default:
			return
		}
	}
}

// compact drops the consumed prefix once it is at least half the buffer and
// at least the threshold.
func (b *Buffer) compact() {
	if b.cursor < b.threshold || b.cursor*2 < len(b.buf) {
		return
	}
	n := copy(b.buf, b.buf[b.cursor:])
	b.buf = b.buf[:n]
	b.offset += int64(b.cursor)
	b.cursor = 0
}

// malformed builds the stream error for the first undecodable byte at
// cursor+rel.
func (b *Buffer) malformed(rel int64) error {
	excerpt := b.buf[b.cursor:]
	if len(excerpt) > constants.MalformedExcerptLimit {
		excerpt = excerpt[:constants.MalformedExcerptLimit]
	}
	return errors.ErrMalformedStream(b.Offset()+rel, string(excerpt))
}

func isNumberStart(c byte) bool {
	return c == '-' || (c >= '0' && c <= '9')
}
