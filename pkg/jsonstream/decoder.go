package jsonstream

import (
	"encoding/json"
	"io"
	"iter"
	"sync"

	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

// Observer is notified of decode progress. Implementations must be safe for
// concurrent use when shared between streams.
type Observer interface {
	ValueDecoded()
	StreamFailed(err error)
}

type options struct {
	chunkSize int
	threshold int
	observer  Observer
}

// Option configures a Decoder or Stream.
type Option func(*options)

// WithChunkSize sets the read size used against the body.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithCompactThreshold sets the minimum consumed prefix before compaction.
func WithCompactThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// WithObserver attaches an Observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func buildOptions(opts []Option) options {
	o := options{
		chunkSize: constants.DefaultChunkSize,
		threshold: constants.CompactThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Decoder pulls JSON values from a body. The body is closed when the stream
// ends, fails, or Close is called.
type Decoder struct {
	body      io.ReadCloser
	buf       *Buffer
	chunk     []byte
	observer  Observer
	err       error
	closeOnce sync.Once
	closeErr  error
}

// NewDecoder creates a Decoder reading body.
func NewDecoder(body io.ReadCloser, opts ...Option) *Decoder {
	o := buildOptions(opts)
	return &Decoder{
		body:     body,
		buf:      NewBuffer(o.threshold),
		chunk:    make([]byte, o.chunkSize),
		observer: o.observer,
	}
}

// Next returns the next value, io.EOF at a clean end of stream, or the error
// that ended the stream. Errors are sticky.
func (d *Decoder) Next() (json.RawMessage, error) {
	if d.err != nil {
		return nil, d.err
	}
	for {
		value, ok, err := d.buf.Next()
		if err != nil {
			return nil, d.fail(err)
		}
		if ok {
			if d.observer != nil {
				d.observer.ValueDecoded()
			}
			return value, nil
		}

		n, readErr := d.body.Read(d.chunk)
		if n > 0 {
			d.buf.Write(d.chunk[:n])
		}
		switch {
		case readErr == io.EOF:
			d.buf.Close()
		case readErr != nil:
			return nil, d.fail(readErr)
		}
	}
}

func (d *Decoder) fail(err error) error {
	d.err = err
	_ = d.Close()
	if err != io.EOF && d.observer != nil {
		d.observer.StreamFailed(err)
	}
	return err
}

// All iterates the remaining values. A failure is yielded once as the final
// pair. The body is closed on every exit, including an early break.
func (d *Decoder) All() iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		defer d.Close()
		for {
			value, err := d.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(value, nil) {
				return
			}
		}
	}
}

// Close closes the body. It is safe to call more than once and from another
// goroutine, which unblocks a pending read.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.body.Close()
	})
	return d.closeErr
}

// Values decodes each raw value of seq into T. A value that does not decode
// ends the sequence with an invalid response error.
func Values[T any](seq iter.Seq2[json.RawMessage, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for raw, err := range seq {
			var v T
			if err != nil {
				yield(v, err)
				return
			}
			if err := json.Unmarshal(raw, &v); err != nil {
				yield(v, errors.ErrInvalidResponse(200, "stream value does not match the expected type").WithCause(err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// DecodeAll decodes every value of a complete document.
func DecodeAll(data []byte) ([]json.RawMessage, error) {
	b := NewBuffer(0)
	b.Write(data)
	b.Close()
	var out []json.RawMessage
	for {
		value, _, err := b.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, value)
	}
}
