package jsonstream

import (
	"context"
	"encoding/json"
	"io"
)

// Result is one item of an asynchronous stream: a value or the error that
// ended the stream.
type Result struct {
	Value json.RawMessage
	Err   error
}

// Stream decodes body in a producer goroutine and delivers values on the
// returned channel, which is closed when the stream ends. Cancelling ctx
// closes the body, which unblocks a pending read, and stops the producer.
// Consumers that stop reading early must cancel ctx.
func Stream(ctx context.Context, body io.ReadCloser, opts ...Option) <-chan Result {
	out := make(chan Result)
	dec := NewDecoder(body, opts...)

	go func() {
		defer close(out)
		defer dec.Close()
		stop := context.AfterFunc(ctx, func() { _ = dec.Close() })
		defer stop()

		for {
			value, err := dec.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				select {
				case out <- Result{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Result{Value: value}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
