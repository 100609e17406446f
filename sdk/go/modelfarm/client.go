// Package modelfarm is a thin client for the model farm inference API. It
// attaches identity credentials to each call and decodes whole and streamed
// JSON responses.
package modelfarm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/jsonstream"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// TokenSource supplies the Authorization header and drops it after a 401.
type TokenSource interface {
	AuthorizationHeader(ctx context.Context) (string, error)
	Invalidate()
}

// RequestRecorder counts API calls.
type RequestRecorder interface {
	RecordRequest(path string, status int)
}

// Client calls the model farm API.
type Client struct {
	rootURL       string
	tokens        TokenSource
	httpClient    *http.Client
	streamTimeout time.Duration
	chunkSize     int
	observer      jsonstream.Observer
	recorder      RequestRecorder
	tracer        trace.Tracer
	log           logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithStreamTimeout bounds each streaming call as a whole. Zero disables it.
func WithStreamTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.streamTimeout = d }
}

// WithChunkSize sets the read size used against streamed bodies.
func WithChunkSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.chunkSize = n
		}
	}
}

// WithObserver reports stream decode progress.
func WithObserver(obs jsonstream.Observer) Option {
	return func(cl *Client) { cl.observer = obs }
}

// WithRequestRecorder counts calls by path and status.
func WithRequestRecorder(r RequestRecorder) Option {
	return func(cl *Client) { cl.recorder = r }
}

// WithTracer sets the tracer for per-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) { cl.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

// NewClient creates a client for rootURL authenticating with tokens.
func NewClient(rootURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if rootURL == "" {
		return nil, errors.ErrConfiguration("root url must not be empty")
	}
	if tokens == nil {
		return nil, errors.ErrConfiguration("a token source is required")
	}
	c := &Client{
		rootURL:       strings.TrimRight(rootURL, "/"),
		tokens:        tokens,
		httpClient:    http.DefaultClient,
		streamTimeout: constants.DefaultStreamTimeout,
		chunkSize:     constants.DefaultChunkSize,
		tracer:        noop.NewTracerProvider().Tracer(""),
		log:           logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Post sends payload to path and decodes the JSON response into out. A nil
// out discards the body after checking it.
func (c *Client) Post(ctx context.Context, path string, payload, out any) error {
	ctx, span := c.tracer.Start(ctx, "Client.Post", trace.WithAttributes(attribute.String("modelfarm.path", path)))
	defer span.End()

	auth, err := c.tokens.AuthorizationHeader(ctx)
	if err != nil {
		return spanError(span, err)
	}
	resp, err := c.post(ctx, ctx, path, payload, auth)
	if err != nil {
		return spanError(span, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return spanError(span, errors.ErrInvalidResponse(resp.StatusCode, "failed to read response body").WithCause(err))
	}
	if err := checkResponse(resp.StatusCode, body); err != nil {
		return spanError(span, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return spanError(span, errors.ErrInvalidResponse(resp.StatusCode, "response does not match the expected type").WithCause(err))
	}
	return nil
}

// Stream sends payload to path and yields each JSON value of the streamed
// response as it arrives. A failure is yielded once as the final pair. The
// connection is closed when iteration ends, including on an early break.
//
// The stream timeout starts once the Authorization header is available, so
// an interactive token acquisition is bounded only by ctx.
func (c *Client) Stream(ctx context.Context, path string, payload any) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		ctx, span := c.tracer.Start(ctx, "Client.Stream", trace.WithAttributes(attribute.String("modelfarm.path", path)))
		defer span.End()

		auth, err := c.tokens.AuthorizationHeader(ctx)
		if err != nil {
			yield(nil, spanError(span, err))
			return
		}
		sctx, cancel := c.streamContext(ctx)
		defer cancel()

		body, err := c.openStream(ctx, sctx, path, payload, auth)
		if err != nil {
			yield(nil, spanError(span, err))
			return
		}

		var values int
		for value, err := range jsonstream.NewDecoder(body, c.decodeOptions()...).All() {
			if err != nil {
				yield(nil, spanError(span, c.streamErr(sctx, err)))
				return
			}
			values++
			if !yield(value, nil) {
				break
			}
		}
		span.SetAttributes(attribute.Int("modelfarm.stream.values", values))
	}
}

// StreamAsync is the channel form of Stream. The channel is closed when the
// stream ends. Consumers that stop reading early must cancel ctx.
func (c *Client) StreamAsync(ctx context.Context, path string, payload any) <-chan jsonstream.Result {
	out := make(chan jsonstream.Result)

	go func() {
		defer close(out)
		ctx, span := c.tracer.Start(ctx, "Client.StreamAsync", trace.WithAttributes(attribute.String("modelfarm.path", path)))
		defer span.End()

		send := func(r jsonstream.Result) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		auth, err := c.tokens.AuthorizationHeader(ctx)
		if err != nil {
			send(jsonstream.Result{Err: spanError(span, err)})
			return
		}
		sctx, cancel := c.streamContext(ctx)
		defer cancel()

		body, err := c.openStream(ctx, sctx, path, payload, auth)
		if err != nil {
			send(jsonstream.Result{Err: spanError(span, err)})
			return
		}

		for r := range jsonstream.Stream(sctx, body, c.decodeOptions()...) {
			if r.Err != nil {
				r.Err = spanError(span, c.streamErr(sctx, r.Err))
			}
			if !send(r) {
				return
			}
		}
	}()

	return out
}

// StreamValues decodes each value of a stream into T.
func StreamValues[T any](seq iter.Seq2[json.RawMessage, error]) iter.Seq2[T, error] {
	return jsonstream.Values[T](seq)
}

func (c *Client) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.streamTimeout > 0 {
		return context.WithTimeout(ctx, c.streamTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) decodeOptions() []jsonstream.Option {
	opts := []jsonstream.Option{jsonstream.WithChunkSize(c.chunkSize)}
	if c.observer != nil {
		opts = append(opts, jsonstream.WithObserver(c.observer))
	}
	return opts
}

// streamErr reports a read cut short by the deadline as the context error.
func (c *Client) streamErr(ctx context.Context, err error) error {
	if _, ok := errors.AsClientError(err); ok {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// openStream posts under reqCtx and checks the status, returning the body of a 200.
func (c *Client) openStream(ctx, reqCtx context.Context, path string, payload any, auth string) (io.ReadCloser, error) {
	resp, err := c.post(ctx, reqCtx, path, payload, auth)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ErrInvalidResponse(resp.StatusCode, "failed to read response body").WithCause(err)
	}
	return nil, checkResponse(resp.StatusCode, body)
}

// post sends the request under reqCtx, re-acquiring the token under ctx and
// retrying once on a 401.
func (c *Client) post(ctx, reqCtx context.Context, path string, payload any, auth string) (*http.Response, error) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, errors.ErrConfiguration("failed to encode request payload").WithCause(err)
		}
	}

	resp, err := c.send(reqCtx, path, data, auth)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.log.Info(ctx, "Request unauthorized, re-acquiring token", logger.Fields{"path": path})
	c.tokens.Invalidate()
	if auth, err = c.tokens.AuthorizationHeader(ctx); err != nil {
		return nil, err
	}
	return c.send(reqCtx, path, data, auth)
}

func (c *Client) send(ctx context.Context, path string, data []byte, auth string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.ErrConfiguration("failed to build request").WithCause(err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", auth)
	req.Header.Set(constants.HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(path, 0)
		return nil, err
	}
	c.record(path, resp.StatusCode)
	c.log.Debug(ctx, "Model farm request", logger.Fields{
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": requestID,
	})
	return resp, nil
}

func (c *Client) record(path string, status int) {
	if c.recorder != nil {
		c.recorder.RecordRequest(path, status)
	}
}

// checkResponse maps a non-200 status to a typed error. A body that is not
// JSON is an invalid response whatever the status.
func checkResponse(status int, body []byte) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		if status == http.StatusOK && json.Valid(body) {
			return nil
		}
		return errors.ErrInvalidResponse(status, "Invalid response: "+string(body)).WithCause(err)
	}
	if status == http.StatusOK {
		return nil
	}

	detail := string(body)
	if raw, ok := payload["detail"]; ok {
		detail = detailText(raw)
	}
	if status == http.StatusBadRequest {
		return errors.ErrBadRequest(detail)
	}
	return errors.ErrInvalidResponse(status, detail)
}

func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
