package httptel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestTransport(t *testing.T) {
	t.Parallel()

	t.Run("creates client span and injects headers", func(t *testing.T) {
		t.Parallel()
		config, spanRecorder, _ := setupHTTPTest(t)

		var received string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received = r.Header.Get("traceparent")
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(server.Close)

		transport := NewTransport(nil, config)
		req, err := http.NewRequest(http.MethodGet, server.URL+"/ok", nil)
		require.NoError(t, err)

		resp, err := transport.RoundTrip(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		spans := spanRecorder.Ended()
		require.Len(t, spans, 1)
		span := spans[0]

		u, err := url.Parse(server.URL)
		require.NoError(t, err)
		assert.Equal(t, "GET "+u.Host+"/ok", span.Name())
		assert.Equal(t, trace.SpanKindClient, span.SpanKind())
		assert.Equal(t, codes.Ok, span.Status().Code)

		require.NotEmpty(t, received)
		assert.Contains(t, received, span.SpanContext().TraceID().String())
	})

	t.Run("does not mutate the caller's request", func(t *testing.T) {
		t.Parallel()
		config, _, _ := setupHTTPTest(t)

		transport := NewTransport(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}), config)

		req, err := http.NewRequest(http.MethodGet, "http://backend/ok", nil)
		require.NoError(t, err)

		resp, err := transport.RoundTrip(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Empty(t, req.Header.Get("traceparent"))
	})

	t.Run("classifies response statuses", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			status int
			kind   string
		}{
			{name: "not found", status: http.StatusNotFound, kind: ErrorKindClient},
			{name: "bad gateway", status: http.StatusBadGateway, kind: ErrorKindServer},
			{name: "redirect", status: http.StatusMovedPermanently, kind: ErrorKindRedirect},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				config, spanRecorder, reader := setupHTTPTest(t)

				transport := NewTransport(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
					return &http.Response{StatusCode: tt.status, Body: http.NoBody}, nil
				}), config)

				req, err := http.NewRequest(http.MethodGet, "http://backend/orders", nil)
				require.NoError(t, err)

				resp, err := transport.RoundTrip(req)
				require.NoError(t, err)
				require.NoError(t, resp.Body.Close())

				spans := spanRecorder.Ended()
				require.Len(t, spans, 1)
				assert.Equal(t, codes.Error, spans[0].Status().Code)
				assert.Equal(t, int64(1), errorCount(t, reader, "GET backend/orders", tt.kind))
			})
		}
	})

	t.Run("classifies transport failures", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			err  error
			kind string
		}{
			{name: "deadline exceeded", err: context.DeadlineExceeded, kind: ErrorKindTimeout},
			{name: "canceled", err: context.Canceled, kind: ErrorKindCanceled},
			{name: "network timeout", err: timeoutError{}, kind: ErrorKindTimeout},
			{name: "connection refused", err: errors.New("connection refused"), kind: ErrorKindTransport},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				config, spanRecorder, reader := setupHTTPTest(t)

				transport := NewTransport(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
					return nil, tt.err
				}), config)

				req, err := http.NewRequest(http.MethodGet, "http://backend/orders", nil)
				require.NoError(t, err)

				resp, err := transport.RoundTrip(req)
				require.ErrorIs(t, err, tt.err)
				assert.Nil(t, resp)

				spans := spanRecorder.Ended()
				require.Len(t, spans, 1)
				assert.Equal(t, codes.Error, spans[0].Status().Code)

				assert.Equal(t, int64(1), errorCount(t, reader, "GET backend/orders", tt.kind))
				assert.Equal(t, uint64(1), durationCount(t, reader, "GET backend/orders"))
			})
		}
	})

	t.Run("skip paths bypass instrumentation", func(t *testing.T) {
		t.Parallel()
		config, spanRecorder, _ := setupHTTPTest(t)
		config.SkipPaths = []string{"/healthz"}

		transport := NewTransport(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}), config)

		req, err := http.NewRequest(http.MethodGet, "http://backend/healthz", nil)
		require.NoError(t, err)

		resp, err := transport.RoundTrip(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Empty(t, spanRecorder.Ended())
	})
}

func TestInstrumentResty(t *testing.T) {
	t.Parallel()

	config, spanRecorder, reader := setupHTTPTest(t)

	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := InstrumentResty(resty.New(), config)
	resp, err := client.R().Get(server.URL + "/orders")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.NotEmpty(t, received)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), durationCount(t, reader, "GET "+u.Host+"/orders"))
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "deadline", err: context.DeadlineExceeded, expected: ErrorKindTimeout},
		{name: "wrapped deadline", err: errors.Join(errors.New("request"), context.DeadlineExceeded), expected: ErrorKindTimeout},
		{name: "canceled", err: context.Canceled, expected: ErrorKindCanceled},
		{name: "net timeout", err: timeoutError{}, expected: ErrorKindTimeout},
		{name: "anything else", err: errors.New("broken pipe"), expected: ErrorKindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ClassifyError(tt.err))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		kind    string
		isError bool
	}{
		{name: "ok", status: http.StatusOK, kind: "", isError: false},
		{name: "created", status: http.StatusCreated, kind: "", isError: false},
		{name: "moved", status: http.StatusMovedPermanently, kind: ErrorKindRedirect, isError: true},
		{name: "not found", status: http.StatusNotFound, kind: ErrorKindClient, isError: true},
		{name: "internal", status: http.StatusInternalServerError, kind: ErrorKindServer, isError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			kind, isError := ClassifyStatus(tt.status)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.isError, isError)
		})
	}
}
