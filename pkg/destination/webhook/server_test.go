package webhook

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohenjo/connectors/pkg/auth"
	"github.com/cohenjo/connectors/pkg/connect"
)

type fakeTransformer struct{}

func (fakeTransformer) TransformInbound(ctx context.Context, mapping *connect.Mapping, originTopic string, payload []byte) (connect.Record, error) {
	return connect.Record{Topic: mapping.SourceTopic, Value: payload}, nil
}

func testMapping() *connect.Mapping {
	return &connect.Mapping{
		Name:            "intake",
		SourceTopic:     "events.intake",
		DestinationRef:  "n/a",
		DestinationType: connect.DestinationDocument,
		BatchSize:       10,
		FlushIntervalMs: 1000,
	}
}

func newTestServer(t *testing.T, cfg Config, verifier auth.Verifier) *Server {
	t.Helper()
	s := NewServer(cfg, testMapping(), verifier, fakeTransformer{})
	s.ready = true
	return s
}

func TestHandleIntakeAcceptsValidRequestAndQueuesRecord(t *testing.T) {
	verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeStaticKey, StaticKey: "k1"})
	require.NoError(t, err)
	s := newTestServer(t, Config{MaxBodyBytes: 1024}, verifier)

	req := httptest.NewRequest("POST", "/intake", bytes.NewReader([]byte(`{"a":1}`)))
	req.Header.Set("X-API-Key", "k1")
	rec := httptest.NewRecorder()

	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)

	polled := s.Poll(context.Background(), 10, 100*time.Millisecond)
	require.Len(t, polled, 1)
	assert.Equal(t, "/intake", string(polled[0].Headers["webhook.endpoint"]))
	assert.NotEmpty(t, polled[0].Headers["webhook.timestamp"])
}

func TestHandleIntakeReturns503WhenQueueFull(t *testing.T) {
	verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeStaticKey, StaticKey: "k1"})
	require.NoError(t, err)
	s := newTestServer(t, Config{MaxBodyBytes: 1024, QueueCapacity: 1}, verifier)
	require.True(t, s.queue.TryPush(connect.Record{}))

	req := httptest.NewRequest("POST", "/intake", bytes.NewReader([]byte(`{"a":1}`)))
	req.Header.Set("X-API-Key", "k1")
	rec := httptest.NewRecorder()

	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
}

func TestHandleIntakeRejectsWrongKey(t *testing.T) {
	verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeStaticKey, StaticKey: "k1"})
	require.NoError(t, err)
	s := newTestServer(t, Config{MaxBodyBytes: 1024}, verifier)

	req := httptest.NewRequest("POST", "/intake", bytes.NewReader([]byte(`{"a":1}`)))
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()

	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
	assert.Empty(t, s.Poll(context.Background(), 10, 10*time.Millisecond))
}

func TestHandleIntakeRejectsOversizeBody(t *testing.T) {
	verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeStaticKey, StaticKey: "k1"})
	require.NoError(t, err)
	s := newTestServer(t, Config{MaxBodyBytes: 8}, verifier)

	req := httptest.NewRequest("POST", "/intake", bytes.NewReader([]byte(`{"too":"big-a-body"}`)))
	req.Header.Set("X-API-Key", "k1")
	rec := httptest.NewRecorder()

	s.mux().ServeHTTP(rec, req)

	assert.Equal(t, 413, rec.Code)
	assert.Empty(t, s.Poll(context.Background(), 10, 10*time.Millisecond))
}

func TestHandleHealthAndReady(t *testing.T) {
	s := newTestServer(t, Config{}, nil)

	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 200, rec.Code)

	rec2 := httptest.NewRecorder()
	s.mux().ServeHTTP(rec2, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, 200, rec2.Code)
}

func TestUnconfiguredPathReturns404(t *testing.T) {
	s := newTestServer(t, Config{}, nil)

	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, httptest.NewRequest("POST", "/not-configured", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, 404, rec.Code)
}
