package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicpulse/outreach/internal/channels"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{
		APIURL:     srv.URL,
		APIKey:     "test-key",
		FromNumber: "+97140000000",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return client
}

func TestPlaceCall(t *testing.T) {
	var got callRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calls", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"call_id":"call-9","status":"queued"}}`))
	})

	handle, err := client.PlaceCall(context.Background(), "+971501234567",
		"Hi, this is the clinic calling about your appointment.",
		"Confirm tomorrow's 10:00 dental cleaning; offer to reschedule if needed.")
	require.NoError(t, err)
	assert.Equal(t, "call-9", handle.CallID)
	assert.Equal(t, "queued", handle.Status)
	assert.Equal(t, "+971501234567", got.PhoneNumber)
	assert.Equal(t, "+97140000000", got.From)
	assert.True(t, got.AnswerDetect)
}

func TestPlaceCallFlatResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"call_id":"call-10"}`))
	})
	handle, err := client.PlaceCall(context.Background(), "+971501234567", "Hi", "confirm")
	require.NoError(t, err)
	assert.Equal(t, "call-10", handle.CallID)
	assert.Equal(t, "initiated", handle.Status)
}

func TestPlaceCallValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the provider")
	})
	_, err := client.PlaceCall(context.Background(), "", "Hi", "confirm")
	assert.True(t, errors.Is(err, channels.ErrInvalidRecipient))
	_, err = client.PlaceCall(context.Background(), "+971501234567", "Hi", "")
	assert.Error(t, err)
}

func TestPlaceCallProviderErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, channels.ErrRateLimited},
		{http.StatusBadRequest, channels.ErrInvalidRecipient},
		{http.StatusInternalServerError, channels.ErrChannelUnavailable},
	}
	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := client.PlaceCall(context.Background(), "+971501234567", "Hi", "confirm")
		assert.True(t, errors.Is(err, tt.want), "status %d", tt.status)
	}
}
