package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceipt(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	m := NewMailer("re_test", "Gen <noreply@example.com>", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, m.WithBaseURL(srv.URL+"/"))

	require.NoError(t, m.SendReceipt(context.Background(), "alice@example.com", 30))
	assert.Equal(t, []any{"alice@example.com"}, got["to"])
	assert.Contains(t, got["html"], "30 credits")
}

func TestSendFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"bad from"}`))
	}))
	defer srv.Close()

	m := NewMailer("re_test", "bad", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, m.WithBaseURL(srv.URL+"/"))

	assert.Error(t, m.Send(context.Background(), "alice@example.com", "s", "h"))
}

func TestSendRejectsEmptyRecipient(t *testing.T) {
	m := NewMailer("re_test", "from", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, m.Send(context.Background(), "", "s", "h"))
}
