package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
)

func newLookupServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "mobile", r.URL.Query().Get("type"))
		assert.Equal(t, "0911223344", r.URL.Query().Get("term"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPLookupClient(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		ok      bool
		payload string
		reason  string
	}{
		{
			name:    "record found",
			status:  http.StatusOK,
			body:    `{"name":"Someone","city":"Somewhere"}`,
			ok:      true,
			payload: `{"name":"Someone","city":"Somewhere"}`,
		},
		{
			name:    "trailing document ignored",
			status:  http.StatusOK,
			body:    `{"name":"Someone"}{"credits_left":10}`,
			ok:      true,
			payload: `{"name":"Someone"}`,
		},
		{
			name:   "error field",
			status: http.StatusOK,
			body:   `{"error":"invalid key"}`,
			reason: "invalid key",
		},
		{
			name:   "no records",
			status: http.StatusOK,
			body:   `{"message":"No matching records found"}`,
			reason: "No matching records found",
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{}`,
			reason: "unexpected status 500",
		},
		{
			name:   "null error field",
			status: http.StatusOK,
			body:   `{"error":null}`,
			reason: "upstream error",
		},
		{
			name:   "empty object",
			status: http.StatusOK,
			body:   `{}`,
			reason: "empty response",
		},
		{
			name:   "empty array",
			status: http.StatusOK,
			body:   `[]`,
			reason: "empty response",
		},
		{
			name:   "null body",
			status: http.StatusOK,
			body:   `null`,
			reason: "empty response",
		},
		{
			name:   "empty body",
			status: http.StatusOK,
			body:   ``,
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   `<html>`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newLookupServer(t, tc.status, tc.body)
			client := services.NewHTTPLookupClient(srv.URL, "secret", time.Second, 0)

			res := client.Lookup(context.Background(), models.SearchKindMobile, "0911223344")
			assert.Equal(t, tc.ok, res.OK)
			if tc.ok {
				assert.JSONEq(t, tc.payload, string(res.Payload))
				return
			}
			assert.Nil(t, res.Payload)
			assert.NotEmpty(t, res.Reason)
			if tc.reason != "" {
				assert.Equal(t, tc.reason, res.Reason)
			}
		})
	}
}

func TestHTTPLookupClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := services.NewHTTPLookupClient(url, "secret", time.Second, 5)
	res := client.Lookup(context.Background(), models.SearchKindIDNumber, "123456789012")
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "request")
}

func TestHTTPLookupClientCancelled(t *testing.T) {
	srv := newLookupServer(t, http.StatusOK, `{"name":"Someone"}`)
	client := services.NewHTTPLookupClient(srv.URL, "secret", time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := client.Lookup(ctx, models.SearchKindMobile, "0911223344")
	require.False(t, res.OK)
}
