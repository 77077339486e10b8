package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientValidateSuccess(t *testing.T) {
	var gotReq wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/license/validate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(wireResponse{
			Result:    "success",
			Status:    "active",
			ExpiresAt: "2026-06-01T00:00:00Z",
			SiteCount: 2,
			MaxSites:  5,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, nil)
	result, err := client.Validate(context.Background(), "KEY-1234-ABCD", "site-1")
	require.NoError(t, err)

	assert.Equal(t, "KEY-1234-ABCD", gotReq.LicenseKey)
	assert.Equal(t, "site-1", gotReq.SiteIdentifier)
	assert.Equal(t, "validate", gotReq.Action)

	assert.Equal(t, "active", result.Status)
	assert.Equal(t, 2, result.SiteCount)
	assert.Equal(t, 5, result.MaxSites)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, 2026, result.ExpiresAt.Year())
}

func TestHTTPClientRejectionIsAuthoritative(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(wireResponse{
			Result: "rejected",
			Status: "invalid",
			Reason: "site limit exceeded",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, nil)
	_, err := client.Activate(context.Background(), "KEY-1234-ABCD", "site-1")
	require.Error(t, err)

	assert.True(t, IsAuthoritative(err))
	assert.False(t, IsTransient(err))

	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "site limit exceeded", rej.Reason)
	assert.Equal(t, "invalid", rej.Status)
}

func TestHTTPClientServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, nil)
	_, err := client.Validate(context.Background(), "KEY-1234-ABCD", "site-1")
	require.Error(t, err)

	assert.True(t, IsTransient(err))
	assert.False(t, IsAuthoritative(err))
	assert.ErrorIs(t, err, ErrServerError)
}

func TestHTTPClientNonRejection4xxIsTransient(t *testing.T) {
	// A non-2xx without a well-formed rejection payload stays transient:
	// the authority's true answer is unknown.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway config", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, nil)
	_, err := client.Validate(context.Background(), "KEY-1234-ABCD", "site-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPClientMalformedResponseIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, nil)
	_, err := client.Validate(context.Background(), "KEY-1234-ABCD", "site-1")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.True(t, IsTransient(err))
}

func TestHTTPClientBadExpiryIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{
			Result:    "success",
			Status:    "active",
			ExpiresAt: "next tuesday",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, nil)
	_, err := client.Validate(context.Background(), "KEY-1234-ABCD", "site-1")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHTTPClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 50*time.Millisecond, nil)
	_, err := client.Validate(context.Background(), "KEY-1234-ABCD", "site-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	client := NewHTTPClient(server.URL, time.Second, nil)
	_, err := client.Validate(context.Background(), "KEY-1234-ABCD", "site-1")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrUnreachable)
	assert.True(t, IsTransient(err))
}

func TestHTTPClientEmptyKeyRejectedLocally(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, time.Second, nil)

	_, err := client.Activate(context.Background(), "", "site-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = client.Validate(context.Background(), "", "site-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = client.Deactivate(context.Background(), "", "site-1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.False(t, called, "empty key must never reach the network")
}
