package pinata

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

func newTestClient(srv *httptest.Server) *Client {
	cfg := DefaultClientConfig()
	cfg.APIURL = srv.URL
	cfg.GatewayURL = srv.URL + "/ipfs/"
	cfg.JWT = "test-jwt"
	cfg.RetryCount = 1
	return NewClient(cfg)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/QmGood":
			_, _ = w.Write([]byte(`{"questions":[]}`))
		case "/ipfs/QmMissing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	ctx := context.Background()

	body, err := c.Get(ctx, "QmGood")
	require.NoError(t, err)
	assert.JSONEq(t, `{"questions":[]}`, string(body))

	_, err = c.Get(ctx, "QmMissing")
	assert.ErrorIs(t, err, shared.ErrContentNotFound)

	_, err = c.Get(ctx, "QmBroken")
	assert.True(t, shared.IsContentFetch(err))

	_, err = c.Get(ctx, "../etc")
	assert.True(t, shared.IsValidation(err))
}

func TestClient_GetRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Get(context.Background(), "QmFlaky")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Put(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer test-jwt", r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var got pinRequest
		assert.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "VSTEP_1", got.Metadata.Name)
		assert.JSONEq(t, `{"title":"x"}`, string(got.Content))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"IpfsHash":"QmNew","PinSize":12}`))
	}))
	defer srv.Close()

	hash, err := newTestClient(srv).Put(context.Background(), "VSTEP_1", []byte(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "QmNew", hash)
}

func TestClient_PutRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Put(context.Background(), "n", []byte(`{}`))
	assert.True(t, shared.IsContentFetch(err))

	_, err = c.Put(context.Background(), "n", []byte(`not json`))
	assert.True(t, shared.IsValidation(err))
}
