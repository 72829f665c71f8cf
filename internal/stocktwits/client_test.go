package stocktwits

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoMessages = `{
	"response": {"status": 200},
	"messages": [
		{"id": 449480803, "body": "$TSLA up", "created_at": "2022-04-03T18:00:00Z",
		 "user": {"id": 1, "username": "ChartMill"},
		 "symbols": [{"id": 686, "symbol": "TSLA"}],
		 "entities": {"sentiment": {"basic": "Bullish"}}},
		{"id": 449480293, "body": "flat", "created_at": "2022-04-03T16:26:00Z",
		 "user": {"id": 1, "username": "ChartMill"},
		 "symbols": [], "entities": {"sentiment": null}}
	]
}`

func TestFetchByUser_BuildsStreamRequest(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(twoMessages))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, WithHTTPClient(srv.Client()))
	msgs, err := c.FetchByUser(context.Background(), "ChartMill", Query{SinceID: 5, MaxID: 449480803, Limit: 30})
	require.NoError(t, err)

	assert.Equal(t, "/streams/user/ChartMill.json", gotPath)
	assert.Equal(t, "limit=30&max=449480803&since=5", gotQuery)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(449480803), msgs[0].ID)
	assert.Equal(t, time.Date(2022, 4, 3, 18, 0, 0, 0, time.UTC), msgs[0].CreatedAt)
	assert.Equal(t, "Bullish", msgs[0].SentimentLabel())
	assert.Equal(t, "", msgs[1].SentimentLabel())
}

func TestFetchBySymbol_AccessToken(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		w.Write([]byte(`{"messages": []}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", AccessToken: "tok"}, WithHTTPClient(srv.Client()))
	msgs, err := c.FetchBySymbol(context.Background(), "BTC.X", Query{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, "/streams/symbol/BTC.X.json", gotPath)
	assert.Equal(t, "tok", gotToken)
}

func TestFetch_NonSuccessIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"message":"not found"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, WithHTTPClient(srv.Client()))
	_, err := c.FetchByUser(context.Background(), "nobody", Query{Limit: 30})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.Status)
	assert.Equal(t, KindUser, terr.Kind)
	assert.Equal(t, "nobody", terr.Entity)
	assert.Contains(t, terr.Body, "not found")
}

func TestFetch_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(twoMessages))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 2, RetryDelay: time.Millisecond}, WithHTTPClient(srv.Client()))
	msgs, err := c.FetchByUser(context.Background(), "ChartMill", Query{Limit: 30})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetries: 1, RetryDelay: time.Millisecond}, WithHTTPClient(srv.Client()))
	_, err := c.FetchByUser(context.Background(), "ChartMill", Query{Limit: 30})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusTooManyRequests, terr.Status)
	assert.Equal(t, int32(2), calls.Load())
}

type failingClient struct{ err error }

func (f failingClient) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestFetch_ConnectivityFailure(t *testing.T) {
	boom := errors.New("connection refused")
	c := New(Config{}, WithHTTPClient(failingClient{err: boom}))
	_, err := c.FetchBySymbol(context.Background(), "TSLA", Query{Limit: 30})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 0, terr.Status)
	assert.ErrorIs(t, err, boom)
}

func TestFetch_RejectsBadInput(t *testing.T) {
	c := New(Config{}, WithHTTPClient(failingClient{err: errors.New("must not be called")}))

	_, err := c.FetchByUser(context.Background(), "../etc", Query{Limit: 30})
	assert.Error(t, err)

	_, err = c.FetchByUser(context.Background(), "ChartMill", Query{Limit: 0})
	assert.Error(t, err)
}

func TestFetch_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages": [{"id": 1, "created_at": "yesterday"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, WithHTTPClient(srv.Client()))
	_, err := c.FetchByUser(context.Background(), "ChartMill", Query{Limit: 30})
	assert.Error(t, err)
}
