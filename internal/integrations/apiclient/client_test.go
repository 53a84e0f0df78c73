package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGetter is a minimal paramstore.Getter stub.
type fakeGetter struct {
	val    string
	err    error
	calls  int
	failN  int
	failed int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.failed < f.failN {
		f.failed++
		return "", errors.New("temporary ssm failure")
	}
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server, g *fakeGetter) *Client {
	t.Helper()
	c, err := New("test", srv.URL, g, "/growth/test-token", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	g := &fakeGetter{}
	_, err := New("x", "", g, "/p")
	require.ErrorContains(t, err, "base url")

	_, err = New("x", "http://localhost", nil, "/p")
	require.ErrorContains(t, err, "getter")

	_, err = New("x", "http://localhost", g, " ")
	require.ErrorContains(t, err, "token parameter")

	c, err := New("x", "http://localhost/", g, "/p", WithTimeout(3*time.Second))
	require.NoError(t, err)
	require.Equal(t, "http://localhost", c.baseURL)
	require.Equal(t, 3*time.Second, c.httpClient.Timeout)
}

func TestURL(t *testing.T) {
	c, err := New("x", "https://api.example.com/", &fakeGetter{}, "/p")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1/usage", c.URL("/v1/usage", nil))
	require.Equal(t, "https://api.example.com/v1/metrics?period=daily", c.URL("v1/metrics", url.Values{"period": {"daily"}}))
}

func TestGetJSON_SendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Equal(t, "/v1/things", r.URL.Path)
		require.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	g := &fakeGetter{val: `{"token":"sk-test"}`}
	c := newTestClient(t, srv, g)

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/v1/things", url.Values{"days": {"7"}}, &out))
	require.Equal(t, "ok", out.Name)

	require.NoError(t, c.GetJSON(context.Background(), "/v1/things", url.Values{"days": {"7"}}, &out))
	require.Equal(t, 1, g.calls, "token must be fetched once")
}

func TestPostJSON_EncodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var in map[string]any
		require.NoError(t, json.Unmarshal(raw, &in))
		require.Equal(t, "hello", in["msg"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &fakeGetter{val: `{"token":"t"}`})
	require.NoError(t, c.PostJSON(context.Background(), "/v1/echo", map[string]string{"msg": "hello"}, nil))
}

func TestDo_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &fakeGetter{val: `{"token":"t"}`})
	err := c.GetJSON(context.Background(), "/v1/x", nil, &struct{}{})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "slow down", statusErr.Body)
	code, ok := StatusCode(err)
	require.True(t, ok)
	require.Equal(t, http.StatusTooManyRequests, code)
}

func TestDo_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not-json"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &fakeGetter{val: `{"token":"t"}`})
	err := c.GetJSON(context.Background(), "/v1/x", nil, &map[string]any{})
	require.ErrorContains(t, err, "decode response")
}

func TestResolveToken_FailureIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	g := &fakeGetter{val: `{"token":"t"}`, failN: 1}
	c := newTestClient(t, srv, g)

	err := c.GetJSON(context.Background(), "/v1/x", nil, nil)
	require.ErrorContains(t, err, "resolve token")

	require.NoError(t, c.GetJSON(context.Background(), "/v1/x", nil, nil))
	require.Equal(t, 2, g.calls)
}

func TestStatusCode_NotHTTP(t *testing.T) {
	_, ok := StatusCode(errors.New("plain"))
	require.False(t, ok)
}
