package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// chatURL helper
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NilGetter(t *testing.T) {
	_, err := NewClient(nil, "/profile-agent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_EmptyPrefix(t *testing.T) {
	_, err := NewClient(&fakeGetter{}, "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestNewClient_Valid(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/profile-agent")
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.NotNil(t, c.getter)
}

// ---------------------------------------------------------------------------
// resolveConfig — SSM caching behaviour
// ---------------------------------------------------------------------------

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	vals   map[string]string
	err    error
	onCall func() // optional; called on each GetParameter invocation
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.vals[name], nil
}

func configuredGetter() *fakeGetter {
	return &fakeGetter{vals: map[string]string{
		"/profile-agent/open-ai-token": `{"token":"sk-from-ssm"}`,
		"/profile-agent/config/model":  "gpt-mock",
	}}
}

func TestResolveConfig_FetchedOnFirstCallOnly(t *testing.T) {
	calls := 0
	g := configuredGetter()
	g.onCall = func() { calls++ }
	c, err := NewClient(g, "/profile-agent")
	require.NoError(t, err)

	require.NoError(t, c.resolveConfig(context.Background()))
	require.Equal(t, "sk-from-ssm", c.apiKey)
	require.Equal(t, "gpt-mock", c.model)
	require.Equal(t, 2, calls) // token + model

	// subsequent calls must never hit SSM again
	require.NoError(t, c.resolveConfig(context.Background()))
	require.NoError(t, c.resolveConfig(context.Background()))
	require.Equal(t, 2, calls, "SSM must only be read once per process lifetime")
}

func TestResolveConfig_EmptyModel(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{
		"/profile-agent/open-ai-token": `{"token":"sk-from-ssm"}`,
		"/profile-agent/config/model":  "  ",
	}}
	c, err := NewClient(g, "/profile-agent")
	require.NoError(t, err)
	err = c.resolveConfig(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

// ---------------------------------------------------------------------------
// fetchAPIKeyFromParamStore
// ---------------------------------------------------------------------------

func TestFetchAPIKey_JSONToken(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{"/profile-agent/open-ai-token": `{"token":"sk-from-json"}`}}
	key, err := fetchAPIKeyFromParamStore(context.Background(), g, "/profile-agent/open-ai-token")
	require.NoError(t, err)
	require.Equal(t, "sk-from-json", key)
}

func TestFetchAPIKey_JSONMissingTokenField(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{"/profile-agent/open-ai-token": `{"other":"value"}`}}
	_, err := fetchAPIKeyFromParamStore(context.Background(), g, "/profile-agent/open-ai-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "API token is empty")
}

func TestFetchAPIKey_MalformedJSON(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{"/profile-agent/open-ai-token": `{"broken`}}
	_, err := fetchAPIKeyFromParamStore(context.Background(), g, "/profile-agent/open-ai-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unmarshal")
}

func TestFetchAPIKey_GetterError(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	_, err := fetchAPIKeyFromParamStore(context.Background(), g, "/profile-agent/open-ai-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
}

// ---------------------------------------------------------------------------
// Client.Generate
// ---------------------------------------------------------------------------

func newHTTPTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		configuredGetter(),
		"/profile-agent",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestClient_Generate_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-from-ssm", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"model":"gpt-mock"`)
		require.Contains(t, string(reqBody), `"role":"user"`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "Hello from mock" }
			}]
		}`))
	}))
	defer srv.Close()

	c := newHTTPTestClient(t, srv)
	out, err := c.Generate(context.Background(), "what do you build?")
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", out)
}

func TestClient_Generate_EmptyPrompt(t *testing.T) {
	c, err := NewClient(configuredGetter(), "/profile-agent")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "   ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "prompt")
}

func TestClient_Generate_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := newHTTPTestClient(t, srv)
	_, err := c.Generate(context.Background(), "hi there")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status")
	require.Contains(t, err.Error(), "400")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 400, statusErr.HTTPStatusCode())
}

func TestClient_Generate_429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c := newHTTPTestClient(t, srv)
	_, err := c.Generate(context.Background(), "hi there")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestClient_Generate_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	c := newHTTPTestClient(t, srv)
	_, err := c.Generate(context.Background(), "hi there")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Generate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newHTTPTestClient(t, srv)
	_, err := c.Generate(context.Background(), "hi there")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestClient_Generate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newHTTPTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Generate(context.Background(), "hi there")
	require.Error(t, err)
}

func TestClient_Generate_NetworkError(t *testing.T) {
	c, err := NewClient(configuredGetter(), "/profile-agent")
	require.NoError(t, err)
	c.baseURL = "http://127.0.0.1:1"
	c.httpClient = &http.Client{Timeout: 100 * time.Millisecond}

	_, err = c.Generate(context.Background(), "hi there")
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestClient_Generate_ConfigErrorIsSticky(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	c, err := NewClient(g, "/profile-agent")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi there")
	require.Error(t, err)
	_, err = c.Generate(context.Background(), "hi there")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
}
