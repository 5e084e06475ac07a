package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuvoice-client-go/internal/platform/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(&logging.LogCfg{
		LogLevel: "error",
		LogDir:   t.TempDir(),
		LogFile:  "test.log",
	})
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Options{
		BaseURL:        server.URL,
		Logger:         testLogger(t),
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestClient_StartSession(t *testing.T) {
	var gotField string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/start_session", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(10<<20))
		if _, header, err := r.FormFile("image"); err == nil {
			gotField = header.Filename
		}
		w.Write([]byte(`{"answer":"summary text","doc_id":"D1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	session, err := client.StartSession(context.Background(), "capture.jpg", []byte("jpegdata"))
	require.NoError(t, err)
	assert.Equal(t, "D1", session.DocID)
	assert.Equal(t, "summary text", session.Summary)
	assert.Equal(t, "capture.jpg", gotField)
}

func TestClient_StartSession_HTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "entity too large", http.StatusRequestEntityTooLarge)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.StartSession(context.Background(), "capture.jpg", []byte("jpegdata"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "413")
}

func TestClient_Ask_BackendErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"세션이 존재하지 않습니다. 먼저 /start_session 호출하세요."}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.Ask(context.Background(), "q", "D1")
	require.Error(t, err)
	assert.True(t, IsNoSession(err))
}

func TestClient_Ask_SendsDocID(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Write([]byte(`{"answer":"A"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	answer, err := client.Ask(context.Background(), "what is this?", "D9")
	require.NoError(t, err)
	assert.Equal(t, "A", answer)
	assert.Contains(t, body, `"doc_id":"D9"`)
	assert.Contains(t, body, `"question":"what is this?"`)
}

func TestClient_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"answer":"late"}`))
	}))
	defer server.Close()

	client, err := NewClient(Options{
		BaseURL:        server.URL,
		Logger:         testLogger(t),
		RequestTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.Ask(context.Background(), "q", "")
	require.Error(t, err)
}

func TestClient_CookiesPersistAcrossCalls(t *testing.T) {
	var sawCookie bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/start_session":
			http.SetCookie(w, &http.Cookie{Name: "user_id", Value: "u-1"})
			w.Write([]byte(`{"answer":"S","doc_id":"D1"}`))
		case "/api/ask":
			if c, err := r.Cookie("user_id"); err == nil && c.Value == "u-1" {
				sawCookie = true
			}
			w.Write([]byte(`{"answer":"A"}`))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.StartSession(context.Background(), "capture.jpg", []byte("x"))
	require.NoError(t, err)
	_, err = client.Ask(context.Background(), "q", "D1")
	require.NoError(t, err)
	assert.True(t, sawCookie)
}

func TestClient_RecentDocsAndImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/recent_docs":
			w.Write([]byte(`{"items":[{"doc_id":"D1","mtime":1723000000,"path":"/tmp/u_D1.jpg"}]}`))
		case "/api/image":
			assert.Equal(t, "/tmp/u_D1.jpg", r.URL.Query().Get("path"))
			w.Write([]byte("imagebytes"))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	docs, err := client.RecentDocs(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "D1", docs[0].DocID)

	img, err := client.Image(context.Background(), docs[0].Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("imagebytes"), img)
}
