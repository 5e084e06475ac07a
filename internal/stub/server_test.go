package stub

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/domain/conversation"
	"docuvoice-client-go/internal/domain/session"
	"docuvoice-client-go/internal/platform/config"
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

func newStubAndClient(t *testing.T) (*Server, *backend.Client) {
	t.Helper()
	logger := testLogger(t)
	stub := NewServer(config.StubConfig{}, logger)
	ts := httptest.NewServer(stub.Router())
	t.Cleanup(ts.Close)

	client, err := backend.NewClient(backend.Options{BaseURL: ts.URL, Logger: logger})
	require.NoError(t, err)
	return stub, client
}

func TestFullSessionRoundTrip(t *testing.T) {
	_, client := newStubAndClient(t)
	ctx := context.Background()

	sess, err := client.StartSession(ctx, "capture.jpg", []byte("jpeg payload"))
	require.NoError(t, err)
	require.NotEmpty(t, sess.DocID)
	assert.Contains(t, sess.Summary, "capture.jpg")

	answer, err := client.Ask(ctx, "what is the deadline", sess.DocID)
	require.NoError(t, err)
	assert.Contains(t, answer, "what is the deadline")

	history, err := client.Conversation(ctx, sess.DocID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)

	docs, err := client.RecentDocs(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, sess.DocID, docs[0].DocID)

	img, err := client.Image(ctx, docs[0].Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg payload"), img)
}

func TestExpiredSessionReturnsLegacyError(t *testing.T) {
	stub, client := newStubAndClient(t)
	ctx := context.Background()

	sess, err := client.StartSession(ctx, "doc.jpg", []byte("img"))
	require.NoError(t, err)

	stub.Store().ExpireSessions()

	_, err = client.Ask(ctx, "still there?", sess.DocID)
	require.Error(t, err)
	assert.True(t, backend.IsNoSession(err))
}

func TestRecoveryAgainstStub(t *testing.T) {
	stub, client := newStubAndClient(t)
	logger := testLogger(t)
	ctx := context.Background()

	sess, err := client.StartSession(ctx, "doc.jpg", []byte("original image"))
	require.NoError(t, err)

	conv := conversation.New(client, session.NewRecoverer(client, logger), logger)
	conv.Begin(sess)

	stub.Store().ExpireSessions()

	answer, err := conv.Ask(ctx, "what does it say")
	require.NoError(t, err, "ask must survive a lost session via recovery")
	assert.Contains(t, answer, "what does it say")
	assert.NotEqual(t, sess.DocID, conv.DocID(), "recovery opens a fresh session")

	// The recovered session is fully usable without another recovery.
	_, err = conv.Ask(ctx, "and the date?")
	assert.NoError(t, err)
}

func TestTTSAndSTT(t *testing.T) {
	stub, client := newStubAndClient(t)
	ctx := context.Background()

	audio, err := client.TTS(ctx, "read this aloud")
	require.NoError(t, err)
	assert.NotEmpty(t, audio)

	stub.Transcript = "expected transcript"
	text, err := client.STT(ctx, "recording.wav", []byte("wav bytes"))
	require.NoError(t, err)
	assert.Equal(t, "expected transcript", text)
}

func TestDeleteDocAndFeedback(t *testing.T) {
	_, client := newStubAndClient(t)
	ctx := context.Background()

	sess, err := client.StartSession(ctx, "doc.jpg", []byte("img"))
	require.NoError(t, err)

	require.NoError(t, client.Feedback(ctx, sess.DocID, "good", sess.Summary))

	removed, err := client.DeleteDoc(ctx, sess.DocID, "")
	require.NoError(t, err)
	assert.True(t, removed)

	docs, err := client.RecentDocs(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	removed, err = client.DeleteDoc(ctx, sess.DocID, "")
	require.NoError(t, err)
	assert.False(t, removed, "second delete finds nothing")
}
