package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
)

// Client talks to the document analysis backend. A cookie jar carries the
// user_id cookie that the backend uses to correlate sessions, matching the
// credentialed fetches of the original web client.
type Client struct {
	baseURL        string
	http           *http.Client
	logger         *logging.Logger
	requestTimeout time.Duration
	uploadTimeout  time.Duration
}

// Options configures the backend client.
type Options struct {
	BaseURL        string
	Logger         *logging.Logger
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
}

// NewClient builds a client with its own cookie jar.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "backend", "base URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 2 * opts.RequestTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "backend", "create cookie jar", err)
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           &http.Client{Jar: jar},
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
		uploadTimeout:  opts.UploadTimeout,
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// StartSession uploads the normalized document image and returns the new
// session. The multipart field name is "image", as the backend expects.
func (c *Client) StartSession(ctx context.Context, filename string, jpegBytes []byte) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "start_session", "build multipart form", err)
	}
	if _, err := part.Write(jpegBytes); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "start_session", "write multipart body", err)
	}
	if err := writer.Close(); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "start_session", "finalize multipart form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/start_session"), body)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "start_session", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "start_session", "request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, platformerrors.New(platformerrors.KindTransport, "start_session",
			fmt.Sprintf("start_session %d %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	session := parseStartSession(raw)
	c.logger.InfoTag("UPLOAD", "session started doc_id=%v summary_len=%d", session.DocID, len(session.Summary))
	return session, nil
}

// TTS synthesizes text and returns the audio bytes (audio/mpeg).
func (c *Client) TTS(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	raw, err := c.postJSON(ctx, "/api/tts", map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, platformerrors.New(platformerrors.KindTransport, "tts", "empty audio response")
	}
	return raw, nil
}

// STT uploads recorded audio under the multipart field "file" and returns
// the recognized text, which may be empty.
func (c *Client) STT(ctx context.Context, filename string, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindTransport, "stt", "build multipart form", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", platformerrors.Wrap(platformerrors.KindTransport, "stt", "write multipart body", err)
	}
	if err := writer.Close(); err != nil {
		return "", platformerrors.Wrap(platformerrors.KindTransport, "stt", "finalize multipart form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/stt"), body)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindTransport, "stt", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", platformerrors.Wrap(platformerrors.KindTransport, "stt", "request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", platformerrors.New(platformerrors.KindTransport, "stt",
			fmt.Sprintf("stt %d %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	return parseSTT(raw), nil
}

// Ask sends a question scoped to the active session. A backend-level error
// payload ({"error": ...}) is returned as an *APIError so callers can run
// the no-session predicate against it.
func (c *Client) Ask(ctx context.Context, question, docID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	payload := map[string]string{"question": question}
	if docID != "" {
		payload["doc_id"] = docID
	}

	raw, err := c.postJSON(ctx, "/api/ask", payload)
	if err != nil {
		return "", err
	}
	return parseAsk(raw)
}

// Conversation loads the persisted message history for a document.
func (c *Client) Conversation(ctx context.Context, docID string) ([]HistoryMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	query := url.Values{"doc_id": []string{docID}}
	raw, err := c.get(ctx, "/api/conversation", query)
	if err != nil {
		return nil, err
	}

	var body struct {
		Messages []HistoryMessage `json:"messages"`
	}
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "conversation", "decode response", err)
	}
	return body.Messages, nil
}

// RecentDocs lists the user's recently analyzed documents.
func (c *Client) RecentDocs(ctx context.Context) ([]RecentDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	raw, err := c.get(ctx, "/api/recent_docs", nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Items []RecentDoc `json:"items"`
	}
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "recent_docs", "decode response", err)
	}
	return body.Items, nil
}

// Image fetches a stored document image by backend path.
func (c *Client) Image(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	query := url.Values{"path": []string{path}}
	raw, err := c.get(ctx, "/api/image", query)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, platformerrors.New(platformerrors.KindTransport, "image", "empty image response")
	}
	return raw, nil
}

// DeleteDoc removes a stored document, returning whether anything was removed.
func (c *Client) DeleteDoc(ctx context.Context, docID, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	payload := map[string]string{"doc_id": docID}
	if path != "" {
		payload["path"] = path
	}
	raw, err := c.postJSON(ctx, "/api/delete_doc", payload)
	if err != nil {
		return false, err
	}

	var body struct {
		Removed bool `json:"removed"`
	}
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return false, platformerrors.Wrap(platformerrors.KindTransport, "delete_doc", "decode response", err)
	}
	return body.Removed, nil
}

// Feedback submits a summary rating.
func (c *Client) Feedback(ctx context.Context, docID, feedback, summary string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	_, err := c.postJSON(ctx, "/api/feedback", map[string]string{
		"doc_id":   docID,
		"feedback": feedback,
		"summary":  summary,
	})
	return err
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, path, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, path, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, path, "request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, platformerrors.New(platformerrors.KindTransport, path,
			fmt.Sprintf("%s %d %s", path, resp.StatusCode, truncate(string(raw), 200)))
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.endpoint(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, path, "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, path, "request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, platformerrors.New(platformerrors.KindTransport, path,
			fmt.Sprintf("%s %d %s", path, resp.StatusCode, truncate(string(raw), 200)))
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
