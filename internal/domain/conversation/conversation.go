// Package conversation keeps the ordered transcript for one document
// session and drives the ask round-trip, including the one-shot session
// recovery retry.
package conversation

import (
	"context"
	"errors"
	"sync"

	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/domain/eventbus"
	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
)

// Kind tags a transcript entry. Pending kinds stand in for in-flight
// operations and are replaced in place, at the same position, when the
// operation settles.
type Kind string

const (
	KindSummary         Kind = "summary"
	KindQuestion        Kind = "question"
	KindAnswer          Kind = "answer"
	KindQuestionPending Kind = "question-pending"
	KindAnswerPending   Kind = "answer-pending"
)

// Message is one transcript entry.
type Message struct {
	ID     int
	Kind   Kind
	Text   string
	Failed bool
}

// Pending reports whether the entry is an unresolved placeholder.
func (m Message) Pending() bool {
	return m.Kind == KindQuestionPending || m.Kind == KindAnswerPending
}

// Handle identifies a pending question placeholder. Callers hold it
// privately and resolve by it; placeholder positions are never
// re-derived from list content.
type Handle struct {
	id int
}

// API is the backend surface the conversation needs.
type API interface {
	Ask(ctx context.Context, question, docID string) (string, error)
	Conversation(ctx context.Context, docID string) ([]backend.HistoryMessage, error)
}

// SessionRecoverer restores a lost backend session for a document.
type SessionRecoverer interface {
	Recover(ctx context.Context, docID string) (*backend.Session, error)
}

// ErrAskInFlight is returned when Ask is called while a previous ask is
// still waiting for its answer.
var ErrAskInFlight = platformerrors.New(platformerrors.KindSession, "conversation.ask", "previous question still in flight")

// ErrNoSession is returned when Ask is called before a session exists.
var ErrNoSession = platformerrors.New(platformerrors.KindSession, "conversation.ask", "no active document session")

const (
	answerUnavailable = "Sorry, I could not answer that. Please try again."
	answerTimedOut    = "The request timed out. Please try again."
)

// Conversation holds the transcript for the active document. All
// methods are safe for concurrent use; every mutation publishes a chat
// event so the rendering layer stays in sync.
type Conversation struct {
	api       API
	recoverer SessionRecoverer
	logger    *logging.Logger

	mu       sync.Mutex
	docID    string
	summary  string
	messages []Message
	nextID   int
	asking   bool
}

func New(api API, recoverer SessionRecoverer, logger *logging.Logger) *Conversation {
	return &Conversation{api: api, recoverer: recoverer, logger: logger}
}

// Begin resets the transcript for a freshly started session. The
// summary becomes the opening entry.
func (c *Conversation) Begin(sess *backend.Session) {
	c.mu.Lock()
	c.docID = sess.DocID
	c.summary = sess.Summary
	c.messages = nil
	c.nextID = 0
	c.asking = false
	if sess.Summary != "" {
		c.appendLocked(Message{Kind: KindSummary, Text: sess.Summary})
	}
	c.mu.Unlock()
	c.publishChanged()
}

// DocID returns the active document id, empty when no session exists.
func (c *Conversation) DocID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docID
}

// Summary returns the document summary from session start.
func (c *Conversation) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Messages returns a copy of the transcript in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) appendLocked(m Message) int {
	m.ID = c.nextID
	c.nextID++
	c.messages = append(c.messages, m)
	return m.ID
}

func (c *Conversation) publishChanged() {
	eventbus.Publish(eventbus.EventChatChanged)
}

// replaceLocked swaps the placeholder identified by id with the
// resolved message, keeping its position and id. Returns false when the
// placeholder is gone (wholesale history reload).
func (c *Conversation) replaceLocked(id int, want Kind, resolved Message) bool {
	for i := range c.messages {
		if c.messages[i].ID == id && c.messages[i].Kind == want {
			resolved.ID = id
			c.messages[i] = resolved
			return true
		}
	}
	return false
}

// LoadHistory replaces the transcript with the server-side history for
// the active document. Failure is silent: the current transcript stays
// and the user can keep working.
func (c *Conversation) LoadHistory(ctx context.Context) {
	c.mu.Lock()
	docID := c.docID
	c.mu.Unlock()
	if docID == "" {
		return
	}

	history, err := c.api.Conversation(ctx, docID)
	if err != nil {
		c.logger.WarnTag("CHAT", "history load failed for doc_id=%s: %v", docID, err)
		return
	}
	if len(history) == 0 {
		// An empty history must not wipe the seeded summary.
		return
	}

	c.mu.Lock()
	c.messages = nil
	for _, h := range history {
		kind := KindQuestion
		if h.Role == "assistant" {
			kind = KindAnswer
		}
		c.appendLocked(Message{Kind: kind, Text: h.Text})
	}
	c.mu.Unlock()
	c.logger.InfoChat("history loaded: %d messages for doc_id=%s", len(history), docID)
	c.publishChanged()
}

// BeginPendingQuestion appends a question placeholder for a voice ask
// whose transcription is still running. Only one question may be
// pending at a time.
func (c *Conversation) BeginPendingQuestion() (Handle, error) {
	c.mu.Lock()
	if c.docID == "" {
		c.mu.Unlock()
		return Handle{}, ErrNoSession
	}
	for _, m := range c.messages {
		if m.Kind == KindQuestionPending {
			c.mu.Unlock()
			return Handle{}, ErrAskInFlight
		}
	}
	id := c.appendLocked(Message{Kind: KindQuestionPending})
	c.mu.Unlock()
	c.publishChanged()
	return Handle{id: id}, nil
}

// FailQuestion resolves a pending question to an inline error message;
// no answer is requested.
func (c *Conversation) FailQuestion(h Handle, msg string) {
	c.mu.Lock()
	c.replaceLocked(h.id, KindQuestionPending, Message{Kind: KindQuestion, Text: msg, Failed: true})
	c.mu.Unlock()
	c.publishChanged()
}

// ResolveQuestion fills the pending question with the transcript and
// runs the ask round-trip for it.
func (c *Conversation) ResolveQuestion(ctx context.Context, h Handle, text string) (string, error) {
	if text == "" {
		c.FailQuestion(h, "(nothing recognized)")
		return "", platformerrors.New(platformerrors.KindSession, "conversation.ask", "empty transcription")
	}
	c.mu.Lock()
	if !c.replaceLocked(h.id, KindQuestionPending, Message{Kind: KindQuestion, Text: text}) {
		// Placeholder lost to a history reload; the question still runs,
		// appended fresh.
		c.appendLocked(Message{Kind: KindQuestion, Text: text})
	}
	c.mu.Unlock()
	c.publishChanged()
	return c.ask(ctx, text, false)
}

// Ask sends a typed question. Blank text is a no-op. Only one ask may
// be in flight; concurrent calls get ErrAskInFlight. A lost backend
// session triggers exactly one recovery and one retry before the error
// surfaces.
func (c *Conversation) Ask(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", nil
	}
	return c.ask(ctx, question, true)
}

// ask appends the answer placeholder, runs the backend call and
// resolves the placeholder in place whichever way the call settles.
func (c *Conversation) ask(ctx context.Context, question string, appendQuestion bool) (string, error) {
	c.mu.Lock()
	if c.docID == "" {
		c.mu.Unlock()
		return "", ErrNoSession
	}
	if c.asking {
		c.mu.Unlock()
		return "", ErrAskInFlight
	}
	c.asking = true
	if appendQuestion {
		c.appendLocked(Message{Kind: KindQuestion, Text: question})
	}
	pendingID := c.appendLocked(Message{Kind: KindAnswerPending})
	c.mu.Unlock()

	eventbus.Publish(eventbus.EventChatAsked, question)
	c.publishChanged()

	answer, err := c.askWithRecovery(ctx, question)

	c.mu.Lock()
	c.asking = false
	resolved := Message{Kind: KindAnswer, Text: answer}
	if err != nil {
		resolved.Failed = true
		resolved.Text = answerUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			resolved.Text = answerTimedOut
		}
	}
	if !c.replaceLocked(pendingID, KindAnswerPending, resolved) {
		c.appendLocked(resolved)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.WarnTag("CHAT", "ask failed: %v", err)
		eventbus.Publish(eventbus.EventChatError, err.Error())
		c.publishChanged()
		return "", err
	}
	c.logger.InfoChat("answered: %s", truncateText(answer, 80))
	eventbus.Publish(eventbus.EventChatAnswered, answer)
	c.publishChanged()
	return answer, nil
}

func (c *Conversation) askWithRecovery(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	docID := c.docID
	c.mu.Unlock()

	answer, err := c.api.Ask(ctx, question, docID)
	if err == nil {
		return answer, nil
	}
	if !backend.IsNoSession(err) || c.recoverer == nil {
		return "", err
	}

	sess, rerr := c.recoverer.Recover(ctx, docID)
	if rerr != nil {
		c.logger.WarnTag("RECOVER", "recovery failed for doc_id=%s: %v", docID, rerr)
		return "", err
	}

	c.mu.Lock()
	c.docID = sess.DocID
	if sess.Summary != "" {
		c.summary = sess.Summary
	}
	c.mu.Unlock()

	// One retry with the recovered session. If it still fails the error
	// surfaces; there is no second recovery.
	return c.api.Ask(ctx, question, sess.DocID)
}

// truncateText shortens log previews on rune boundaries; answers are
// routinely multibyte text.
func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
