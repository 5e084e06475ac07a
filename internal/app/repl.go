package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"docuvoice-client-go/internal/domain/capture"
)

const replHelp = `commands:
  scan <file>        upload an image and start a session
  ask <question>     ask about the current document
  record             start voice capture
  stop               stop capture, transcribe and ask
  cancel             discard the current recording
  history            reload and print the conversation
  summary            replay the document summary
  recent             list recent documents
  delete <doc_id>    delete a recent document
  feedback <g|b>     rate the summary (good/bad)
  help               show this help
  quit               exit`

// REPL is the line-oriented front end used by the CLI binary. Reader
// and writer are injected so tests can drive it.
type REPL struct {
	app *App
	in  io.Reader
	out io.Writer
}

func NewREPL(app *App, in io.Reader, out io.Writer) *REPL {
	return &REPL{app: app, in: in, out: out}
}

func (r *REPL) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// Run processes commands until EOF, "quit", or context cancellation.
func (r *REPL) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	r.printf("docuvoice client ready. Type 'help' for commands.")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg := splitCommand(line)
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		r.dispatch(ctx, cmd, arg)
	}
	return scanner.Err()
}

func splitCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

func (r *REPL) dispatch(ctx context.Context, cmd, arg string) {
	switch cmd {
	case "help":
		r.printf("%s", replHelp)
	case "scan":
		r.cmdScan(ctx, arg)
	case "ask":
		r.cmdAsk(ctx, arg)
	case "record":
		r.cmdRecord(ctx)
	case "stop":
		r.cmdStop(ctx)
	case "cancel":
		r.app.Capture.Discard()
		r.printf("recording discarded")
	case "history":
		r.cmdHistory(ctx)
	case "summary":
		r.cmdSummary(ctx)
	case "recent":
		r.cmdRecent(ctx)
	case "delete":
		r.cmdDelete(ctx, arg)
	case "feedback":
		r.cmdFeedback(ctx, arg)
	default:
		r.printf("unknown command %q, try 'help'", cmd)
	}
}

func (r *REPL) cmdScan(ctx context.Context, path string) {
	if path == "" {
		r.printf("usage: scan <file>")
		return
	}
	sess, err := r.app.ScanFile(ctx, path)
	if err != nil {
		r.printf("scan failed: %v", err)
		return
	}
	r.printf("session %s started", sess.DocID)
	if sess.Summary != "" {
		r.printf("summary: %s", sess.Summary)
	}
}

func (r *REPL) cmdAsk(ctx context.Context, question string) {
	if question == "" {
		r.printf("usage: ask <question>")
		return
	}
	answer, err := r.app.Ask(ctx, question)
	if err != nil {
		r.printf("ask failed: %v", err)
		return
	}
	r.printf("answer: %s", answer)
}

func (r *REPL) cmdRecord(ctx context.Context) {
	if err := r.app.StartRecording(ctx); err != nil {
		r.printf("recording failed: %v", err)
		return
	}
	r.printf("recording... type 'stop' to ask, 'cancel' to discard")
}

func (r *REPL) cmdStop(ctx context.Context) {
	question, answer, err := r.app.AskByVoice(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrNoSpeech) {
			r.printf("nothing recognized, try again")
			return
		}
		r.printf("voice ask failed: %v", err)
		return
	}
	r.printf("you asked: %s", question)
	r.printf("answer: %s", answer)
}

func (r *REPL) cmdHistory(ctx context.Context) {
	r.app.Conversation.LoadHistory(ctx)
	msgs := r.app.Conversation.Messages()
	if len(msgs) == 0 {
		r.printf("no conversation yet")
		return
	}
	for _, m := range msgs {
		text := m.Text
		if m.Pending() {
			text = "..."
		}
		r.printf("%s: %s", m.Kind, text)
	}
}

func (r *REPL) cmdSummary(ctx context.Context) {
	summary := r.app.Conversation.Summary()
	if summary == "" {
		r.printf("no document scanned yet")
		return
	}
	r.printf("summary: %s", summary)
	if err := r.app.Playback.Speak(ctx, -1, summary); err != nil {
		r.printf("playback failed: %v", err)
	}
}

func (r *REPL) cmdRecent(ctx context.Context) {
	docs, err := r.app.Recent.List(ctx, false)
	if err != nil {
		r.printf("recent docs failed: %v", err)
		return
	}
	if len(docs) == 0 {
		r.printf("no recent documents")
		return
	}
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = "(untitled)"
		}
		r.printf("%s  %s", d.DocID, title)
	}
}

func (r *REPL) cmdDelete(ctx context.Context, docID string) {
	if docID == "" {
		r.printf("usage: delete <doc_id>")
		return
	}
	path := ""
	if docs, err := r.app.Recent.List(ctx, false); err == nil {
		for _, d := range docs {
			if d.DocID == docID {
				path = d.Path
				break
			}
		}
	}
	removed, err := r.app.Recent.Delete(ctx, docID, path)
	if err != nil {
		r.printf("delete failed: %v", err)
		return
	}
	if removed {
		r.printf("deleted %s", docID)
	} else {
		r.printf("nothing to delete for %s", docID)
	}
}

func (r *REPL) cmdFeedback(ctx context.Context, arg string) {
	docID := r.app.Conversation.DocID()
	if docID == "" {
		r.printf("no document scanned yet")
		return
	}
	rating := normalizeRating(arg)
	if rating == "" {
		r.printf("usage: feedback <good|bad>")
		return
	}
	if r.app.Feedback.Given(docID) {
		r.printf("feedback already recorded for %s", docID)
		return
	}
	if err := r.app.Feedback.Submit(ctx, docID, rating, r.app.Conversation.Summary()); err != nil {
		r.printf("feedback failed: %v", err)
		return
	}
	r.printf("thanks for the feedback")
}

func normalizeRating(arg string) string {
	switch strings.ToLower(arg) {
	case "g", "good", "up", "1":
		return "good"
	case "b", "bad", "down", "0":
		return "bad"
	}
	return ""
}
