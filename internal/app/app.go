// Package app assembles the domain services into the interactive
// document voice client.
package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"docuvoice-client-go/internal/backend"
	"docuvoice-client-go/internal/domain/capture"
	"docuvoice-client-go/internal/domain/conversation"
	"docuvoice-client-go/internal/domain/feedback"
	"docuvoice-client-go/internal/domain/image"
	"docuvoice-client-go/internal/domain/playback"
	"docuvoice-client-go/internal/domain/recent"
	"docuvoice-client-go/internal/domain/session"
	platformerrors "docuvoice-client-go/internal/platform/errors"
	"docuvoice-client-go/internal/platform/logging"
	"docuvoice-client-go/internal/platform/storage"
)

// App owns the client-side services for one running session of the
// document voice assistant.
type App struct {
	Logger       *logging.Logger
	Store        *storage.Store
	Client       *backend.Client
	Uploader     *session.Uploader
	Conversation *conversation.Conversation
	Playback     *playback.Controller
	Capture      *capture.Controller
	Feedback     *feedback.Service
	Recent       *recent.Service
}

var imageMIMETypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ScanFile uploads an image file as a new document session, seeds the
// conversation with the returned summary and auto-plays it.
func (a *App) ScanFile(ctx context.Context, path string) (*backend.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindSession, "app.scan", "read image file", err)
	}

	mimeType := imageMIMETypes[strings.ToLower(filepath.Ext(path))]
	sess, err := a.Uploader.Start(ctx, image.CapturedImage{
		Data:     data,
		MIMEType: mimeType,
		Source:   path,
	})
	if err != nil {
		return nil, err
	}

	a.Conversation.Begin(sess)
	if err := a.Playback.AutoPlaySummary(ctx, sess.Summary); err != nil {
		a.Logger.WarnTag("TTS", "summary auto-play failed: %v", err)
	}
	return sess, nil
}

// Ask sends a typed question and speaks the answer.
func (a *App) Ask(ctx context.Context, question string) (string, error) {
	answer, err := a.Conversation.Ask(ctx, question)
	if err != nil {
		return "", err
	}
	a.speakLast(ctx, answer)
	return answer, nil
}

// AskByVoice finishes the active recording, transcribes it and asks the
// resulting question. A question placeholder goes into the transcript
// before transcription starts and is resolved, in place, once the
// transcript text (or a failure) is known.
func (a *App) AskByVoice(ctx context.Context) (question, answer string, err error) {
	handle, err := a.Conversation.BeginPendingQuestion()
	if err != nil {
		a.Capture.Discard()
		return "", "", err
	}

	question, err = a.Capture.StopAndTranscribe(ctx)
	if err != nil {
		msg := "(voice input failed)"
		if errors.Is(err, capture.ErrNoSpeech) {
			msg = "(nothing recognized)"
		}
		a.Conversation.FailQuestion(handle, msg)
		return "", "", err
	}

	answer, err = a.Conversation.ResolveQuestion(ctx, handle, question)
	if err != nil {
		return question, "", err
	}
	a.speakLast(ctx, answer)
	return question, answer, nil
}

// speakLast plays the answer tagged with the id of the transcript entry
// that holds it, so playback state can point back at the message.
func (a *App) speakLast(ctx context.Context, answer string) {
	msgs := a.Conversation.Messages()
	messageID := -1
	if len(msgs) > 0 {
		messageID = msgs[len(msgs)-1].ID
	}
	if err := a.Playback.Speak(ctx, messageID, answer); err != nil {
		a.Logger.WarnTag("TTS", "answer playback failed: %v", err)
	}
}

// StartRecording begins voice capture, stopping any playback first so
// the microphone does not pick up the speaker.
func (a *App) StartRecording(ctx context.Context) error {
	a.Playback.Stop()
	return a.Capture.Start(ctx)
}

// Shutdown force-stops audio in both directions and closes resources.
func (a *App) Shutdown() {
	a.Capture.Close()
	a.Playback.Stop()
	if a.Logger != nil {
		a.Logger.Close()
	}
}
