// Package playback owns voice output: at most one utterance plays at a
// time, starting a new one stops the old one, and finished playbacks
// release their resources exactly once.
package playback

import (
	"bytes"
	"context"
	"os/exec"

	platformerrors "docuvoice-client-go/internal/platform/errors"
)

// Output plays one complete audio clip, blocking until it finishes or
// ctx is cancelled. Implementations must be safe for sequential reuse.
type Output interface {
	Play(ctx context.Context, audio []byte) error
}

// FFPlayOutput shells out to ffplay, feeding the clip over stdin. It is
// the default Output on desktop hosts; anything with an ffmpeg install
// can use it.
type FFPlayOutput struct {
	Binary string
}

func NewFFPlayOutput(binary string) *FFPlayOutput {
	if binary == "" {
		binary = "ffplay"
	}
	return &FFPlayOutput{Binary: binary}
}

func (o *FFPlayOutput) Play(ctx context.Context, audio []byte) error {
	cmd := exec.CommandContext(ctx, o.Binary,
		"-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "pipe:0")
	cmd.Stdin = bytes.NewReader(audio)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Cancellation kills the process; that is a stop, not a failure.
			return nil
		}
		return platformerrors.Wrap(platformerrors.KindPlayback, "playback.output", "ffplay failed", err)
	}
	return nil
}
