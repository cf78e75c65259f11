package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Transcoder converts provider audio (usually ogg/opus) to MP3.
type Transcoder interface {
	ToMP3(ctx context.Context, in []byte) ([]byte, error)
}

// FFmpeg shells out to the ffmpeg binary, streaming through stdin/stdout.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) ToMP3(ctx context.Context, in []byte) ([]byte, error) {
	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn", "-ac", "1", "-ar", "44100", "-b:a", "64k",
		"-f", "mp3", "pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v\n%s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}
