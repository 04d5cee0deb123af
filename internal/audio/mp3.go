package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edumint/edumint-backend/internal/logger"
)

// Encoder turns a WAV payload into MP3 via the system ffmpeg binary. It is
// synchronous and should be called from the generation pipeline, not request
// handlers.
type Encoder interface {
	AssertReady(ctx context.Context) error

	// EncodeMP3 converts WAV bytes to MP3. On any conversion failure it
	// returns the original WAV bytes with ok=false; the caller ships WAV
	// instead. It never returns an empty payload.
	EncodeMP3(ctx context.Context, wav []byte) (data []byte, ok bool)
}

type EncoderOptions struct {
	FFmpegPath string
	WorkDir    string
	Bitrate    string // e.g. "128k"
	Timeout    time.Duration
}

type encoder struct {
	log  *logger.Logger
	opts EncoderOptions
}

func NewEncoder(opts EncoderOptions, log *logger.Logger) Encoder {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.Bitrate == "" {
		opts.Bitrate = "128k"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &encoder{log: log.With("service", "AudioEncoder"), opts: opts}
}

func (e *encoder) AssertReady(ctx context.Context) error {
	if err := os.MkdirAll(e.opts.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir %s: %w", e.opts.WorkDir, err)
	}
	cmd := exec.CommandContext(ctx, e.opts.FFmpegPath, "-version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg not available at %q: %w", e.opts.FFmpegPath, err)
	}
	e.log.Info("ffmpeg ready", "version", firstLine(string(out)))
	return nil
}

func (e *encoder) EncodeMP3(ctx context.Context, wav []byte) ([]byte, bool) {
	mp3, err := e.encode(ctx, wav)
	if err != nil {
		e.log.Warn("mp3 conversion failed, shipping wav instead", "error", err)
		return wav, false
	}
	return mp3, true
}

func (e *encoder) encode(ctx context.Context, wav []byte) ([]byte, error) {
	if err := os.MkdirAll(e.opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	id := uuid.NewString()
	inPath := filepath.Join(e.opts.WorkDir, id+".wav")
	outPath := filepath.Join(e.opts.WorkDir, id+".mp3")
	defer func() {
		_ = os.Remove(inPath)
		_ = os.Remove(outPath)
	}()

	if err := os.WriteFile(inPath, wav, 0o644); err != nil {
		return nil, fmt.Errorf("write temp wav: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	// -ac 2 upmixes the mono TTS stream for player compatibility.
	cmd := exec.CommandContext(cctx, e.opts.FFmpegPath,
		"-y",
		"-i", inPath,
		"-codec:a", "libmp3lame",
		"-b:a", e.opts.Bitrate,
		"-ac", "2",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, tail(string(out), 400))
	}

	mp3, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read mp3 output: %w", err)
	}
	if len(mp3) == 0 {
		return nil, fmt.Errorf("ffmpeg produced empty output")
	}
	return mp3, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
