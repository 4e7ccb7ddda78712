package streamengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Transcoder runs one file through ffmpeg and returns its stdout as a
// stream, muxed to a container ffmpeg can write incrementally to a pipe.
type Transcoder interface {
	CreateStream(ctx context.Context, path, targetFormat string, bitRateKbps int) (io.ReadCloser, error)
}

// FFmpegTranscoder shells out to ffmpeg per request. Codec/container choice
// mirrors internal/services/hls/generator.go's codecArgs, generalized from
// fMP4-HLS-segment output to a single piped container per format.
type FFmpegTranscoder struct {
	FFmpegPath string
}

func NewFFmpegTranscoder(ffmpegPath string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{FFmpegPath: ffmpegPath}
}

func codecArgs(format string, bitRateKbps int) (codecArgs []string, muxer string) {
	switch format {
	case "mp3":
		if bitRateKbps <= 0 {
			bitRateKbps = 320
		}
		return []string{"-c:a", "libmp3lame", "-b:a", fmt.Sprintf("%dk", bitRateKbps)}, "mp3"
	case "aac", "m4a":
		if bitRateKbps <= 0 {
			bitRateKbps = 256
		}
		return []string{"-c:a", "aac", "-b:a", fmt.Sprintf("%dk", bitRateKbps)}, "adts"
	case "opus":
		if bitRateKbps <= 0 {
			bitRateKbps = 192
		}
		return []string{"-c:a", "libopus", "-b:a", fmt.Sprintf("%dk", bitRateKbps)}, "ogg"
	case "ogg", "oga":
		if bitRateKbps <= 0 {
			bitRateKbps = 192
		}
		return []string{"-c:a", "libvorbis", "-b:a", fmt.Sprintf("%dk", bitRateKbps)}, "ogg"
	case "flac":
		return []string{"-c:a", "flac"}, "flac"
	case "wav":
		return []string{"-c:a", "pcm_s16le"}, "wav"
	default:
		return []string{"-c:a", "aac", "-b:a", "256k"}, "adts"
	}
}

// CreateStream pipes ffmpeg's stdout directly; the caller must Close the
// returned ReadCloser (which waits on the process) even on a short read.
func (t *FFmpegTranscoder) CreateStream(ctx context.Context, path, targetFormat string, bitRateKbps int) (io.ReadCloser, error) {
	args, muxer := codecArgs(targetFormat, bitRateKbps)
	full := append([]string{"-i", path, "-vn"}, args...)
	full = append(full, "-f", muxer, "pipe:1")

	cmd := exec.CommandContext(ctx, t.FFmpegPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &cmdStream{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

type cmdStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

func (s *cmdStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *cmdStream) Close() error {
	s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w (stderr: %s)", err, s.stderr.String())
	}
	return nil
}

func readRawFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raw file: %w", err)
	}
	return data, nil
}

// transcodeAll runs a transcode to completion and collects the whole
// output, for the buffered (non-streaming) GetStreamData path.
func (e *Engine) transcodeAll(ctx context.Context, info *Info, decision Decision) ([]byte, error) {
	if e.transcoder == nil {
		return nil, fmt.Errorf("transcoder not configured")
	}
	stream, err := e.transcoder.CreateStream(ctx, info.Path, decision.TargetFormat, decision.TargetBitRateKbps)
	if err != nil {
		return nil, fmt.Errorf("create transcode stream: %w", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read transcode stream: %w", err)
	}
	return data, nil
}

// TranscodeStream wraps a live transcode so the HTTP handler can start
// writing bytes as they arrive, while still populating the cache once the
// whole file has been produced — mirrors original_source's TranscodeStream
// (poll_next collects into a buffer; its Drop impl spawns the cache write).
// Go has no destructor to hook this on, so Close is the explicit
// equivalent; callers must call it exactly once when done.
type TranscodeStream struct {
	inner       io.ReadCloser
	collected   bytes.Buffer
	cache       Cache
	cacheKey    string
	ext         string
	cacheEnable bool
	log         *slog.Logger
}

func (e *Engine) CreateTranscodeStream(ctx context.Context, info *Info, decision Decision) (*TranscodeStream, error) {
	if e.transcoder == nil {
		return nil, fmt.Errorf("transcoder not configured")
	}
	stream, err := e.transcoder.CreateStream(ctx, info.Path, decision.TargetFormat, decision.TargetBitRateKbps)
	if err != nil {
		return nil, fmt.Errorf("create transcode stream: %w", err)
	}
	return &TranscodeStream{
		inner:       stream,
		cache:       e.cache,
		cacheKey:    decision.CacheKey,
		ext:         "." + decision.TargetFormat,
		cacheEnable: e.cfg.CacheEnabled,
		log:         e.log,
	}, nil
}

func (s *TranscodeStream) Read(p []byte) (int, error) {
	n, err := s.inner.Read(p)
	if n > 0 {
		s.collected.Write(p[:n])
	}
	return n, err
}

// Close waits for the underlying transcode to finish and, on a clean
// finish, persists the collected output into the cache.
func (s *TranscodeStream) Close() error {
	err := s.inner.Close()
	if err == nil && s.cacheEnable && s.cache != nil && s.collected.Len() > 0 {
		if putErr := s.cache.Put(s.cacheKey, s.collected.Bytes(), s.ext); putErr != nil {
			s.log.Warn("failed to cache transcoded stream", "key", s.cacheKey, "error", putErr)
		}
	}
	return err
}
