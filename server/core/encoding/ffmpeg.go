package encoding

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
)

const (
	// stderrTailBytes bounds how much encoder output is kept for error messages
	stderrTailBytes = 2048
	// killGracePeriod is how long a cancelled encoder may take to exit
	killGracePeriod = 5 * time.Second
)

// CommandRunner executes name with args and returns a non-nil error on a
// non-zero exit. It must stop the process when ctx is done.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// FFmpegEncoder implements Encoder by invoking the ffmpeg binary
type FFmpegEncoder struct {
	logger  logging.Logger
	binary  string
	timeout time.Duration
	run     CommandRunner
}

// NewFFmpegEncoder creates an encoder calling binary (default "ffmpeg").
// Every invocation is bounded by timeout; zero disables the bound.
func NewFFmpegEncoder(logger logging.Logger, binary string, timeout time.Duration) *FFmpegEncoder {
	if logger == nil {
		logger = logging.NopLogger
	}
	if binary == "" {
		binary = "ffmpeg"
	}

	return &FFmpegEncoder{
		logger:  logger,
		binary:  binary,
		timeout: timeout,
		run:     defaultCommandRunner,
	}
}

// WithCommandRunner replaces the subprocess runner, for tests
func (e *FFmpegEncoder) WithCommandRunner(r CommandRunner) {
	if r != nil {
		e.run = r
	}
}

func (e *FFmpegEncoder) StreamCopyConcat(ctx context.Context, manifest, output string) error {
	args := baseArgs()
	args = append(args, concatInputArgs(manifest)...)
	args = append(args, "-c", "copy", "-movflags", "+faststart", output)

	return e.invoke(ctx, "stream copy concat", args)
}

func (e *FFmpegEncoder) Reencode(ctx context.Context, job ReencodeJob) error {
	if job.Input == "" || job.Output == "" {
		return errors.New("reencode job requires input and output")
	}

	op := "reencode"
	if job.InputIsManifest {
		op = "reencode concat"
	}

	return e.invoke(ctx, op, BuildReencodeArgs(job))
}

// BuildReencodeArgs returns the ffmpeg argument list for job
func BuildReencodeArgs(job ReencodeJob) []string {
	profile := job.Profile
	if profile.VideoCodec == "" {
		profile = DefaultProfile()
	}

	args := baseArgs()
	if job.InputIsManifest {
		args = append(args, concatInputArgs(job.Input)...)
	} else {
		args = append(args, "-i", job.Input)
	}

	if job.VideoFilter != "" {
		args = append(args, "-filter:v", job.VideoFilter)
	}

	args = append(args, "-c:v", profile.VideoCodec)
	if profile.Preset != "" {
		args = append(args, "-preset", profile.Preset)
	}
	args = append(args, "-crf", strconv.Itoa(profile.CRF))
	if profile.PixelFormat != "" {
		args = append(args, "-pix_fmt", profile.PixelFormat)
	}

	if job.DropAudio {
		args = append(args, "-an")
	} else {
		if job.AudioFilter != "" {
			args = append(args, "-filter:a", job.AudioFilter)
		}
		args = append(args, "-c:a", profile.AudioCodec)
		if profile.AudioBitrate != "" {
			args = append(args, "-b:a", profile.AudioBitrate)
		}
	}

	return append(args, "-movflags", "+faststart", job.Output)
}

func baseArgs() []string {
	return []string{"-y", "-hide_banner", "-loglevel", "error", "-nostdin"}
}

func concatInputArgs(manifest string) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", manifest}
}

// invoke runs one bounded encoder subprocess
func (e *FFmpegEncoder) invoke(ctx context.Context, op string, args []string) error {
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Debug("Running encoder", "op", op, "binary", e.binary, "args", strings.Join(args, " "))
	started := time.Now()

	err := e.run(runCtx, e.binary, args...)
	elapsed := time.Since(started)

	if err == nil {
		e.logger.Info("Encoder finished", "op", op, "elapsed", elapsed.Round(time.Millisecond).String())
		return nil
	}

	// only our own bound counts as a timeout, not a caller deadline
	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("Encoder timed out", "op", op, "timeout", e.timeout.String())
		return NewEncodingTimeoutError(op, e.timeout)
	}

	e.logger.Warn("Encoder failed", "op", op, "elapsed", elapsed.Round(time.Millisecond).String(), "error", err)
	return NewEncodingFailureError(op, err)
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	cmd.WaitDelay = killGracePeriod

	if err := cmd.Run(); err != nil {
		if out := strings.TrimSpace(stderr.String()); out != "" {
			return fmt.Errorf("%w: %s", err, out)
		}
		return err
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
