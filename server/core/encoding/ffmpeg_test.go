package encoding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
)

type recordedCall struct {
	name string
	args []string
}

func recordingRunner(calls *[]recordedCall, result error) CommandRunner {
	return func(ctx context.Context, name string, args ...string) error {
		*calls = append(*calls, recordedCall{name: name, args: append([]string(nil), args...)})
		return result
	}
}

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func hasArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func TestStreamCopyConcat_Args(t *testing.T) {
	var calls []recordedCall
	enc := NewFFmpegEncoder(logging.NopLogger, "/opt/ffmpeg", 0)
	enc.WithCommandRunner(recordingRunner(&calls, nil))

	if err := enc.StreamCopyConcat(context.Background(), "/data/concat.txt", "/data/.tmp.mp4"); err != nil {
		t.Fatalf("StreamCopyConcat failed: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
	call := calls[0]
	if call.name != "/opt/ffmpeg" {
		t.Errorf("Expected configured binary, got %s", call.name)
	}
	joined := strings.Join(call.args, " ")
	if !strings.Contains(joined, "-f concat -safe 0 -i /data/concat.txt") {
		t.Errorf("Missing concat demuxer input: %s", joined)
	}
	if v, _ := argValue(call.args, "-c"); v != "copy" {
		t.Errorf("Expected stream copy, got %s", joined)
	}
	if call.args[len(call.args)-1] != "/data/.tmp.mp4" {
		t.Errorf("Output must be last argument: %s", joined)
	}
}

func TestReencode_ConcatProfile(t *testing.T) {
	var calls []recordedCall
	enc := NewFFmpegEncoder(logging.NopLogger, "", 0)
	enc.WithCommandRunner(recordingRunner(&calls, nil))

	err := enc.Reencode(context.Background(), ReencodeJob{
		Input:           "/data/concat.txt",
		InputIsManifest: true,
		Output:          "/data/out.mp4",
		Profile:         DefaultProfile(),
	})
	if err != nil {
		t.Fatalf("Reencode failed: %v", err)
	}

	args := calls[0].args
	if calls[0].name != "ffmpeg" {
		t.Errorf("Expected default binary ffmpeg, got %s", calls[0].name)
	}
	checks := map[string]string{
		"-c:v":     "libx264",
		"-preset":  "veryfast",
		"-crf":     "23",
		"-pix_fmt": "yuv420p",
		"-c:a":     "aac",
		"-b:a":     "128k",
		"-f":       "concat",
	}
	for flag, want := range checks {
		if got, ok := argValue(args, flag); !ok || got != want {
			t.Errorf("Expected %s %s, got %q (args: %v)", flag, want, got, args)
		}
	}
}

func TestBuildReencodeArgs_Variant(t *testing.T) {
	withAudio := BuildReencodeArgs(ReencodeJob{
		Input:       "/data/final.mp4",
		Output:      "/data/final_2x.mp4",
		VideoFilter: "setpts=PTS/2",
		AudioFilter: "atempo=2",
	})
	if v, _ := argValue(withAudio, "-filter:v"); v != "setpts=PTS/2" {
		t.Errorf("Missing video filter: %v", withAudio)
	}
	if v, _ := argValue(withAudio, "-filter:a"); v != "atempo=2" {
		t.Errorf("Missing audio filter: %v", withAudio)
	}
	if hasArg(withAudio, "-an") {
		t.Errorf("Audio should be kept: %v", withAudio)
	}
	if hasArg(withAudio, "concat") {
		t.Errorf("Single input must not use the concat demuxer: %v", withAudio)
	}

	silent := BuildReencodeArgs(ReencodeJob{
		Input:       "/data/final.mp4",
		Output:      "/data/final_10x.mp4",
		VideoFilter: "setpts=PTS/10",
		AudioFilter: "atempo=10",
		DropAudio:   true,
	})
	if !hasArg(silent, "-an") {
		t.Errorf("Expected -an: %v", silent)
	}
	if hasArg(silent, "-filter:a") || hasArg(silent, "-c:a") {
		t.Errorf("Silent output must not carry audio options: %v", silent)
	}
}

func TestReencode_RequiresPaths(t *testing.T) {
	enc := NewFFmpegEncoder(logging.NopLogger, "", 0)
	enc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		t.Fatal("runner must not be called")
		return nil
	})

	if err := enc.Reencode(context.Background(), ReencodeJob{Output: "x.mp4"}); err == nil {
		t.Fatal("Expected error for missing input")
	}
}

func TestInvoke_FailureIsTyped(t *testing.T) {
	var calls []recordedCall
	enc := NewFFmpegEncoder(logging.NopLogger, "", time.Minute)
	enc.WithCommandRunner(recordingRunner(&calls, errors.New("exit status 1: codec mismatch")))

	err := enc.StreamCopyConcat(context.Background(), "m.txt", "o.mp4")
	if !IsEncodingFailure(err) {
		t.Fatalf("Expected EncodingFailureError, got %v", err)
	}
	if IsEncodingTimeout(err) {
		t.Errorf("Plain failure must not be reported as timeout")
	}
	if !strings.Contains(err.Error(), "codec mismatch") {
		t.Errorf("Expected underlying message, got %v", err)
	}
}

func TestInvoke_TimeoutKillsAndReports(t *testing.T) {
	enc := NewFFmpegEncoder(logging.NopLogger, "", 20*time.Millisecond)
	enc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := enc.Reencode(context.Background(), ReencodeJob{Input: "in.mp4", Output: "out.mp4"})
	if !IsEncodingTimeout(err) {
		t.Fatalf("Expected EncodingTimeoutError, got %v", err)
	}
	if !IsEncodingFailure(err) {
		t.Errorf("Timeout should also count as an encoding failure")
	}
}

func TestInvoke_CallerCancellationIsNotTimeout(t *testing.T) {
	enc := NewFFmpegEncoder(logging.NopLogger, "", time.Hour)
	enc.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := enc.StreamCopyConcat(ctx, "m.txt", "o.mp4")
	if IsEncodingTimeout(err) {
		t.Fatalf("Caller cancellation reported as timeout: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected wrapped context.Canceled, got %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 5}
	b.Write([]byte("abc"))
	b.Write([]byte("defgh"))

	if b.String() != "defgh" {
		t.Errorf("Expected last 5 bytes, got %q", b.String())
	}
}
