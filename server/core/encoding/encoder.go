package encoding

import "context"

// Encoder is the narrow surface the merge pipeline needs from an external
// media encoder.
type Encoder interface {
	// StreamCopyConcat joins the files listed in a concat manifest into output
	// without re-encoding. It fails when the inputs have incompatible codecs
	// or parameters.
	StreamCopyConcat(ctx context.Context, manifest, output string) error

	// Reencode runs a full decode/encode pass described by job, either over a
	// concat manifest or over a single input file.
	Reencode(ctx context.Context, job ReencodeJob) error
}

// ReencodeJob describes a re-encoding invocation
type ReencodeJob struct {
	// Input is a media file, or a concat manifest when InputIsManifest is set
	Input           string
	InputIsManifest bool
	Output          string
	Profile         Profile

	// VideoFilter and AudioFilter are passed as -filter:v and -filter:a
	VideoFilter string
	AudioFilter string
	// DropAudio strips every audio stream from the output
	DropAudio bool
}

// Profile is the uniform output format of a re-encode
type Profile struct {
	VideoCodec   string
	Preset       string
	CRF          int
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
}

// DefaultProfile returns H.264 (veryfast, CRF 23, yuv420p) with 128k AAC audio
func DefaultProfile() Profile {
	return Profile{
		VideoCodec:   "libx264",
		Preset:       "veryfast",
		CRF:          23,
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}
