package encoding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/xfrr/goffmpeg/transcoder"
)

// MediaInfo is the subset of probe output the merge pipeline inspects
type MediaInfo struct {
	Format   string
	Duration float64 // seconds
	HasVideo bool
	HasAudio bool
	Width    int
	Height   int
}

// Prober inspects a media file on disk
type Prober interface {
	// Probe returns stream information for the file at path
	Probe(path string) (*MediaInfo, error)
}

// FFprobeProber implements Prober with goffmpeg, which shells out to ffprobe
type FFprobeProber struct {
	logger logging.Logger
}

// NewFFprobeProber creates a new goffmpeg-based prober
func NewFFprobeProber(logger logging.Logger) *FFprobeProber {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &FFprobeProber{
		logger: logger,
	}
}

// Probe reads container and stream metadata of path
func (p *FFprobeProber) Probe(path string) (*MediaInfo, error) {
	if path == "" {
		return nil, errors.New("probe path cannot be empty")
	}

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(path, ""); err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	metadata := trans.MediaFile().Metadata()

	info := &MediaInfo{
		Format: metadata.Format.FormatName,
	}

	if metadata.Format.Duration != "" {
		duration, err := strconv.ParseFloat(strings.TrimSpace(metadata.Format.Duration), 64)
		if err == nil {
			info.Duration = duration
		}
	}

	for _, stream := range metadata.Streams {
		switch stream.CodecType {
		case "video":
			if !info.HasVideo {
				info.Width = stream.Width
				info.Height = stream.Height
			}
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}

	p.logger.Debug("Probed media file", "path", path, "format", info.Format,
		"duration", info.Duration, "video", info.HasVideo, "audio", info.HasAudio)

	return info, nil
}
