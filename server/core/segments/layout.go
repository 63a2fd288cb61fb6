package segments

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

const (
	// BaseOutputName is the 1x rendition written by a merge
	BaseOutputName = "final.mp4"
	// ManifestName is the regenerable concat list kept next to the segments
	ManifestName = "concat.txt"
	// LockName is the advisory lock file guarding merges of a bucket
	LockName = ".merge.lock"
	// FailedDirName is the directory under the storage root that keeps
	// payloads which could not be stored in their bucket
	FailedDirName = ".failed"
	// BaseLabel is the variant label of the base rendition
	BaseLabel = "1x"
)

var variantOutputPattern = regexp.MustCompile(`^final_(\d+)x\.mp4$`)

// VariantOutputName returns the file name of the rendition at multiplier
func VariantOutputName(multiplier int) string {
	return "final_" + strconv.Itoa(multiplier) + "x.mp4"
}

// VariantLabel returns the label used in output maps for multiplier
func VariantLabel(multiplier int) string {
	return strconv.Itoa(multiplier) + "x"
}

// ClassifyOutput maps a file name in a bucket directory to its variant label.
// Only final.mp4 and final_<N>x.mp4 are recognized.
func ClassifyOutput(name string) (string, bool) {
	if name == BaseOutputName {
		return BaseLabel, true
	}
	if m := variantOutputPattern.FindStringSubmatch(name); m != nil {
		return m[1] + "x", true
	}
	return "", false
}

// IsReservedName reports whether name is owned by the merge pipeline and
// therefore can never be a segment.
func IsReservedName(name string) bool {
	if _, ok := ClassifyOutput(name); ok {
		return true
	}
	return name == ManifestName || strings.HasPrefix(name, ".")
}

// PublicPath returns the URL path under which a file in bucket is served
func PublicPath(prefix string, b Bucket, name string) string {
	return path.Join("/", prefix, b.Project, b.Tool, b.Date, name)
}
