package merging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/legendsaurav/scramer/server/core/segments"
)

// BuildManifest renders an ffmpeg concat demuxer list. Paths are single
// quoted; embedded quotes are closed, escaped and reopened ('\'').
func BuildManifest(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// writeManifest replaces dir/concat.txt with the list of paths
func writeManifest(dir string, paths []string) (string, error) {
	target := filepath.Join(dir, segments.ManifestName)
	tmp := filepath.Join(dir, "."+uuid.New().String()+".manifest")

	if err := os.WriteFile(tmp, []byte(BuildManifest(paths)), 0644); err != nil {
		os.Remove(tmp)
		return "", segments.NewStorageFailure("write manifest", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", segments.NewStorageFailure("rename manifest", target, err)
	}
	return target, nil
}

// tempOutputPath returns a hidden sibling of dir/name that keeps the
// extension, so the encoder still picks the right muxer.
func tempOutputPath(dir, name string) string {
	return filepath.Join(dir, "."+uuid.New().String()+"."+name)
}
