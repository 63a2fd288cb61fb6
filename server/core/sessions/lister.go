package sessions

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/segments"
)

// Session is one bucket of a project that has finished renditions
type Session struct {
	Tool  string            `json:"tool"`
	Date  string            `json:"date"`
	Paths map[string]string `json:"paths"`
}

// Lister reports the merged renditions present on disk. It only reads the
// storage tree and never triggers a merge.
type Lister struct {
	logger logging.Logger
	root   string
	prefix string
}

// NewLister creates a lister over the storage root, publishing paths under prefix
func NewLister(logger logging.Logger, root, publicPrefix string) *Lister {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &Lister{
		logger: logger,
		root:   root,
		prefix: publicPrefix,
	}
}

// List returns the buckets of project that hold at least one rendition,
// ordered by tool and then date. An unknown project yields an empty list.
func (l *Lister) List(project string) ([]Session, error) {
	result := []Session{}

	project = segments.SanitizeComponent(strings.TrimSpace(project))
	if project == "" {
		return result, nil
	}

	projectDir := filepath.Join(l.root, project)
	tools, err := readSubdirs(projectDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, segments.NewStorageFailure("list project", projectDir, err)
	}

	for _, tool := range tools {
		toolDir := filepath.Join(projectDir, tool)
		dates, err := readSubdirs(toolDir)
		if err != nil {
			// a directory removed between the two reads simply has no sessions
			l.logger.Warn("Failed to read tool directory", "path", toolDir, "error", err)
			continue
		}

		for _, date := range dates {
			bucket := segments.Bucket{Project: project, Tool: tool, Date: date}
			paths, err := l.outputs(filepath.Join(toolDir, date), bucket)
			if err != nil {
				l.logger.Warn("Failed to read date directory", "bucket", bucket.String(), "error", err)
				continue
			}
			if len(paths) == 0 {
				continue
			}

			result = append(result, Session{Tool: tool, Date: date, Paths: paths})
		}
	}

	l.logger.Debug("Listed sessions", "project", project, "sessions", len(result))
	return result, nil
}

// outputs classifies the regular files of a bucket directory into variant labels
func (l *Lister) outputs(dir string, b segments.Bucket) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]string)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if label, ok := segments.ClassifyOutput(entry.Name()); ok {
			paths[label] = segments.PublicPath(l.prefix, b, entry.Name())
		}
	}
	return paths, nil
}

// readSubdirs returns the names of the visible subdirectories of dir, sorted
func readSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
