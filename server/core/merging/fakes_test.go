package merging

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/legendsaurav/scramer/server/core/encoding"
)

// fakeEncoder writes deterministic outputs: a concatenation is the bytes of
// the manifest entries in order, a variant is its filter spec followed by
// the input bytes.
type fakeEncoder struct {
	mu sync.Mutex

	copyErr        error
	reencodeErr    error
	variantErrs    map[string]error // keyed by video filter
	writeOnFailure bool

	copyCalls int
	jobs      []encoding.ReencodeJob
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{variantErrs: make(map[string]error)}
}

func (f *fakeEncoder) StreamCopyConcat(ctx context.Context, manifest, output string) error {
	f.mu.Lock()
	f.copyCalls++
	copyErr := f.copyErr
	f.mu.Unlock()

	if copyErr != nil {
		f.writePartial(output)
		return copyErr
	}

	data, err := concatManifest(manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

func (f *fakeEncoder) Reencode(ctx context.Context, job encoding.ReencodeJob) error {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	reencodeErr := f.reencodeErr
	variantErr := f.variantErrs[job.VideoFilter]
	f.mu.Unlock()

	if job.InputIsManifest {
		if reencodeErr != nil {
			f.writePartial(job.Output)
			return reencodeErr
		}
		data, err := concatManifest(job.Input)
		if err != nil {
			return err
		}
		return os.WriteFile(job.Output, data, 0644)
	}

	if variantErr != nil {
		f.writePartial(job.Output)
		return variantErr
	}

	input, err := os.ReadFile(job.Input)
	if err != nil {
		return err
	}
	header := "[" + job.VideoFilter + "|" + job.AudioFilter + "]"
	return os.WriteFile(job.Output, append([]byte(header), input...), 0644)
}

func (f *fakeEncoder) writePartial(path string) {
	if f.writeOnFailure {
		os.WriteFile(path, []byte("partial"), 0644)
	}
}

func (f *fakeEncoder) variantJobs() []encoding.ReencodeJob {
	f.mu.Lock()
	defer f.mu.Unlock()

	var jobs []encoding.ReencodeJob
	for _, job := range f.jobs {
		if !job.InputIsManifest {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// concatManifest reads a concat demuxer list and joins the listed files
func concatManifest(manifest string) ([]byte, error) {
	content, err := os.ReadFile(manifest)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if !strings.HasPrefix(line, "file '") || !strings.HasSuffix(line, "'") {
			return nil, errors.New("malformed manifest line: " + line)
		}
		p := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		p = strings.ReplaceAll(p, `'\''`, "'")

		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

type fakeProber struct {
	info *encoding.MediaInfo
	err  error
}

func (p *fakeProber) Probe(path string) (*encoding.MediaInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	info := *p.info
	return &info, nil
}

func writeSegments(t *testing.T, dir string, files map[string]string) []string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write segment: %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

// hiddenFiles lists dot-files in dir other than the bucket lock
func hiddenFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}

	var hidden []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") && entry.Name() != ".merge.lock" {
			hidden = append(hidden, entry.Name())
		}
	}
	return hidden
}
