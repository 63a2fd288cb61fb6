package segments

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// UnknownComponent replaces an absent project or tool
	UnknownComponent = "unknown"
	// DateLayout is the day-granularity layout used for bucket dates
	DateLayout = "2006-01-02"
)

// Bucket identifies the (project, tool, date) group of segments that is merged as a unit
type Bucket struct {
	Project string `json:"projectId"`
	Tool    string `json:"tool"`
	Date    string `json:"date"`
}

// String returns the bucket as a slash-separated relative path
func (b Bucket) String() string {
	return b.Project + "/" + b.Tool + "/" + b.Date
}

// RelPath returns the bucket directory relative to the storage root
func (b Bucket) RelPath() string {
	return filepath.Join(b.Project, b.Tool, b.Date)
}

// IsComplete reports whether all three components are set
func (b Bucket) IsComplete() bool {
	return b.Project != "" && b.Tool != "" && b.Date != ""
}

// NewBucket builds a sanitized bucket for an upload. Empty components are
// defaulted: unknown project and tool, today's date.
func NewBucket(project, tool, date string, now time.Time) Bucket {
	if strings.TrimSpace(project) == "" {
		project = UnknownComponent
	}
	if strings.TrimSpace(tool) == "" {
		tool = UnknownComponent
	}
	if strings.TrimSpace(date) == "" {
		date = now.Format(DateLayout)
	}

	return Bucket{
		Project: SanitizeComponent(project),
		Tool:    SanitizeComponent(tool),
		Date:    SanitizeDate(date),
	}
}

// LookupBucket sanitizes the components of an existing bucket reference
// without applying defaults, so a merge or listing request can only address
// directories an upload could have created.
func LookupBucket(project, tool, date string) Bucket {
	b := Bucket{}
	if p := strings.TrimSpace(project); p != "" {
		b.Project = SanitizeComponent(p)
	}
	if t := strings.TrimSpace(tool); t != "" {
		b.Tool = SanitizeComponent(t)
	}
	if d := strings.TrimSpace(date); d != "" {
		b.Date = SanitizeDate(d)
	}
	return b
}

// SanitizeComponent replaces every rune outside [A-Za-z0-9_-] with an underscore.
func SanitizeComponent(s string) string {
	return sanitize(s, false)
}

// SanitizeDate is SanitizeComponent that additionally keeps colons, so ISO
// dates and date-times survive unchanged.
func SanitizeDate(s string) string {
	return sanitize(s, true)
}

func sanitize(s string, allowColon bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ':' && allowColon:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NormalizeDiscriminator sanitizes a segment discriminator. An empty value
// becomes the current Unix time in milliseconds. Purely numeric values are
// left-padded with zeros to width so that lexicographic filename order
// matches numeric capture order; leading zeros are not significant, so "1"
// and "001" name the same segment. A numeric value with more than width
// significant digits is rejected. Width 0 disables padding.
func NormalizeDiscriminator(s string, width int, now time.Time) (string, error) {
	s = SanitizeComponent(strings.TrimSpace(s))
	if s == "" {
		return padDigits(formatMillis(now), width), nil
	}
	if width <= 0 || !isDigits(s) {
		return s, nil
	}

	significant := strings.TrimLeft(s, "0")
	if significant == "" {
		significant = "0"
	}
	if len(significant) > width {
		return "", NewInvalidDiscriminatorError(s, width)
	}
	return padDigits(significant, width), nil
}

func padDigits(s string, width int) string {
	if width > 0 && len(s) < width {
		return strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// NormalizeExtension returns a lower-case extension with leading dot built
// from [a-z0-9] only. Anything else yields fallback.
func NormalizeExtension(ext, fallback string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" || len(ext) > 8 {
		return fallback
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return fallback
		}
	}
	return "." + ext
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
