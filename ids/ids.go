// Package ids provides clock access and identifier/filename helpers shared
// across the core (C1 in the component design).
package ids

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock is the indirection point for monotonic/wall-clock time, mirroring the
// teacher's config.Clock so tests can inject a fixed time source.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// NewTaskID returns a fresh UUID string for QueueTask/DependencyTask ids.
func NewTaskID() string {
	return uuid.NewString()
}

// NewShareToken returns an opaque, URL-safe token for ShareToken rows.
func NewShareToken() string {
	return uuid.NewString()
}

const maxPathComponentBytes = 200

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	unsafeFileChar = regexp.MustCompile(`[<>:"/\\|?*]`)
	repeatedSpace  = regexp.MustCompile(`\s+`)
)

// SanitizeComponent makes a single filesystem path component safe: it strips
// control characters, path separators, traversal sequences, and characters
// that are illegal in filenames on common platforms, then length-limits the
// result. It never returns an empty string.
func SanitizeComponent(s string) string {
	s = controlChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "..", "")
	s = repeatedSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	s = strings.TrimPrefix(s, string(filepath.Separator))
	s = unsafeFileChar.ReplaceAllString(s, "_")
	if len(s) > maxPathComponentBytes {
		s = truncateUTF8(s, maxPathComponentBytes)
	}
	if s == "" {
		s = "unnamed"
	}
	return s
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	b := []byte(s)[:limit]
	for len(b) > 0 {
		r := b[len(b)-1]
		// Drop a trailing partial UTF-8 sequence instead of emitting garbage.
		if r&0xC0 != 0x80 {
			break
		}
		b = b[:len(b)-1]
	}
	return string(b)
}

// JoinSafe joins the recordings root with a series of user-derived path
// components, sanitizing each component individually. root is trusted and
// passed through unchanged.
func JoinSafe(root string, components ...string) string {
	parts := make([]string, 0, len(components)+1)
	parts = append(parts, root)
	for _, c := range components {
		parts = append(parts, SanitizeComponent(c))
	}
	return filepath.Join(parts...)
}
