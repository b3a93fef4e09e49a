package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeComponentStripsTraversal(t *testing.T) {
	got := SanitizeComponent("../../etc/passwd")
	require.False(t, strings.Contains(got, ".."))
	require.False(t, strings.Contains(got, "/"))
}

func TestSanitizeComponentStripsControlChars(t *testing.T) {
	got := SanitizeComponent("alice\x00\x1b - Hello")
	require.Equal(t, "alice - Hello", got)
}

func TestSanitizeComponentLengthLimited(t *testing.T) {
	got := SanitizeComponent(strings.Repeat("a", 500))
	require.LessOrEqual(t, len(got), maxPathComponentBytes)
}

func TestSanitizeComponentNeverEmpty(t *testing.T) {
	require.Equal(t, "unnamed", SanitizeComponent(""))
	require.Equal(t, "unnamed", SanitizeComponent("../.."))
}

func TestNewTaskIDUnique(t *testing.T) {
	a, b := NewTaskID(), NewTaskID()
	require.NotEqual(t, a, b)
	require.Len(t, a, 36)
}

func TestJoinSafe(t *testing.T) {
	got := JoinSafe("/rec", "alice", "Season 2025-02", "../../etc")
	require.Contains(t, got, "/rec/alice/Season 2025-02")
	require.NotContains(t, got, "..")
}
