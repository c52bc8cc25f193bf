package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	cfg, ok := r.Get("toilet")
	require.True(t, ok)
	require.EqualValues(t, 360, cfg.MaxDurationSeconds)
	require.Equal(t, "🚽 Toilet", cfg.Label())

	require.True(t, r.IsValid("smoking"))
	require.False(t, r.IsValid("karaoke"))
	require.Equal(t, []string{"toilet", "smoking", "eating", "phone", "rest"}, r.Codes())
}

func TestCodesReturnsCopy(t *testing.T) {
	r := Default()
	codes := r.Codes()
	codes[0] = "mutated"
	require.Equal(t, "toilet", r.Codes()[0])
}

func TestNewRejectsBadTables(t *testing.T) {
	_, err := New()
	require.Error(t, err)

	_, err = New(ActivityType{Code: " ", MaxDurationSeconds: 10})
	require.ErrorContains(t, err, "empty code")

	_, err = New(
		ActivityType{Code: "a", MaxDurationSeconds: 10},
		ActivityType{Code: "a", MaxDurationSeconds: 20},
	)
	require.ErrorContains(t, err, "duplicate")

	_, err = New(ActivityType{Code: "a"})
	require.ErrorContains(t, err, "max_duration_seconds")
}

func TestFromYAMLKeepsFileOrder(t *testing.T) {
	doc := []byte(`
activity_types:
  - code: smoking
    display_name: Smoke break
    max_duration_seconds: 300
  - code: toilet
    display_name: Toilet
    emoji: "🚽"
    max_duration_seconds: 420
`)
	r, err := FromYAML(doc)
	require.NoError(t, err)
	require.Equal(t, []string{"smoking", "toilet"}, r.Codes())

	cfg, ok := r.Get("toilet")
	require.True(t, ok)
	require.EqualValues(t, 420, cfg.MaxDurationSeconds)
	require.Equal(t, "Smoke break", r.All()[0].Label())
}

func TestLoadFile(t *testing.T) {
	r, err := LoadFile("")
	require.NoError(t, err)
	require.Len(t, r.All(), 5)

	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte("activity_types:\n  - code: rest\n    max_duration_seconds: 60\n"), 0o600))
	r, err = LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"rest"}, r.Codes())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
