package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/angas/spotprice/hours"
	"github.com/angas/spotprice/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeOfMissingFileIsInfinite(t *testing.T) {
	c := NewTimeSeriesCache(filepath.Join(t.TempDir(), "prices.json"))
	assert.Equal(t, Infinite, c.Age())
	assert.False(t, c.file.Fresh(100*365*24*time.Hour))
}

func TestAgeFollowsModificationTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	mtime := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	c := NewTimeSeriesCache(path)
	c.file.now = func() time.Time { return mtime.Add(7 * time.Hour) }
	assert.Equal(t, 7*time.Hour, c.Age())
	assert.True(t, c.file.Fresh(8*time.Hour))
	assert.False(t, c.file.Fresh(6*time.Hour))
}

func TestWriteReadRoundTrip(t *testing.T) {
	c := NewTimeSeriesCache(filepath.Join(t.TempDir(), "sub", "prices.json"))
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, hours.Location())
	series := types.PriceSeries{
		{Time: start, Price: 10.5},
		{Time: start.Add(time.Hour), Price: 11.25},
	}

	require.NoError(t, c.Write(series))

	raw, err := os.ReadFile(c.file.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timezone":"UTC"`)
	assert.Contains(t, string(raw), "2025-02-28T23:00:00Z")

	got, ok := c.Read()
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, hours.Location(), got[0].Time.Location())
	assert.True(t, got[0].Time.Equal(start))
	assert.Equal(t, 11.25, got[1].Price)
}

func TestReadMissing(t *testing.T) {
	c := NewTimeSeriesCache(filepath.Join(t.TempDir(), "prices.json"))
	_, ok := c.Read()
	assert.False(t, ok)
}

func TestReadCorruptIsMiss(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "garbage", content: "not json at all"},
		{name: "truncated", content: `{"timezone":"UTC","prices":[{"time":"2025-`},
		{name: "wrong type", content: `{"prices":"nope"}`},
		{name: "empty series", content: `{"timezone":"UTC","prices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prices.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, ok := NewTimeSeriesCache(path).Read()
			assert.False(t, ok)
		})
	}
}

func TestWriteFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	c := NewTimeSeriesCache(filepath.Join(blocker, "prices.json"))
	assert.Error(t, c.Write(types.PriceSeries{{Time: time.Now(), Price: 1}}))
	_, ok := c.Read()
	assert.False(t, ok)
}
