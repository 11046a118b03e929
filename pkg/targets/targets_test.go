package targets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
}

func TestFilter_Match(t *testing.T) {
	f, err := NewFilter(nil, DefaultExcludes)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"a.jpg", true},
		{"a.JPG", true},
		{"day1/car_01.Nef", false},
		{"day1/car_01.NEF", true},
		{"day1/deep/x.rw2", true},
		{"day1/x.tiff", true},
		{"notes.txt", false},
		{"x.jpg.xmp", false},
		{"Catalog Previews.lrdata/1/ab.jpg", false},
		{"cat/Helper.lrdata/x.png", false},
		{"old.lrdata-backup/x.png", false},
		{"cat/Previews.LRDATA/x.jpg", true},
		{"lrdata/x.jpg", true},
		{".hidden/x.jpg", true},
		{".hidden/.x.jpg", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.path))
		})
	}
}

func TestFilter_SupportedIgnoresCase(t *testing.T) {
	f, err := NewFilter(nil, DefaultExcludes)
	require.NoError(t, err)

	assert.True(t, f.Supported("car_01.Nef"))
	assert.True(t, f.Supported("x.lrdata.jpg"))
	assert.False(t, f.Supported("notes.TXT"))
}

func TestFilter_CustomExtensions(t *testing.T) {
	f, err := NewFilter([]string{"heic", ".JXL", " "}, nil)
	require.NoError(t, err)

	assert.True(t, f.Supported("a.heic"))
	assert.True(t, f.Supported("a.jxl"))
	assert.False(t, f.Supported("a.jpg"))
}

func TestFilter_InvalidExclude(t *testing.T) {
	_, err := NewFilter(nil, []string{"[unclosed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	var pe *PatternError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "[unclosed", pe.Pattern)
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	day1 := filepath.Join(root, "day1")
	day2 := filepath.Join(root, "day2")
	touch(t, day1,
		"IMG_001.NEF", "IMG_002.nef", "IMG_002.xmp",
		"sub/IMG_003.jpg",
		"Previews.lrdata/0/A.jpg",
	)
	touch(t, day2, "a.CR2", "b.dng", "readme.md")
	touch(t, root, "single.arw", "notes.txt")

	s, err := NewScanner(DefaultConfig(), nil)
	require.NoError(t, err)

	sum, err := s.Scan(context.Background(), []string{
		day1,
		day2,
		filepath.Join(root, "single.arw"),
		filepath.Join(root, "notes.txt"),
	})
	require.NoError(t, err)

	require.Len(t, sum.Targets, 4)
	assert.Equal(t, Target{Path: day1, IsDir: true, Images: 3}, sum.Targets[0])
	assert.Equal(t, Target{Path: day2, IsDir: true, Images: 2}, sum.Targets[1])
	assert.Equal(t, 1, sum.Targets[2].Images)
	assert.False(t, sum.Targets[2].IsDir)
	assert.True(t, sum.Targets[3].Unsupported)
	assert.Equal(t, 0, sum.Targets[3].Images)
	assert.Equal(t, 6, sum.Images)
}

func TestScan_MatchesTaggerDiscovery(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"a.jpg", "b.JPG", "c.Jpg",
		".cache/d.nef",
		"Helper.lrdata/e.jpg",
	)
	touch(t, root, "cat.lrdata/f.jpg")

	s, err := NewScanner(DefaultConfig(), nil)
	require.NoError(t, err)

	sum, err := s.Scan(context.Background(), []string{root, filepath.Join(root, "cat.lrdata")})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Targets[0].Images, "mixed-case extensions and .lrdata trees are skipped, hidden folders are not")
	assert.Equal(t, Target{Path: filepath.Join(root, "cat.lrdata"), IsDir: true}, sum.Targets[1])
	assert.Equal(t, 3, sum.Images)
}

func TestScan_MissingTarget(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.jpg")
	missing := filepath.Join(root, "gone")

	s, err := NewScanner(Config{Concurrency: 1}, nil)
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), []string{root, missing})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTargetNotFound)

	var te *TargetError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, missing, te.Target)
}

func TestScan_CancelledContext(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.jpg", "b.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewScanner(Config{}, nil)
	require.NoError(t, err)
	_, err = s.Scan(ctx, []string{root})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_Empty(t *testing.T) {
	s, err := NewScanner(Config{}, nil)
	require.NoError(t, err)

	sum, err := s.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sum.Targets)
	assert.Zero(t, sum.Images)
}
