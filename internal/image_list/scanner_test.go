package image_list

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSidecar(t *testing.T, dir string, info ImageInfo) {
	t.Helper()
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, info.ID+".json"), data, 0644))
}

func TestScanLoadsSidecars(t *testing.T) {
	dir := t.TempDir()
	ids := []string{"11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222"}
	names := []string{"sombrero.tif", "andromeda.png"}
	for i, id := range ids {
		ext := filepath.Ext(names[i])
		require.NoError(t, os.WriteFile(filepath.Join(dir, id+ext), []byte("x"), 0644))
		writeSidecar(t, dir, ImageInfo{
			ID:               id,
			OriginalFilename: names[i],
			CurrentFilename:  id + ext,
			Width:            1000,
			Height:           500,
		})
	}

	s := New(dir, zap.NewNop())
	require.NoError(t, s.Scan())

	images := s.GetImages()
	require.Len(t, images, 2)
	assert.Equal(t, "andromeda.png", images[0].OriginalFilename)
	assert.Equal(t, "sombrero.tif", images[1].OriginalFilename)

	img, err := s.GetImageByID(ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1000, img.Width)

	path, err := s.GetImagePathByID(ids[1])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ids[1]+".png"), path)

	_, err = s.GetImageByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanRemovesBrokenSidecars(t *testing.T) {
	dir := t.TempDir()

	// Orphan: the image is gone.
	writeSidecar(t, dir, ImageInfo{ID: "orphan", CurrentFilename: "orphan.tif"})
	// Mismatch: file name and stored id disagree.
	writeSidecar(t, dir, ImageInfo{ID: "other", CurrentFilename: "x.tif"})
	require.NoError(t, os.Rename(filepath.Join(dir, "other.json"), filepath.Join(dir, "renamed.json")))
	// Invalid JSON.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))

	s := New(dir, zap.NewNop())
	require.NoError(t, s.Scan())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, s.GetImages())
}

func TestScanCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "images")
	s := New(dir, zap.NewNop())
	require.NoError(t, s.Scan())
	assert.DirExists(t, dir)
}

func TestImportReturnsExistingBySourceURL(t *testing.T) {
	dir := t.TempDir()
	id := "33333333-3333-3333-3333-333333333333"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".tif"), []byte("x"), 0644))
	writeSidecar(t, dir, ImageInfo{
		ID:               id,
		OriginalFilename: "heic0506a.tif",
		CurrentFilename:  id + ".tif",
		SourceURL:        "https://example.com/heic0506a.tif",
	})

	s := New(dir, zap.NewNop())
	require.NoError(t, s.Scan())

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	d := NewDownloader(srv.Client(), 1<<20, 1, zap.NewNop())
	img, err := s.Import(context.Background(), d, "https://example.com/heic0506a.tif", "")
	require.NoError(t, err)
	assert.Equal(t, id, img.ID)
	assert.Zero(t, hits)
}

func TestImportRejectsUnsupportedFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := New(dir, zap.NewNop())
	d := NewDownloader(srv.Client(), 1<<20, 1, zap.NewNop())

	_, err := s.Import(context.Background(), d, srv.URL+"/readme.txt", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadEnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/tiff")
		w.(http.Flusher).Flush()
		w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(srv.Client(), 1024, 1, zap.NewNop())

	_, _, err := d.Download(context.Background(), srv.URL+"/big.tif", dir)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = d.Fetch(context.Background(), srv.URL+"/big.tif")
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadWritesTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.tif" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngdata"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(srv.Client(), 1024, 2, zap.NewNop())

	tmp, name, err := d.Download(context.Background(), srv.URL+"/render", dir)
	require.NoError(t, err)
	assert.Equal(t, "render.png", name)
	data, err := os.ReadFile(tmp)
	require.NoError(t, err)
	assert.Equal(t, "pngdata", string(data))

	_, _, err = d.Download(context.Background(), srv.URL+"/missing.tif", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestParseSourceURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/a.tif", "file:///etc/passwd", "https://"} {
		_, err := ParseSourceURL(raw)
		assert.ErrorIs(t, err, ErrBadURL, raw)
	}
	_, err := ParseSourceURL(" https://esahubble.org/a.tif ")
	assert.NoError(t, err)
}

func TestRemoteFilename(t *testing.T) {
	tests := []struct {
		raw         string
		contentType string
		want        string
	}{
		{"https://esahubble.org/media/archives/images/original/heic0506a.tif", "", "heic0506a.tif"},
		{"https://a.b/x.tif/jcr:content/renditions/Reduced%20Res%202.png", "image/png", "Reduced Res 2.png"},
		{"https://a.b/download?id=5", "image/tiff; charset=binary", "download.tif"},
		{"https://a.b/blob.bin", "image/jpeg", "blob.jpg"},
		{"https://a.b/readme.txt", "text/plain", "readme.txt"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, remoteFilename(u, tt.contentType), tt.raw)
	}
}

func TestFeatured(t *testing.T) {
	list := FeaturedImages()
	require.Len(t, list, 6)
	assert.Equal(t, list[0].URL, DefaultImageURL())

	f, ok := FeaturedByURL("https://esahubble.org/media/archives/images/original/opo0328a.tif")
	require.True(t, ok)
	assert.Equal(t, "Sombrero Galaxy", f.Title)

	_, ok = FeaturedByURL("https://example.com/nope.tif")
	assert.False(t, ok)

	list[0].Title = "mutated"
	assert.NotEqual(t, "mutated", FeaturedImages()[0].Title)
}
