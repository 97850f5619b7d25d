package image_list

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrTooLarge = errors.New("remote image too large")
	ErrBadURL   = errors.New("invalid image url")
)

var contentTypeExt = map[string]string{
	"image/tiff": ".tif",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Downloader fetches remote images with a size cap and a bound on how many
// downloads run at once.
type Downloader struct {
	client   *http.Client
	maxBytes int64
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

func NewDownloader(client *http.Client, maxBytes int64, concurrency int64, logger *zap.Logger) *Downloader {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Downloader{
		client:   client,
		maxBytes: maxBytes,
		sem:      semaphore.NewWeighted(concurrency),
		logger:   logger,
	}
}

func ParseSourceURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrBadURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrBadURL)
	}
	return u, nil
}

func (d *Downloader) open(ctx context.Context, raw string) (*http.Response, *url.URL, error) {
	u, err := ParseSourceURL(raw)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", u.Redacted(), err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("failed to fetch %s: HTTP %d", u.Redacted(), resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}
	return resp, u, nil
}

// Fetch reads a remote image fully into memory.
func (d *Downloader) Fetch(ctx context.Context, raw string) ([]byte, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	resp, _, err := d.open(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, d.maxBytes)
	}
	return data, nil
}

// Download streams a remote image into a temp file inside dir and returns its
// path with the file name the image should be known by.
func (d *Downloader) Download(ctx context.Context, raw, dir string) (string, string, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return "", "", err
	}
	defer d.sem.Release(1)

	resp, u, err := d.open(ctx, raw)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	filename := remoteFilename(u, resp.Header.Get("Content-Type"))
	if !extensions[strings.ToLower(filepath.Ext(filename))] {
		return "", "", fmt.Errorf("unsupported image format: %s", filename)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, d.maxBytes+1))
	closeErr := tmp.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("failed to download: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("failed to write download: %w", closeErr)
	case n > d.maxBytes:
		err = fmt.Errorf("%w: over %d bytes", ErrTooLarge, d.maxBytes)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}

	d.logger.Info("Downloaded image", zap.String("url", u.Redacted()), zap.Int64("bytes", n))
	return tmp.Name(), filename, nil
}

// remoteFilename takes the last path segment that looks like an image,
// falling back to the content type. Renditions such as
// ".../image.tif/jcr:content/renditions/x.png" resolve to the final segment.
func remoteFilename(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if extensions[strings.ToLower(filepath.Ext(name))] {
		return name
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if ext, ok := contentTypeExt[mediaType]; ok {
		if name == "" || name == "/" || name == "." {
			name = "image"
		}
		return strings.TrimSuffix(name, filepath.Ext(name)) + ext
	}
	return name
}
