package image_list

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cshum/vipsgen/vips"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("image not found")

var extensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

type ImageInfo struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	CurrentFilename  string `json:"current_filename"`
	SourceURL        string `json:"source_url,omitempty"`
	Title            string `json:"title,omitempty"`
	CopyrightText    string `json:"copyright_text,omitempty"`
	CopyrightLink    string `json:"copyright_link,omitempty"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Bytes            int64  `json:"bytes"`
}

// Scanner keeps the catalog of large images under the data directory. Every
// image is stored as {uuid}.{ext} next to a {uuid}.json sidecar.
type Scanner struct {
	dataDir string
	logger  *zap.Logger

	mu     sync.RWMutex
	images []ImageInfo
}

func New(dataDir string, logger *zap.Logger) *Scanner {
	return &Scanner{
		dataDir: dataDir,
		logger:  logger,
		images:  []ImageInfo{},
	}
}

func (s *Scanner) Scan() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.cleanupOrphanedJSON(); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	images := []ImageInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := s.getFilePath(entry.Name())
		ext := strings.ToLower(filepath.Ext(path))
		if !extensions[ext] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("Error getting file info", zap.String("path", path), zap.Error(err))
			continue
		}

		basename := strings.TrimSuffix(filepath.Base(path), ext)
		jsonPath := s.getFilePath(basename + ".json")

		// Files dropped in by hand have no sidecar yet: give them a uuid name.
		if _, err := os.Stat(jsonPath); err != nil {
			imageInfo, err := s.register(path, filepath.Base(path), info)
			if err != nil {
				s.logger.Warn("Failed to register image", zap.String("path", path), zap.Error(err))
				continue
			}
			images = append(images, *imageInfo)
			continue
		}

		imageInfo, err := s.loadMetadata(jsonPath)
		if err != nil {
			s.logger.Warn("Failed to load metadata, skipping", zap.String("json_path", jsonPath), zap.Error(err))
			continue
		}
		images = append(images, *imageInfo)
	}

	sort.Slice(images, func(i, j int) bool { return images[i].OriginalFilename < images[j].OriginalFilename })

	s.mu.Lock()
	s.images = images
	s.mu.Unlock()

	s.logger.Info("Scanned images", zap.String("data_dir", s.dataDir), zap.Int("count", len(images)))
	return nil
}

func (s *Scanner) cleanupOrphanedJSON() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := s.getFilePath(entry.Name())
		if strings.ToLower(filepath.Ext(path)) != ".json" {
			continue
		}

		basename := strings.TrimSuffix(filepath.Base(path), ".json")

		meta, err := s.loadMetadata(path)
		switch {
		case err != nil:
			s.removeJSON(path, "invalid")
		case meta.ID != basename:
			s.logger.Warn("UUID mismatch in JSON",
				zap.String("json_path", path),
				zap.String("filename_uuid", basename),
				zap.String("json_uuid", meta.ID))
			s.removeJSON(path, "mismatched")
		default:
			if _, err := os.Stat(s.getFilePath(meta.CurrentFilename)); err != nil {
				s.removeJSON(path, "orphaned")
			}
		}
	}

	return nil
}

func (s *Scanner) removeJSON(path, reason string) {
	if err := os.Remove(path); err != nil {
		s.logger.Warn("Failed to delete JSON", zap.String("path", path), zap.String("reason", reason), zap.Error(err))
		return
	}
	s.logger.Info("Deleted JSON file", zap.String("path", path), zap.String("reason", reason))
}

// register moves a file to {uuid}{ext}, reads its dimensions and writes the
// sidecar.
func (s *Scanner) register(path, originalFilename string, info os.FileInfo, decorate ...func(*ImageInfo)) (*ImageInfo, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !extensions[ext] {
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}

	id := uuid.New().String()
	finalPath := s.getFilePath(id + ext)
	if err := os.Rename(path, finalPath); err != nil {
		return nil, fmt.Errorf("failed to move file: %w", err)
	}

	width, height, err := s.dimensions(finalPath)
	if err != nil {
		if rerr := os.Rename(finalPath, path); rerr != nil {
			s.logger.Warn("Failed to restore file name", zap.String("path", finalPath), zap.Error(rerr))
		}
		return nil, fmt.Errorf("failed to scan image: %w", err)
	}

	imageInfo := &ImageInfo{
		ID:               id,
		OriginalFilename: originalFilename,
		CurrentFilename:  filepath.Base(finalPath),
		Width:            width,
		Height:           height,
		Bytes:            info.Size(),
	}
	for _, fn := range decorate {
		fn(imageInfo)
	}

	jsonPath := s.getFilePath(id + ".json")
	if err := s.saveMetadata(jsonPath, imageInfo); err != nil {
		return nil, err
	}

	s.logger.Info("Registered image",
		zap.String("uuid", id),
		zap.String("original_filename", originalFilename),
		zap.String("final_path", finalPath))
	return imageInfo, nil
}

func (s *Scanner) dimensions(path string) (int, int, error) {
	image, err := s.loadImage(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()
	return image.Width(), image.Height(), nil
}

// loadImage loads an image based on file extension
func (s *Scanner) loadImage(path string) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))

	// Use AccessSequential for scanning (just need dimensions)
	access := vips.AccessSequential

	switch ext {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}
}

func (s *Scanner) add(info ImageInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, info)
}

func (s *Scanner) GetImages() []ImageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ImageInfo(nil), s.images...)
}

func (s *Scanner) GetImageByID(id string) (ImageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, img := range s.images {
		if img.ID == id {
			return img, nil
		}
	}
	return ImageInfo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Scanner) GetImageBySourceURL(sourceURL string) (ImageInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, img := range s.images {
		if img.SourceURL != "" && img.SourceURL == sourceURL {
			return img, true
		}
	}
	return ImageInfo{}, false
}

func (s *Scanner) GetImagePathByID(id string) (string, error) {
	imageInfo, err := s.GetImageByID(id)
	if err != nil {
		return "", err
	}
	return s.getFilePath(imageInfo.CurrentFilename), nil
}

func (s *Scanner) getFilePath(filename string) string {
	return filepath.Join(s.dataDir, filename)
}

func (s *Scanner) loadMetadata(path string) (*ImageInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta ImageInfo
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

func (s *Scanner) saveMetadata(path string, meta *ImageInfo) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// Import runs under the caller's context; a cancelled request leaves no
// partial file behind.
func (s *Scanner) Import(ctx context.Context, d *Downloader, sourceURL, title string) (ImageInfo, error) {
	if existing, ok := s.GetImageBySourceURL(sourceURL); ok {
		return existing, nil
	}

	tmpPath, originalFilename, err := d.Download(ctx, sourceURL, s.dataDir)
	if err != nil {
		return ImageInfo{}, err
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return ImageInfo{}, fmt.Errorf("failed to stat download: %w", err)
	}

	imageInfo, err := s.register(tmpPath, originalFilename, info, func(i *ImageInfo) {
		i.SourceURL = sourceURL
		i.Title = title
		if f, ok := FeaturedByURL(sourceURL); ok {
			i.Title = f.Title
			i.CopyrightText = f.Credit
			i.CopyrightLink = f.URL
		}
	})
	if err != nil {
		os.Remove(tmpPath)
		return ImageInfo{}, err
	}

	s.add(*imageInfo)
	return *imageInfo, nil
}
