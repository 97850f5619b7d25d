package image_renderer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"stellarview/internal/cache"
	"stellarview/internal/image_list"
)

const (
	TileSize   = 256
	TileFormat = "jpeg"
)

var (
	ErrZoomOutOfRange = errors.New("zoom level out of range")
	ErrTileOutOfRange = errors.New("tile outside image")
)

type Renderer struct {
	scanner   *image_list.Scanner
	tileCache cache.Cache
	logger    *zap.Logger
}

type TileResult struct {
	Data   []byte
	ETag   string
	Size   int
	Cached bool
}

// Meta is what a deep-zoom viewer needs to open an image.
type Meta struct {
	ID            string `json:"id"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	TileSize      int    `json:"tileSize"`
	MaxZoom       int    `json:"maxZoom"`
	Bytes         int64  `json:"bytes"`
	Format        string `json:"format"`
	Title         string `json:"title,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
	CopyrightText string `json:"copyright_text,omitempty"`
	CopyrightLink string `json:"copyright_link,omitempty"`
}

func New(scanner *image_list.Scanner, tileCache cache.Cache, logger *zap.Logger) *Renderer {
	return &Renderer{
		scanner:   scanner,
		tileCache: tileCache,
		logger:    logger,
	}
}

// CalculateMaxZoom is the level at which one tile covers TileSize source
// pixels; level 0 fits the whole image in one tile.
func CalculateMaxZoom(width, height int) int {
	maxDim := math.Max(float64(width), float64(height))
	scale := maxDim / TileSize
	maxZoom := int(math.Ceil(math.Log2(scale)))
	if maxZoom < 0 {
		return 0
	}
	return maxZoom
}

// TileCount is the number of columns and rows at zoom z.
func TileCount(width, height, maxZoom, z int) (int, int) {
	pixelsPerTile := TileSize * math.Pow(2, float64(maxZoom-z))
	return int(math.Ceil(float64(width) / pixelsPerTile)), int(math.Ceil(float64(height) / pixelsPerTile))
}

type bounds struct {
	x, y, width, height int
	scale               float64
}

// tileBounds maps a tile to its source rectangle, clamped to the image for
// edge tiles.
func tileBounds(width, height, maxZoom, z, x, y int) (bounds, error) {
	if z < 0 || z > maxZoom {
		return bounds{}, fmt.Errorf("%w: %d not in [0, %d]", ErrZoomOutOfRange, z, maxZoom)
	}
	if x < 0 || y < 0 {
		return bounds{}, fmt.Errorf("%w: %d/%d/%d", ErrTileOutOfRange, z, x, y)
	}

	pixelsPerTile := TileSize * math.Pow(2, float64(maxZoom-z))

	startX := int(float64(x) * pixelsPerTile)
	startY := int(float64(y) * pixelsPerTile)
	endX := int(math.Min(float64(startX)+pixelsPerTile, float64(width)))
	endY := int(math.Min(float64(startY)+pixelsPerTile, float64(height)))

	if endX-startX <= 0 || endY-startY <= 0 {
		return bounds{}, fmt.Errorf("%w: %d/%d/%d", ErrTileOutOfRange, z, x, y)
	}
	return bounds{
		x:      startX,
		y:      startY,
		width:  endX - startX,
		height: endY - startY,
		scale:  TileSize / pixelsPerTile,
	}, nil
}

func (r *Renderer) RenderTile(ctx context.Context, imageID string, z, x, y int) (*TileResult, error) {
	imageInfo, err := r.scanner.GetImageByID(imageID)
	if err != nil {
		return nil, err
	}

	maxZoom := CalculateMaxZoom(imageInfo.Width, imageInfo.Height)
	b, err := tileBounds(imageInfo.Width, imageInfo.Height, maxZoom, z, x, y)
	if err != nil {
		return nil, err
	}

	cacheKey := cache.ImageKey(imageID, TileSize, maxZoom, z, x, y, TileFormat)
	if cached, ok := r.tileCache.Get(ctx, cacheKey); ok {
		return &TileResult{
			Data:   cached,
			ETag:   generateETag(cacheKey),
			Size:   len(cached),
			Cached: true,
		}, nil
	}

	imagePath, err := r.scanner.GetImagePathByID(imageID)
	if err != nil {
		return nil, err
	}

	image, err := loadImage(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	// Extracting first keeps vips from decoding the rest of the image.
	if err := image.ExtractArea(b.x, b.y, b.width, b.height); err != nil {
		return nil, fmt.Errorf("failed to extract area: %w", err)
	}

	// Scale by the level factor, not the region size, so edge tiles match
	// their neighbours.
	resizeOpts := vips.DefaultResizeOptions()
	resizeOpts.Kernel = vips.KernelLanczos3
	if err := image.Resize(b.scale, resizeOpts); err != nil {
		return nil, fmt.Errorf("failed to resize: %w", err)
	}

	if image.Width() < TileSize || image.Height() < TileSize {
		embedOpts := vips.DefaultEmbedOptions()
		embedOpts.Extend = vips.ExtendBackground
		// JPEG has no alpha, pad with #ddd
		embedOpts.Background = []float64{221, 221, 221}
		if err := image.Embed(0, 0, TileSize, TileSize, embedOpts); err != nil {
			return nil, fmt.Errorf("failed to pad: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = 82
	jpegOpts.Interlace = false

	tileData, err := image.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	r.tileCache.Set(ctx, cacheKey, tileData)

	return &TileResult{
		Data: tileData,
		ETag: generateETag(cacheKey),
		Size: len(tileData),
	}, nil
}

func generateETag(key cache.TileKey) string {
	hash := sha256.Sum256([]byte(key.String()))
	return hex.EncodeToString(hash[:])[:16]
}

func (r *Renderer) GetImageMeta(imageID string) (Meta, error) {
	imageInfo, err := r.scanner.GetImageByID(imageID)
	if err != nil {
		return Meta{}, err
	}

	return Meta{
		ID:            imageInfo.ID,
		Width:         imageInfo.Width,
		Height:        imageInfo.Height,
		TileSize:      TileSize,
		MaxZoom:       CalculateMaxZoom(imageInfo.Width, imageInfo.Height),
		Bytes:         imageInfo.Bytes,
		Format:        TileFormat,
		Title:         imageInfo.Title,
		SourceURL:     imageInfo.SourceURL,
		CopyrightText: imageInfo.CopyrightText,
		CopyrightLink: imageInfo.CopyrightLink,
	}, nil
}

// loadImage opens with random access, which tile extraction from large files
// needs.
func loadImage(path string) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))
	access := vips.AccessRandom

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
