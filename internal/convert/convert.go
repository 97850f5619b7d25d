package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/tiff"

	"stellarview/internal/analytics"
	"stellarview/internal/image_list"
	"stellarview/internal/image_renderer"
	"stellarview/internal/metrics"
)

var (
	ErrNoURL         = errors.New("No URL provided")
	ErrTooManyPixels = errors.New("image has too many pixels")
)

type Encoder func(data []byte) ([]byte, error)

// Converter fetches a remote image and re-encodes it as PNG.
type Converter struct {
	downloader *image_list.Downloader
	encode     Encoder
	maxPixels  int64
	tracker    analytics.Tracker
	logger     *zap.Logger
}

func New(downloader *image_list.Downloader, maxPixels int64, tracker analytics.Tracker, logger *zap.Logger) *Converter {
	return NewWithEncoder(downloader, image_renderer.ConvertToPNG, maxPixels, tracker, logger)
}

func NewWithEncoder(downloader *image_list.Downloader, encode Encoder, maxPixels int64, tracker analytics.Tracker, logger *zap.Logger) *Converter {
	if tracker == nil {
		tracker = analytics.Noop{}
	}
	return &Converter{
		downloader: downloader,
		encode:     encode,
		maxPixels:  maxPixels,
		tracker:    tracker,
		logger:     logger,
	}
}

func (c *Converter) Convert(ctx context.Context, sourceURL string) ([]byte, error) {
	if sourceURL == "" {
		return nil, ErrNoURL
	}

	start := time.Now()
	out, err := c.convert(ctx, sourceURL)
	metrics.ImageConversionDuration.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, ErrTooManyPixels) || errors.Is(err, image_list.ErrTooLarge) {
			outcome = "rejected"
		}
		c.logger.Warn("Image conversion failed", zap.String("url", sourceURL), zap.Error(err))
	}
	metrics.ImageConversions.WithLabelValues(outcome).Inc()

	c.tracker.Track("", analytics.EventImageConverted, map[string]interface{}{
		"url":     sourceURL,
		"outcome": outcome,
	})
	return out, err
}

func (c *Converter) convert(ctx context.Context, sourceURL string) ([]byte, error) {
	data, err := c.downloader.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if err := c.checkPixels(data); err != nil {
		return nil, err
	}

	out, err := c.encode(data)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Converted image",
		zap.String("url", sourceURL),
		zap.Int("in_bytes", len(data)),
		zap.Int("out_bytes", len(out)))
	return out, nil
}

// checkPixels reads only the TIFF header so a small file declaring a huge
// raster is refused before the decoder allocates for it.
func (c *Converter) checkPixels(data []byte) error {
	if c.maxPixels <= 0 || !isTIFF(data) {
		return nil
	}

	cfg, err := tiff.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// BigTIFF and exotic layouts are left to the full decoder.
		c.logger.Debug("TIFF header not readable, skipping pixel check", zap.Error(err))
		return nil
	}

	pixels := int64(cfg.Width) * int64(cfg.Height)
	if pixels > c.maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrTooManyPixels, cfg.Width, cfg.Height, c.maxPixels)
	}
	return nil
}

func isTIFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*"))
}
