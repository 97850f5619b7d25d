package image_renderer

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stellarview/internal/image_list"
)

// Warmup renders the first levels of every image into the tile cache.
// Failed tiles are logged and skipped; only cancellation stops it early.
func (r *Renderer) Warmup(ctx context.Context, levels, workers int) error {
	images := r.scanner.GetImages()
	if len(images) == 0 || levels <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}

	r.logger.Info("Starting tile warmup", zap.Int("levels", levels), zap.Int("images", len(images)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, img := range images {
		for _, t := range warmupTiles(img, levels) {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if _, err := r.RenderTile(ctx, img.ID, t.z, t.x, t.y); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					r.logger.Debug("Warmup tile failed",
						zap.String("image", img.ID),
						zap.Int("z", t.z), zap.Int("x", t.x), zap.Int("y", t.y),
						zap.Error(err))
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("Tile warmup completed")
	return nil
}

type tileCoord struct{ z, x, y int }

func warmupTiles(img image_list.ImageInfo, levels int) []tileCoord {
	maxZoom := CalculateMaxZoom(img.Width, img.Height)
	top := min(levels, maxZoom)

	var tiles []tileCoord
	for z := 0; z <= top; z++ {
		cols, rows := TileCount(img.Width, img.Height, maxZoom, z)
		for x := 0; x < cols; x++ {
			for y := 0; y < rows; y++ {
				tiles = append(tiles, tileCoord{z, x, y})
			}
		}
	}
	return tiles
}
