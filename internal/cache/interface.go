package cache

import (
	"context"
	"fmt"
)

// TileKey identifies one cached tile. Source is a WMTS layer key or an
// imported image id; Variant is what else changes the bytes (the time string
// for WMTS tiles, tile size and max zoom for deep-zoom tiles).
type TileKey struct {
	Source  string
	Variant string
	Z       int
	X       int
	Y       int
	Format  string
}

func WMTSKey(layer, timeString string, z, row, col int, format string) TileKey {
	variant := timeString
	if variant == "" {
		variant = "static"
	}
	return TileKey{Source: layer, Variant: variant, Z: z, X: col, Y: row, Format: format}
}

func ImageKey(imageID string, tileSize, maxZoom, z, x, y int, format string) TileKey {
	return TileKey{
		Source:  imageID,
		Variant: fmt.Sprintf("%d_%d", tileSize, maxZoom),
		Z:       z,
		X:       x,
		Y:       y,
		Format:  format,
	}
}

func (k TileKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%d/%d.%s", k.Source, k.Variant, k.Z, k.X, k.Y, k.Format)
}

type Cache interface {
	Get(ctx context.Context, key TileKey) ([]byte, bool)
	Set(ctx context.Context, key TileKey, value []byte)
	Has(ctx context.Context, key TileKey) bool // Check if tile exists without reading it (lightweight check)
	Clear(ctx context.Context)
	Close() error
}
