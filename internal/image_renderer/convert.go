package image_renderer

import (
	"fmt"

	"github.com/cshum/vipsgen/vips"
)

// ConvertToPNG decodes any format vips can sniff from the buffer and
// re-encodes it as PNG with light compression, trading size for speed.
func ConvertToPNG(data []byte) ([]byte, error) {
	image, err := vips.NewImageFromBuffer(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer image.Close()

	pngOpts := vips.DefaultPngsaveBufferOptions()
	pngOpts.Compression = 1

	out, err := image.PngsaveBuffer(pngOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return out, nil
}
