package layer_registry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"stellarview/internal/time_format"
)

const (
	TenMinute = time_format.TenMinute
	Daily     = time_format.Daily
	Static    = time_format.Static
)

type Planet string

const (
	Earth Planet = "earth"
	Moon  Planet = "moon"
	Mars  Planet = "mars"
)

type Resolution string

const (
	Potato Resolution = "potato"
	Low    Resolution = "low"
	Medium Resolution = "medium"
	High   Resolution = "high"
)

var (
	ErrUnknownLayer      = errors.New("unknown layer")
	ErrUnknownPlanet     = errors.New("unknown planet")
	ErrUnknownResolution = errors.New("unknown resolution")
)

type LayerConfig struct {
	Key         string            `json:"key"`
	URL         string            `json:"url"`
	Matrix      string            `json:"matrix"`
	Layer       string            `json:"layer"`
	Name        string            `json:"name"`
	Format      string            `json:"format"`
	MaxLevel    int               `json:"max_level"`
	Description string            `json:"description"`
	Temporal    time_format.Class `json:"temporal"`
	Planet      Planet            `json:"planet"`
	Credit      string            `json:"credit"`
	Group       string            `json:"group"`
}

// Extension is the file suffix upstream tiles are served with.
func (l LayerConfig) Extension() string {
	switch l.Format {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	default:
		return strings.TrimPrefix(l.Format, "image/")
	}
}

// ResolveURL substitutes the time and tile matrix set, leaving the per-tile
// placeholders for the renderer to fill.
func (l LayerConfig) ResolveURL(timeString string) string {
	return strings.NewReplacer(
		"{Time}", timeString,
		"{TileMatrixSet}", l.Matrix,
		"{Layer}", l.Layer,
	).Replace(l.URL)
}

func (l LayerConfig) TileURL(timeString string, z, row, col int) string {
	return strings.NewReplacer(
		"{TileMatrix}", strconv.Itoa(z),
		"{TileRow}", strconv.Itoa(row),
		"{TileCol}", strconv.Itoa(col),
	).Replace(l.ResolveURL(timeString))
}

func ParsePlanet(s string) (Planet, error) {
	switch p := Planet(strings.ToLower(strings.TrimSpace(s))); p {
	case Earth, Moon, Mars:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlanet, s)
	}
}

func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case Potato, Low, Medium, High:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResolution, s)
	}
}

// MaxZoom is the zoom ceiling a tier imposes on a layer. It never exceeds the
// layer's native max.
func MaxZoom(r Resolution, l LayerConfig) int {
	var ceiling int
	switch r {
	case Potato:
		ceiling = 1
	case Low:
		ceiling = 3
	case Medium:
		ceiling = 5
	default:
		ceiling = l.MaxLevel
	}
	return min(ceiling, l.MaxLevel)
}

type Registry struct {
	layers []LayerConfig
	byKey  map[string]LayerConfig
}

func New() *Registry {
	return NewWith(builtinLayers)
}

func NewWith(layers []LayerConfig) *Registry {
	return &Registry{
		layers: layers,
		byKey:  lo.KeyBy(layers, func(l LayerConfig) string { return l.Key }),
	}
}

func (r *Registry) Get(key string) (LayerConfig, error) {
	l, ok := r.byKey[key]
	if !ok {
		return LayerConfig{}, fmt.Errorf("%w: %q", ErrUnknownLayer, key)
	}
	return l, nil
}

func (r *Registry) List() []LayerConfig {
	return append([]LayerConfig(nil), r.layers...)
}

func (r *Registry) ForPlanet(p Planet) []LayerConfig {
	return lo.Filter(r.layers, func(l LayerConfig, _ int) bool { return l.Planet == p })
}

// DefaultFor returns the first layer listed for a planet. Mars has none.
func (r *Registry) DefaultFor(p Planet) (LayerConfig, bool) {
	return lo.Find(r.layers, func(l LayerConfig) bool { return l.Planet == p })
}

// Groups keeps the picker order of group names for a planet.
func (r *Registry) Groups(p Planet) []string {
	return lo.Uniq(lo.Map(r.ForPlanet(p), func(l LayerConfig, _ int) string { return l.Group }))
}
