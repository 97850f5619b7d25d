// Package overlay places image-space points on a deep-zoom viewer's
// container. Viewport coordinates are normalised by image width, so an image
// spans x in [0,1] and y in [0, height/width].
package overlay

import (
	"errors"

	"stellarview/internal/labels"
)

var ErrInvalidGeometry = errors.New("invalid overlay geometry")

// DefaultMarker matches the 12px label marker drawn by the viewer.
var DefaultMarker = Size{Width: 12, Height: 12}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is the part of the viewport currently visible in the container.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type View struct {
	Image     Size `json:"image"`
	Viewport  Rect `json:"viewport"`
	Container Size `json:"container"`
}

func (v View) Validate() error {
	if v.Image.Width <= 0 || v.Image.Height <= 0 ||
		v.Viewport.Width <= 0 || v.Viewport.Height <= 0 ||
		v.Container.Width <= 0 || v.Container.Height <= 0 {
		return ErrInvalidGeometry
	}
	return nil
}

func (v View) ImageToViewport(p Point) Point {
	return Point{X: p.X / v.Image.Width, Y: p.Y / v.Image.Width}
}

func (v View) ViewportToContainer(p Point) Point {
	return Point{
		X: (p.X - v.Viewport.X) * v.Container.Width / v.Viewport.Width,
		Y: (p.Y - v.Viewport.Y) * v.Container.Height / v.Viewport.Height,
	}
}

func (v View) ImageToContainer(p Point) Point {
	return v.ViewportToContainer(v.ImageToViewport(p))
}

// Placed is a label ready to position: Center is where the point lands and
// TopLeft is where an element of the marker size goes to be centred on it.
type Placed struct {
	Label   labels.Label `json:"label"`
	Center  Point        `json:"center"`
	TopLeft Point        `json:"top_left"`
	Visible bool         `json:"visible"`
}

// Layout recomputes every label's position for the current view. Nothing is
// cached; callers call it again after each pan or zoom.
func Layout(v View, marker Size, ls []labels.Label) ([]Placed, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if marker.Width <= 0 || marker.Height <= 0 {
		marker = DefaultMarker
	}

	out := make([]Placed, 0, len(ls))
	for _, l := range ls {
		c := v.ImageToContainer(Point{X: l.X, Y: l.Y})
		out = append(out, Placed{
			Label:   l,
			Center:  c,
			TopLeft: Point{X: c.X - marker.Width/2, Y: c.Y - marker.Height/2},
			Visible: c.X >= 0 && c.Y >= 0 && c.X <= v.Container.Width && c.Y <= v.Container.Height,
		})
	}
	return out, nil
}
