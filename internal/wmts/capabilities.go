package wmts

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrLayerNotFound = errors.New("layer not in capabilities")

type Capabilities struct {
	XMLName  xml.Name `xml:"Capabilities"`
	Contents Contents `xml:"Contents"`
}

type Contents struct {
	Layers []Layer `xml:"Layer"`
}

type Layer struct {
	Title              string              `xml:"http://www.opengis.net/ows/1.1 Title"`
	Abstract           string              `xml:"http://www.opengis.net/ows/1.1 Abstract"`
	Identifier         string              `xml:"http://www.opengis.net/ows/1.1 Identifier"`
	Formats            []string            `xml:"Format"`
	Dimensions         []Dimension         `xml:"Dimension"`
	TileMatrixSetLinks []TileMatrixSetLink `xml:"TileMatrixSetLink"`
	ResourceURL        []ResourceURL       `xml:"ResourceURL"`
}

type Dimension struct {
	Identifier string   `xml:"http://www.opengis.net/ows/1.1 Identifier"`
	UOM        string   `xml:"http://www.opengis.net/ows/1.1 UOM"`
	Default    string   `xml:"Default"`
	Current    bool     `xml:"Current"`
	Values     []string `xml:"Value"`
}

type TileMatrixSetLink struct {
	TileMatrixSet string `xml:"TileMatrixSet"`
}

type ResourceURL struct {
	Format       string `xml:"format,attr"`
	ResourceType string `xml:"resourceType,attr"`
	Template     string `xml:"template,attr"`
}

// LayerInfo is the flattened view of a capabilities layer.
type LayerInfo struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	TileMatrixSet string   `json:"tile_matrix_set"`
	TemplateURL   string   `json:"template_url"`
	Format        string   `json:"format"`
	DefaultTime   string   `json:"default_time,omitempty"`
	TimeRanges    []string `json:"time_ranges,omitempty"`
}

func FetchCapabilities(ctx context.Context, client *http.Client, url string) (*Capabilities, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build capabilities request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch capabilities: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch capabilities: HTTP %d", resp.StatusCode)
	}

	return Parse(resp.Body)
}

func Parse(r io.Reader) (*Capabilities, error) {
	var caps Capabilities
	if err := xml.NewDecoder(r).Decode(&caps); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return &caps, nil
}

// Time returns the layer's time dimension, if it has one.
func (l Layer) Time() (Dimension, bool) {
	for _, d := range l.Dimensions {
		if strings.EqualFold(d.Identifier, "time") {
			return d, true
		}
	}
	return Dimension{}, false
}

func (l Layer) Info() LayerInfo {
	info := LayerInfo{
		Name:        l.Identifier,
		Title:       l.Title,
		Description: l.Abstract,
	}

	if len(l.TileMatrixSetLinks) > 0 {
		info.TileMatrixSet = l.TileMatrixSetLinks[0].TileMatrixSet
	}

	for _, resource := range l.ResourceURL {
		if resource.ResourceType == "tile" {
			info.TemplateURL = resource.Template
			info.Format = resource.Format
			break
		}
	}

	if d, ok := l.Time(); ok {
		info.DefaultTime = d.Default
		info.TimeRanges = d.Values
	}

	return info
}

func (c *Capabilities) Layers() []LayerInfo {
	layers := make([]LayerInfo, 0, len(c.Contents.Layers))
	for _, l := range c.Contents.Layers {
		layers = append(layers, l.Info())
	}
	return layers
}

func (c *Capabilities) Layer(identifier string) (LayerInfo, error) {
	for _, l := range c.Contents.Layers {
		if l.Identifier == identifier {
			return l.Info(), nil
		}
	}
	return LayerInfo{}, fmt.Errorf("%w: %q", ErrLayerNotFound, identifier)
}
