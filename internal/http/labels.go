package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stellarview/internal/labels"
	"stellarview/internal/overlay"
)

type labelsResponse struct {
	URL    string         `json:"url"`
	Labels []labels.Label `json:"labels"`
}

func (h *Handlers) GetLabels(c *gin.Context) {
	url := c.Query("url")
	ls, err := h.Labels.Get(c.Request.Context(), url)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, labelsResponse{URL: url, Labels: ls})
}

type addLabelRequest struct {
	URL  string   `json:"url" validate:"required"`
	X    *float64 `json:"x" validate:"required"`
	Y    *float64 `json:"y" validate:"required"`
	Text string   `json:"text" validate:"required,max=500"`
}

func (h *Handlers) AddLabel(c *gin.Context) {
	var req addLabelRequest
	if !h.bind(c, &req) {
		return
	}

	ls, err := h.Labels.Add(c.Request.Context(), req.URL, labels.Label{X: *req.X, Y: *req.Y, Text: req.Text})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, labelsResponse{URL: req.URL, Labels: ls})
}

type saveLabelsRequest struct {
	URL    string         `json:"url" validate:"required"`
	Labels []labels.Label `json:"labels" validate:"max=1000"`
}

// SaveLabels replaces the whole list for an image.
func (h *Handlers) SaveLabels(c *gin.Context) {
	var req saveLabelsRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.Labels.Save(c.Request.Context(), req.URL, req.Labels); err != nil {
		h.fail(c, err)
		return
	}
	if req.Labels == nil {
		req.Labels = []labels.Label{}
	}
	c.JSON(http.StatusOK, labelsResponse{URL: req.URL, Labels: req.Labels})
}

type layoutRequest struct {
	URL string `json:"url" validate:"required"`
	overlay.View
	Marker overlay.Size `json:"marker"`
}

type layoutResponse struct {
	URL    string           `json:"url"`
	Placed []overlay.Placed `json:"placed"`
}

// OverlayLayout places the stored labels of an image for the viewer's
// current pan and zoom.
func (h *Handlers) OverlayLayout(c *gin.Context) {
	var req layoutRequest
	if !h.bind(c, &req) {
		return
	}

	ls, err := h.Labels.Get(c.Request.Context(), req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}

	placed, err := overlay.Layout(req.View, req.Marker, ls)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, layoutResponse{URL: req.URL, Placed: placed})
}
