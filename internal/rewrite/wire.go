package rewrite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samsaffron/tonenotes/internal/tone"
)

// Shape names the request layout a client used.
type Shape string

const (
	ShapeStructured Shape = "structured"
	ShapeLegacy     Shape = "legacy"
)

// WireRequest is the JSON body of POST /api/tone. The structured shape sets
// Coordinates and Tones; the legacy shape sets X and Y and implies the
// default personas.
type WireRequest struct {
	Text        string           `json:"text"`
	Coordinates *tone.Coordinate `json:"coordinates,omitempty"`
	Tones       *tone.Tones      `json:"tones,omitempty"`
	X           *float64         `json:"x,omitempty"`
	Y           *float64         `json:"y,omitempty"`
}

// WireResponse is the JSON body answered by /api/tone.
type WireResponse struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// EncodeRequest renders req in the given shape. The legacy shape cannot
// carry descriptors.
func EncodeRequest(req Request, shape Shape) ([]byte, error) {
	w := WireRequest{Text: req.Text}
	switch shape {
	case ShapeLegacy:
		x, y := req.Coordinate.X, req.Coordinate.Y
		w.X, w.Y = &x, &y
	case ShapeStructured, "":
		c := req.Coordinate
		t := req.Descriptors.Tones()
		w.Coordinates, w.Tones = &c, &t
	default:
		return nil, fmt.Errorf("unknown request shape %q", shape)
	}
	return json.Marshal(w)
}

// DecodeRequest parses either request shape. Missing tone strings fall back
// to defaults.
func DecodeRequest(data []byte) (Request, Shape, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w WireRequest
	if err := dec.Decode(&w); err != nil {
		return Request{}, "", fmt.Errorf("invalid request body: %w", err)
	}
	return w.Request()
}

// Request converts the wire form, detecting its shape.
func (w WireRequest) Request() (Request, Shape, error) {
	req := Request{Text: w.Text, Descriptors: tone.Defaults()}
	var shape Shape
	switch {
	case w.Coordinates != nil:
		if w.X != nil || w.Y != nil {
			return Request{}, "", errors.New("request mixes coordinates with bare x/y")
		}
		shape = ShapeStructured
		req.Coordinate = *w.Coordinates
		if w.Tones != nil {
			req.Descriptors = w.Tones.Set().Merge(tone.Defaults())
		}
	case w.X != nil && w.Y != nil:
		if w.Tones != nil {
			return Request{}, "", errors.New("legacy x/y requests cannot carry tones")
		}
		shape = ShapeLegacy
		req.Coordinate = tone.Coordinate{X: *w.X, Y: *w.Y}
	default:
		return Request{}, "", errors.New("request needs coordinates or x and y")
	}
	if err := req.Validate(); err != nil {
		return Request{}, "", err
	}
	return req, shape, nil
}
