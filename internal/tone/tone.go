// Package tone models the tone dial: a 2D coordinate blending four persona
// descriptors placed at the compass points.
package tone

import (
	"fmt"
	"math"
	"strings"
)

// MainDialID is the dial shown next to every note.
const MainDialID = "tone-dial-01-main"

// Coordinate is a dial position with both axes in [-1, 1]. Negative Y points
// to the top descriptor, positive X to the right one.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp limits both axes to [-1, 1].
func (c Coordinate) Clamp() Coordinate {
	return Coordinate{X: clamp(c.X), Y: clamp(c.Y)}
}

// Validate rejects NaN, infinities and out of range values.
func (c Coordinate) Validate() error {
	for _, v := range []float64{c.X, c.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("coordinate (%v, %v) is not finite", c.X, c.Y)
		}
		if v < -1 || v > 1 {
			return fmt.Errorf("coordinate (%v, %v) outside [-1, 1]", c.X, c.Y)
		}
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", c.X, c.Y)
}

// FromDial converts a pointer position in the dial's 0..100 percentage
// space to a coordinate, with 50,50 at the centre.
func FromDial(dx, dy float64) Coordinate {
	return Coordinate{X: (dx - 50) / 50, Y: (dy - 50) / 50}.Clamp()
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}

// Direction is one of the four compass points of the dial.
type Direction string

const (
	Top    Direction = "top"
	Right  Direction = "right"
	Bottom Direction = "bottom"
	Left   Direction = "left"
)

// Directions lists the compass points in wire order.
func Directions() []Direction {
	return []Direction{Top, Right, Bottom, Left}
}

// ParseDirection accepts a direction name in any case.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Top, Right, Bottom, Left:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q (want top, right, bottom or left)", s)
}

// Weights is the share of each direction in a blended tone. Entries sum to 1.
type Weights struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Get returns the weight for d.
func (w Weights) Get(d Direction) float64 {
	switch d {
	case Top:
		return w.Top
	case Right:
		return w.Right
	case Bottom:
		return w.Bottom
	case Left:
		return w.Left
	}
	return 0
}

// Blend splits c into per-direction weights. The centre of the dial is an
// even mix of all four.
func Blend(c Coordinate) Weights {
	c = c.Clamp()
	w := Weights{
		Top:    math.Max(0, -c.Y),
		Right:  math.Max(0, c.X),
		Bottom: math.Max(0, c.Y),
		Left:   math.Max(0, -c.X),
	}
	sum := w.Top + w.Right + w.Bottom + w.Left
	if sum == 0 {
		return Weights{Top: 0.25, Right: 0.25, Bottom: 0.25, Left: 0.25}
	}
	w.Top /= sum
	w.Right /= sum
	w.Bottom /= sum
	w.Left /= sum
	return w
}
