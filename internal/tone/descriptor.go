package tone

import (
	"fmt"
	"strings"
)

// Descriptor is the persona placed at one compass point.
type Descriptor struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// String renders the descriptor as sent to the rewrite service,
// e.g. "Millennial (casual, friendly, some emojis)".
func (d Descriptor) String() string {
	title := strings.TrimSpace(d.Title)
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		return title
	}
	return title + " (" + desc + ")"
}

// ParseDescriptor reverses String. A trailing parenthesised part becomes the
// description; anything else is the title.
func ParseDescriptor(s string) Descriptor {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ")") {
		if i := strings.LastIndex(s, "("); i > 0 {
			return Descriptor{
				Title:       strings.TrimSpace(s[:i]),
				Description: strings.TrimSpace(s[i+1 : len(s)-1]),
			}
		}
	}
	return Descriptor{Title: s}
}

// Set holds the descriptors of one dial.
type Set struct {
	Top    Descriptor `json:"top" yaml:"top"`
	Right  Descriptor `json:"right" yaml:"right"`
	Bottom Descriptor `json:"bottom" yaml:"bottom"`
	Left   Descriptor `json:"left" yaml:"left"`
}

// Defaults returns the built-in personas.
func Defaults() Set {
	return Set{
		Top:    Descriptor{Title: "Gen Z", Description: "informal, internet slang, emojis"},
		Right:  Descriptor{Title: "Millennial", Description: "casual, friendly, some emojis"},
		Bottom: Descriptor{Title: "Gen X", Description: "straightforward, slightly cynical"},
		Left:   Descriptor{Title: "Boomer", Description: "formal, traditional"},
	}
}

// Get returns the descriptor at d.
func (s Set) Get(d Direction) Descriptor {
	switch d {
	case Top:
		return s.Top
	case Right:
		return s.Right
	case Bottom:
		return s.Bottom
	case Left:
		return s.Left
	}
	return Descriptor{}
}

// With returns a copy of s with the descriptor at d replaced.
func (s Set) With(d Direction, desc Descriptor) Set {
	switch d {
	case Top:
		s.Top = desc
	case Right:
		s.Right = desc
	case Bottom:
		s.Bottom = desc
	case Left:
		s.Left = desc
	}
	return s
}

// Merge fills empty titles in s from fallback.
func (s Set) Merge(fallback Set) Set {
	for _, d := range Directions() {
		if strings.TrimSpace(s.Get(d).Title) == "" {
			s = s.With(d, fallback.Get(d))
		}
	}
	return s
}

// Validate requires a title at every direction.
func (s Set) Validate() error {
	for _, d := range Directions() {
		if strings.TrimSpace(s.Get(d).Title) == "" {
			return fmt.Errorf("%s descriptor has no title", d)
		}
	}
	return nil
}

// Tones is the wire form of a Set: one free-text string per direction.
type Tones struct {
	Top    string `json:"top"`
	Right  string `json:"right"`
	Bottom string `json:"bottom"`
	Left   string `json:"left"`
}

// Tones converts s to its wire form.
func (s Set) Tones() Tones {
	return Tones{
		Top:    s.Top.String(),
		Right:  s.Right.String(),
		Bottom: s.Bottom.String(),
		Left:   s.Left.String(),
	}
}

// Set parses the wire strings back into descriptors.
func (t Tones) Set() Set {
	return Set{
		Top:    ParseDescriptor(t.Top),
		Right:  ParseDescriptor(t.Right),
		Bottom: ParseDescriptor(t.Bottom),
		Left:   ParseDescriptor(t.Left),
	}
}
