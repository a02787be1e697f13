package prompt

import (
	"strings"
	"testing"

	"github.com/samsaffron/tonenotes/internal/tone"
)

func TestToneSystemPrompt(t *testing.T) {
	got := ToneSystemPrompt(tone.Coordinate{X: 1, Y: -1}, tone.Defaults())

	for _, want := range []string{
		"x=1, y=-1",
		"Top (y=-1) is Gen Z (informal, internet slang, emojis) style",
		"Right (x=1) is Millennial (casual, friendly, some emojis) style",
		"Bottom (y=1) is Gen X (straightforward, slightly cynical) style",
		"Left (x=-1) is Boomer (formal, traditional) style",
		"- Gen Z: 50%",
		"- Millennial: 50%",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "- Boomer:") {
		t.Errorf("prompt should not weight directions with no share:\n%s", got)
	}
}

func TestToneSystemPromptCustomDescriptors(t *testing.T) {
	set := tone.Defaults().With(tone.Left, tone.Descriptor{Title: "Pirate", Description: "arr"})
	got := ToneSystemPrompt(tone.Coordinate{X: -0.5, Y: 0}, set)
	if !strings.Contains(got, "x=-0.5, y=0") {
		t.Errorf("prompt missing coordinate:\n%s", got)
	}
	if !strings.Contains(got, "Left (x=-1) is Pirate (arr) style") || !strings.Contains(got, "- Pirate: 100%") {
		t.Errorf("prompt missing custom descriptor:\n%s", got)
	}
}

func TestToneUserPrompt(t *testing.T) {
	got := ToneUserPrompt("line one\nsays \"hi\" C:\\tmp")
	want := "Please rewrite this text: \"line one\nsays \"hi\" C:\\tmp\""
	if got != want {
		t.Fatalf("ToneUserPrompt() = %q, want %q", got, want)
	}
	if !strings.Contains(got, "one\nsays") || strings.Contains(got, `\n`) {
		t.Fatalf("line break was escaped: %q", got)
	}
}

func TestFormatAxis(t *testing.T) {
	tests := map[float64]string{0: "0", 1: "1", -1: "-1", 0.25: "0.25", -0.5: "-0.5", -0.001: "0", 0.333333: "0.33"}
	for in, want := range tests {
		if got := formatAxis(in); got != want {
			t.Errorf("formatAxis(%v) = %q, want %q", in, got, want)
		}
	}
}
