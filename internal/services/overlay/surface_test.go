package overlay

import (
	"image/color"
	"testing"

	"sentinelcam-go/internal/models"
)

func TestBindSetsSizeAndStyle(t *testing.T) {
	rec := NewRecorder()
	b := Bind(rec, models.Viewport{Width: 390, Height: 844}, DefaultStyle())

	if b == nil {
		t.Fatal("expected binding")
	}
	w, h := rec.Size()
	if w != 390 || h != 844 {
		t.Fatalf("expected 390x844, got %dx%d", w, h)
	}
	if rec.Stroke != Red || rec.Fill != Red {
		t.Fatalf("expected red stroke and fill, got %v / %v", rec.Stroke, rec.Fill)
	}
	if rec.LineWidth != 3 {
		t.Fatalf("expected line width 3, got %v", rec.LineWidth)
	}
}

func TestBindTwiceIsIdempotent(t *testing.T) {
	rec := NewRecorder()
	vp := models.Viewport{Width: 1000, Height: 2000}

	first := Bind(rec, vp, DefaultStyle())
	stroke, fill, lw := rec.Stroke, rec.Fill, rec.LineWidth

	second := Bind(rec, vp, DefaultStyle())
	if rec.Stroke != stroke || rec.Fill != fill || rec.LineWidth != lw {
		t.Fatal("second bind changed the drawing style")
	}
	if first.Style != second.Style {
		t.Fatalf("style differs between binds: %+v vs %+v", first.Style, second.Style)
	}
	if first.Width() != second.Width() {
		t.Fatalf("canvas width differs between binds")
	}
}

func TestBindNilSurface(t *testing.T) {
	if b := Bind(nil, models.Viewport{Width: 1, Height: 1}, DefaultStyle()); b != nil {
		t.Fatalf("expected nil binding for nil surface, got %+v", b)
	}
}

func TestStyleFromConfig(t *testing.T) {
	s := StyleFromConfig("#00ff80", 5, 0)
	want := color.RGBA{R: 0, G: 255, B: 128, A: 255}
	if s.StrokeColor != want || s.FillColor != want {
		t.Fatalf("unexpected colors: %+v", s)
	}
	if s.LineWidth != 5 {
		t.Fatalf("expected line width 5, got %v", s.LineWidth)
	}
	if s.FontScale != DefaultStyle().FontScale {
		t.Fatalf("expected default font scale, got %v", s.FontScale)
	}

	bad := StyleFromConfig("not-a-color", 0, 0)
	if bad != DefaultStyle() {
		t.Fatalf("invalid color should fall back to defaults, got %+v", bad)
	}
}

func TestParseHexColor(t *testing.T) {
	if _, err := ParseHexColor("#12345"); err == nil {
		t.Error("expected error for short color")
	}
	if _, err := ParseHexColor("#GG0000"); err == nil {
		t.Error("expected error for non-hex digits")
	}
	c, err := ParseHexColor(" FF0000 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != Red {
		t.Fatalf("expected red, got %v", c)
	}
}

func TestIsDark(t *testing.T) {
	tests := []struct {
		c    color.RGBA
		dark bool
	}{
		{color.RGBA{0, 0, 0, 255}, true},
		{color.RGBA{255, 255, 255, 255}, false},
		{color.RGBA{255, 255, 0, 255}, false},
		{color.RGBA{0, 0, 128, 255}, true},
	}
	for _, tt := range tests {
		if got := IsDark(tt.c); got != tt.dark {
			t.Errorf("IsDark(%v) = %v, want %v", tt.c, got, tt.dark)
		}
	}
}
