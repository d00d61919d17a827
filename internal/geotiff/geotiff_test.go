package geotiff

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/wetterklima/gridserver/internal/geotiff/tiffgen"
)

func testGrid() tiffgen.Grid {
	nodata := -9999.0
	return tiffgen.Grid{
		Width:     4,
		Height:    3,
		OriginX:   500000,
		OriginY:   400000,
		PixelSize: 1000,
		NoData:    &nodata,
		Values: []float32{
			1, 2, 3, 4,
			5, 6, 7, 8,
			9, -9999, 11, 12.5,
		},
	}
}

func openGrid(t *testing.T, g tiffgen.Grid) *File {
	t.Helper()

	path := filepath.Join(t.TempDir(), "grid.tif")
	if err := tiffgen.Write(path, g); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("opening fixture: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestParseHeader(t *testing.T) {
	f := openGrid(t, testGrid())

	w, h := f.Size()
	if w != 4 || h != 3 {
		t.Errorf("size = %dx%d, want 4x3", w, h)
	}

	left, bottom, right, top := f.Bounds()
	if left != 500000 || top != 400000 || right != 504000 || bottom != 397000 {
		t.Errorf("bounds = (%f, %f, %f, %f)", left, bottom, right, top)
	}

	nd, ok := f.NoData()
	if !ok || nd != -9999 {
		t.Errorf("nodata = %f, %v; want -9999, true", nd, ok)
	}
}

func TestContainsInclusiveEdges(t *testing.T) {
	f := openGrid(t, testGrid())

	cases := []struct {
		x, y float64
		want bool
	}{
		{500000, 400000, true}, // upper-left corner
		{504000, 397000, true}, // lower-right corner, inclusive
		{502000, 398500, true},
		{499999.9, 398500, false},
		{504000.1, 398500, false},
		{502000, 400000.1, false},
	}
	for _, c := range cases {
		if got := f.Contains(c.x, c.y); got != c.want {
			t.Errorf("Contains(%f, %f) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

// A pixel read at a cell center must return exactly the value that was
// written there.
func TestPixelRoundTrip(t *testing.T) {
	f := openGrid(t, testGrid())

	// Center of row 1, col 2: value 7.
	row, col := f.Index(502500, 398500)
	if row != 1 || col != 2 {
		t.Fatalf("Index = (%d, %d), want (1, 2)", row, col)
	}
	v, err := f.PixelAt(row, col)
	if err != nil {
		t.Fatalf("PixelAt: %v", err)
	}
	if v != 7 {
		t.Errorf("pixel = %f, want 7", v)
	}

	// float32 12.5 widens to float64 without losing its bit value.
	v, err = f.PixelAt(2, 3)
	if err != nil {
		t.Fatalf("PixelAt: %v", err)
	}
	if v != 12.5 {
		t.Errorf("pixel = %f, want 12.5", v)
	}
}

// Coordinates on the far edges must resolve to the last row/column, not
// fall out of the grid.
func TestIndexClampsEdges(t *testing.T) {
	f := openGrid(t, testGrid())

	row, col := f.Index(504000, 397000)
	if row != 2 || col != 3 {
		t.Errorf("edge Index = (%d, %d), want (2, 3)", row, col)
	}
}

func TestReadBand(t *testing.T) {
	g := testGrid()
	f := openGrid(t, g)

	band, err := f.ReadBand()
	if err != nil {
		t.Fatalf("ReadBand: %v", err)
	}
	if len(band) != 12 {
		t.Fatalf("band length = %d, want 12", len(band))
	}
	for i, want := range g.Values {
		if band[i] != float64(want) {
			t.Errorf("band[%d] = %f, want %f", i, band[i], want)
		}
	}
}

func TestDeflateCompression(t *testing.T) {
	g := testGrid()
	g.Deflate = true
	f := openGrid(t, g)

	v, err := f.PixelAt(0, 0)
	if err != nil {
		t.Fatalf("PixelAt: %v", err)
	}
	if v != 1 {
		t.Errorf("pixel = %f, want 1", v)
	}

	band, err := f.ReadBand()
	if err != nil {
		t.Fatalf("ReadBand: %v", err)
	}
	if band[5] != 6 {
		t.Errorf("band[5] = %f, want 6", band[5])
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(bytes.NewReader([]byte("not a tiff at all"))); err == nil {
		t.Error("expected error for non-TIFF input")
	}
}

func TestNaNNoData(t *testing.T) {
	g := testGrid()
	nan := math.NaN()
	g.NoData = &nan

	f := openGrid(t, g)
	nd, ok := f.NoData()
	if !ok || !math.IsNaN(nd) {
		t.Errorf("nodata = %f, %v; want NaN, true", nd, ok)
	}
}
