// Package tiffgen writes minimal single-band float32 GeoTIFF files.
// It exists for test fixtures only; the service itself never writes
// rasters.
package tiffgen

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Grid describes a synthetic raster.
type Grid struct {
	Width, Height int
	// OriginX, OriginY anchor the upper-left corner in the target CRS.
	OriginX, OriginY float64
	PixelSize        float64
	NoData           *float64
	Deflate          bool
	// Values in row-major order, Width*Height entries.
	Values []float32
}

// Write encodes the grid and writes it to path.
func Write(path string, g Grid) error {
	data, err := Bytes(g)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Bytes encodes the grid as a little-endian classic TIFF with a single
// strip.
func Bytes(g Grid) ([]byte, error) {
	if len(g.Values) != g.Width*g.Height {
		return nil, fmt.Errorf("expected %d values, got %d", g.Width*g.Height, len(g.Values))
	}

	pixels := make([]byte, 4*len(g.Values))
	for i, v := range g.Values {
		binary.LittleEndian.PutUint32(pixels[i*4:], math.Float32bits(v))
	}
	if g.Deflate {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(pixels); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		pixels = buf.Bytes()
	}

	var nodata []byte
	if g.NoData != nil {
		nodata = append([]byte(strconv.FormatFloat(*g.NoData, 'g', -1, 64)), 0)
	}

	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32 // inline value or offset, patched below
	}

	compression := uint32(1)
	if g.Deflate {
		compression = 8
	}

	entries := []entry{
		{256, 4, 1, uint32(g.Width)},
		{257, 4, 1, uint32(g.Height)},
		{258, 3, 1, 32},
		{259, 3, 1, compression},
		{262, 3, 1, 1},
		{273, 4, 1, 0}, // strip offset, patched
		{277, 3, 1, 1},
		{278, 4, 1, uint32(g.Height)},
		{279, 4, 1, uint32(len(pixels))},
		{339, 3, 1, 3},
		{33550, 12, 3, 0}, // pixel scale, patched
		{33922, 12, 6, 0}, // tiepoint, patched
	}
	if nodata != nil {
		entries = append(entries, entry{42113, 2, uint32(len(nodata)), 0})
	}

	ifdSize := 2 + 12*len(entries) + 4
	scaleOff := 8 + ifdSize
	tieOff := scaleOff + 24
	nodataOff := tieOff + 48
	pixOff := nodataOff + len(nodata)

	for i := range entries {
		switch entries[i].tag {
		case 273:
			entries[i].value = uint32(pixOff)
		case 33550:
			entries[i].value = uint32(scaleOff)
		case 33922:
			entries[i].value = uint32(tieOff)
		case 42113:
			if len(nodata) <= 4 {
				var inline [4]byte
				copy(inline[:], nodata)
				entries[i].value = binary.LittleEndian.Uint32(inline[:])
			} else {
				entries[i].value = uint32(nodataOff)
			}
		}
	}

	out := new(bytes.Buffer)
	out.WriteString("II")
	le := binary.LittleEndian
	write := func(v any) { _ = binary.Write(out, le, v) }

	write(uint16(42))
	write(uint32(8))

	write(uint16(len(entries)))
	for _, e := range entries {
		write(e.tag)
		write(e.typ)
		write(e.count)
		write(e.value)
	}
	write(uint32(0)) // no next IFD

	write([]float64{g.PixelSize, g.PixelSize, 0})
	write([]float64{0, 0, 0, g.OriginX, g.OriginY, 0})
	out.Write(nodata)
	out.Write(pixels)

	return out.Bytes(), nil
}
