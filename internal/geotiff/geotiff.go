// Package geotiff reads single-band GeoTIFF rasters: grid dimensions,
// the affine georeferencing transform, the nodata sentinel and pixel
// values. It covers the classic TIFF layout the climate datahub uses
// (stripped or tiled, uncompressed or Deflate) and nothing more.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGDALNoData      = 42113
)

const (
	compressionNone          = 1
	compressionDeflate       = 8
	compressionDeflateLegacy = 32946
)

const (
	formatUnsigned = 1
	formatSigned   = 2
	formatFloat    = 3
)

// File is an open read-only raster. Not safe for concurrent use; callers
// open one handle per goroutine.
type File struct {
	r      io.ReaderAt
	closer io.Closer
	order  binary.ByteOrder

	width, height int
	bits          int
	sampleFormat  int
	compression   int

	rowsPerStrip int
	stripOffsets []int64
	stripCounts  []int64

	tileWidth, tileLength int
	tileOffsets           []int64
	tileCounts            []int64

	originX, originY float64
	pixelW, pixelH   float64

	nodata    float64
	hasNodata bool
}

// Open reads the raster header from path.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	f, err := Parse(fh)
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.closer = fh
	return f, nil
}

// Parse reads the raster header from an arbitrary ReaderAt.
func Parse(r io.ReaderAt) (*File, error) {
	var header [8]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, fmt.Errorf("reading TIFF header: %w", err)
	}

	f := &File{r: r}
	switch string(header[:2]) {
	case "II":
		f.order = binary.LittleEndian
	case "MM":
		f.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF file")
	}
	if f.order.Uint16(header[2:4]) != 42 {
		return nil, fmt.Errorf("bad TIFF magic number")
	}

	entries, err := f.readIFD(int64(f.order.Uint32(header[4:8])))
	if err != nil {
		return nil, err
	}
	if err := f.applyEntries(entries); err != nil {
		return nil, err
	}
	return f, nil
}

// Close releases the underlying file handle, if any.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Size returns the grid dimensions in pixels.
func (f *File) Size() (width, height int) {
	return f.width, f.height
}

// Bounds returns the georeferenced extent in the raster CRS.
func (f *File) Bounds() (left, bottom, right, top float64) {
	left = f.originX
	top = f.originY
	right = f.originX + float64(f.width)*f.pixelW
	bottom = f.originY - float64(f.height)*f.pixelH
	return left, bottom, right, top
}

// NoData reports the declared nodata sentinel.
func (f *File) NoData() (float64, bool) {
	return f.nodata, f.hasNodata
}

// Contains reports whether a projected coordinate falls inside the
// raster extent. Bounds are inclusive on all edges.
func (f *File) Contains(x, y float64) bool {
	left, bottom, right, top := f.Bounds()
	return x >= left && x <= right && y >= bottom && y <= top
}

// Index resolves the pixel containing a projected coordinate. Points on
// the far edges resolve to the last row/column.
func (f *File) Index(x, y float64) (row, col int) {
	col = int(math.Floor((x - f.originX) / f.pixelW))
	row = int(math.Floor((f.originY - y) / f.pixelH))

	if col < 0 {
		col = 0
	} else if col >= f.width {
		col = f.width - 1
	}
	if row < 0 {
		row = 0
	} else if row >= f.height {
		row = f.height - 1
	}
	return row, col
}

// PixelAt reads the single band value at (row, col).
func (f *File) PixelAt(row, col int) (float64, error) {
	if row < 0 || row >= f.height || col < 0 || col >= f.width {
		return 0, fmt.Errorf("pixel (%d, %d) outside %dx%d grid", row, col, f.width, f.height)
	}

	if f.tiled() {
		tilesAcross := (f.width + f.tileWidth - 1) / f.tileWidth
		tile := (row/f.tileLength)*tilesAcross + col/f.tileWidth
		data, err := f.block(f.tileOffsets[tile], f.tileCounts[tile])
		if err != nil {
			return 0, err
		}
		idx := (row%f.tileLength)*f.tileWidth + col%f.tileWidth
		return f.sample(data, idx)
	}

	strip := row / f.rowsPerStrip
	if strip >= len(f.stripOffsets) {
		return 0, fmt.Errorf("row %d beyond strip table", row)
	}
	data, err := f.block(f.stripOffsets[strip], f.stripCounts[strip])
	if err != nil {
		return 0, err
	}
	idx := (row%f.rowsPerStrip)*f.width + col
	return f.sample(data, idx)
}

// ReadBand decodes the full band in row-major order.
func (f *File) ReadBand() ([]float64, error) {
	out := make([]float64, f.width*f.height)

	if f.tiled() {
		tilesAcross := (f.width + f.tileWidth - 1) / f.tileWidth
		for tile := range f.tileOffsets {
			data, err := f.block(f.tileOffsets[tile], f.tileCounts[tile])
			if err != nil {
				return nil, err
			}
			baseRow := (tile / tilesAcross) * f.tileLength
			baseCol := (tile % tilesAcross) * f.tileWidth
			for ty := 0; ty < f.tileLength; ty++ {
				row := baseRow + ty
				if row >= f.height {
					break
				}
				for tx := 0; tx < f.tileWidth; tx++ {
					col := baseCol + tx
					if col >= f.width {
						break
					}
					v, err := f.sample(data, ty*f.tileWidth+tx)
					if err != nil {
						return nil, err
					}
					out[row*f.width+col] = v
				}
			}
		}
		return out, nil
	}

	for strip := range f.stripOffsets {
		data, err := f.block(f.stripOffsets[strip], f.stripCounts[strip])
		if err != nil {
			return nil, err
		}
		baseRow := strip * f.rowsPerStrip
		rows := f.rowsPerStrip
		if baseRow+rows > f.height {
			rows = f.height - baseRow
		}
		for y := 0; y < rows; y++ {
			for x := 0; x < f.width; x++ {
				v, err := f.sample(data, y*f.width+x)
				if err != nil {
					return nil, err
				}
				out[(baseRow+y)*f.width+x] = v
			}
		}
	}
	return out, nil
}

func (f *File) tiled() bool {
	return len(f.tileOffsets) > 0
}

// block reads and decompresses one strip or tile.
func (f *File) block(offset, count int64) ([]byte, error) {
	raw := make([]byte, count)
	if _, err := f.r.ReadAt(raw, offset); err != nil {
		return nil, fmt.Errorf("reading block at %d: %w", offset, err)
	}

	switch f.compression {
	case compressionNone:
		return raw, nil
	case compressionDeflate, compressionDeflateLegacy:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate block at %d: %w", offset, err)
		}
		defer func() { _ = zr.Close() }()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported compression %d", f.compression)
	}
}

// sample decodes the idx-th value of a decoded block as float64.
func (f *File) sample(data []byte, idx int) (float64, error) {
	size := f.bits / 8
	off := idx * size
	if off+size > len(data) {
		return 0, fmt.Errorf("sample %d beyond block of %d bytes", idx, len(data))
	}
	b := data[off : off+size]

	switch {
	case f.sampleFormat == formatFloat && f.bits == 32:
		return float64(math.Float32frombits(f.order.Uint32(b))), nil
	case f.sampleFormat == formatFloat && f.bits == 64:
		return math.Float64frombits(f.order.Uint64(b)), nil
	case f.sampleFormat == formatUnsigned && f.bits == 8:
		return float64(b[0]), nil
	case f.sampleFormat == formatUnsigned && f.bits == 16:
		return float64(f.order.Uint16(b)), nil
	case f.sampleFormat == formatUnsigned && f.bits == 32:
		return float64(f.order.Uint32(b)), nil
	case f.sampleFormat == formatSigned && f.bits == 8:
		return float64(int8(b[0])), nil
	case f.sampleFormat == formatSigned && f.bits == 16:
		return float64(int16(f.order.Uint16(b))), nil
	case f.sampleFormat == formatSigned && f.bits == 32:
		return float64(int32(f.order.Uint32(b))), nil
	default:
		return 0, fmt.Errorf("unsupported sample format %d/%d bits", f.sampleFormat, f.bits)
	}
}

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   [4]byte
}

var typeSizes = map[uint16]int{
	1:  1, // BYTE
	2:  1, // ASCII
	3:  2, // SHORT
	4:  4, // LONG
	8:  2, // SSHORT
	9:  4, // SLONG
	11: 4, // FLOAT
	12: 8, // DOUBLE
}

func (f *File) readIFD(offset int64) (map[uint16]ifdEntry, error) {
	var countBuf [2]byte
	if _, err := f.r.ReadAt(countBuf[:], offset); err != nil {
		return nil, fmt.Errorf("reading IFD: %w", err)
	}
	n := int(f.order.Uint16(countBuf[:]))

	buf := make([]byte, n*12)
	if _, err := f.r.ReadAt(buf, offset+2); err != nil {
		return nil, fmt.Errorf("reading IFD entries: %w", err)
	}

	entries := make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		e := buf[i*12 : (i+1)*12]
		entry := ifdEntry{
			typ:   f.order.Uint16(e[2:4]),
			count: f.order.Uint32(e[4:8]),
		}
		copy(entry.raw[:], e[8:12])
		entries[f.order.Uint16(e[0:2])] = entry
	}
	return entries, nil
}

// entryData returns the full value bytes of an entry, following the
// offset indirection for values larger than four bytes.
func (f *File) entryData(e ifdEntry) ([]byte, error) {
	size, ok := typeSizes[e.typ]
	if !ok {
		return nil, fmt.Errorf("unsupported TIFF field type %d", e.typ)
	}
	total := size * int(e.count)
	if total <= 4 {
		return e.raw[:total], nil
	}

	data := make([]byte, total)
	if _, err := f.r.ReadAt(data, int64(f.order.Uint32(e.raw[:]))); err != nil {
		return nil, fmt.Errorf("reading field value: %w", err)
	}
	return data, nil
}

func (f *File) entryInts(e ifdEntry) ([]int64, error) {
	data, err := f.entryData(e)
	if err != nil {
		return nil, err
	}

	out := make([]int64, e.count)
	for i := range out {
		switch e.typ {
		case 1:
			out[i] = int64(data[i])
		case 3:
			out[i] = int64(f.order.Uint16(data[i*2:]))
		case 4:
			out[i] = int64(f.order.Uint32(data[i*4:]))
		case 8:
			out[i] = int64(int16(f.order.Uint16(data[i*2:])))
		case 9:
			out[i] = int64(int32(f.order.Uint32(data[i*4:])))
		default:
			return nil, fmt.Errorf("field type %d is not integral", e.typ)
		}
	}
	return out, nil
}

func (f *File) entryFloats(e ifdEntry) ([]float64, error) {
	data, err := f.entryData(e)
	if err != nil {
		return nil, err
	}

	out := make([]float64, e.count)
	for i := range out {
		switch e.typ {
		case 11:
			out[i] = float64(math.Float32frombits(f.order.Uint32(data[i*4:])))
		case 12:
			out[i] = math.Float64frombits(f.order.Uint64(data[i*8:]))
		default:
			return nil, fmt.Errorf("field type %d is not floating point", e.typ)
		}
	}
	return out, nil
}

func (f *File) entryString(e ifdEntry) (string, error) {
	data, err := f.entryData(e)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

func (f *File) firstInt(entries map[uint16]ifdEntry, tag uint16, fallback int64) (int64, error) {
	e, ok := entries[tag]
	if !ok {
		return fallback, nil
	}
	vals, err := f.entryInts(e)
	if err != nil || len(vals) == 0 {
		return fallback, err
	}
	return vals[0], nil
}

func (f *File) applyEntries(entries map[uint16]ifdEntry) error {
	width, err := f.firstInt(entries, tagImageWidth, 0)
	if err != nil {
		return err
	}
	height, err := f.firstInt(entries, tagImageLength, 0)
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("missing image dimensions")
	}
	f.width, f.height = int(width), int(height)

	bits, err := f.firstInt(entries, tagBitsPerSample, 8)
	if err != nil {
		return err
	}
	f.bits = int(bits)

	samples, err := f.firstInt(entries, tagSamplesPerPixel, 1)
	if err != nil {
		return err
	}
	if samples != 1 {
		return fmt.Errorf("unsupported sample count %d, expected single band", samples)
	}

	comp, err := f.firstInt(entries, tagCompression, compressionNone)
	if err != nil {
		return err
	}
	f.compression = int(comp)

	format, err := f.firstInt(entries, tagSampleFormat, formatUnsigned)
	if err != nil {
		return err
	}
	f.sampleFormat = int(format)

	predictor, err := f.firstInt(entries, tagPredictor, 1)
	if err != nil {
		return err
	}
	if predictor != 1 {
		return fmt.Errorf("unsupported predictor %d", predictor)
	}

	if e, ok := entries[tagTileOffsets]; ok {
		if f.tileOffsets, err = f.entryInts(e); err != nil {
			return err
		}
		if f.tileCounts, err = f.entryInts(entries[tagTileByteCounts]); err != nil {
			return err
		}
		tw, err := f.firstInt(entries, tagTileWidth, 0)
		if err != nil {
			return err
		}
		tl, err := f.firstInt(entries, tagTileLength, 0)
		if err != nil {
			return err
		}
		if tw <= 0 || tl <= 0 {
			return fmt.Errorf("tiled raster without tile dimensions")
		}
		f.tileWidth, f.tileLength = int(tw), int(tl)
	} else if e, ok := entries[tagStripOffsets]; ok {
		if f.stripOffsets, err = f.entryInts(e); err != nil {
			return err
		}
		if f.stripCounts, err = f.entryInts(entries[tagStripByteCounts]); err != nil {
			return err
		}
		rps, err := f.firstInt(entries, tagRowsPerStrip, height)
		if err != nil {
			return err
		}
		f.rowsPerStrip = int(rps)
	} else {
		return fmt.Errorf("raster has neither strips nor tiles")
	}

	if err := f.applyGeoEntries(entries); err != nil {
		return err
	}

	if e, ok := entries[tagGDALNoData]; ok {
		s, err := f.entryString(e)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, "nan") {
			f.nodata, f.hasNodata = math.NaN(), true
		} else if v, err := strconv.ParseFloat(s, 64); err == nil {
			f.nodata, f.hasNodata = v, true
		}
	}

	return nil
}

func (f *File) applyGeoEntries(entries map[uint16]ifdEntry) error {
	scaleEntry, ok := entries[tagModelPixelScale]
	if !ok {
		return fmt.Errorf("missing ModelPixelScale, not a GeoTIFF")
	}
	scale, err := f.entryFloats(scaleEntry)
	if err != nil {
		return err
	}
	if len(scale) < 2 || scale[0] <= 0 || scale[1] <= 0 {
		return fmt.Errorf("invalid ModelPixelScale")
	}
	f.pixelW, f.pixelH = scale[0], scale[1]

	tieEntry, ok := entries[tagModelTiepoint]
	if !ok {
		return fmt.Errorf("missing ModelTiepoint, not a GeoTIFF")
	}
	tie, err := f.entryFloats(tieEntry)
	if err != nil {
		return err
	}
	if len(tie) < 6 {
		return fmt.Errorf("invalid ModelTiepoint")
	}

	// Anchor the grid origin at the upper-left corner regardless of
	// which pixel the tiepoint references.
	f.originX = tie[3] - tie[0]*f.pixelW
	f.originY = tie[4] + tie[1]*f.pixelH
	return nil
}
