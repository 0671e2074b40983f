package artifact

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zlib"
)

const (
	mschMagic   = "msch"
	mschVersion = 1

	// maxTiles bounds the tile count a header may claim.
	maxTiles = 1 << 20
	// tilePrealloc bounds the tile slice capacity reserved up front.
	tilePrealloc = 1024
)

// Msch is the schematic container codec: a four byte magic, a version
// byte and a zlib-compressed body.
type Msch struct{}

var _ Codec = Msch{}

// Ext implements Codec.
func (Msch) Ext() string { return "msch" }

// Decode implements Codec. Failures are always *DecodeError.
func (Msch) Decode(data []byte) (*Artifact, error) {
	if len(data) < len(mschMagic)+1 || string(data[:len(mschMagic)]) != mschMagic {
		return nil, decodeErr(HeaderInvalid, "missing msch magic", nil)
	}
	version := data[len(mschMagic)]
	if version > mschVersion {
		return nil, decodeErr(UnsupportedVersion, fmt.Sprint(version), nil)
	}

	zr, err := zlib.NewReader(bytes.NewReader(data[len(mschMagic)+1:]))
	if err != nil {
		return nil, classify(err)
	}
	defer zr.Close()

	r := &reader{r: capped(zr)}
	a := &Artifact{Tags: make(map[string]string)}
	a.Width = r.i16()
	a.Height = r.i16()
	if r.err == nil && (a.Width < 0 || a.Height < 0) {
		r.fail(decodeErr(CorruptState, fmt.Sprintf("negative size %dx%d", a.Width, a.Height), nil))
	}

	tags := int(r.u8())
	for i := 0; i < tags && r.err == nil; i++ {
		k := r.utf()
		a.Tags[k] = r.utf()
	}

	palette := make([]string, r.u8())
	for i := range palette {
		palette[i] = r.utf()
	}

	count := int(r.i32())
	switch {
	case r.err != nil:
	case count < 0 || count > int(a.Width)*int(a.Height):
		r.fail(decodeErr(CorruptState, fmt.Sprintf("tile count %d exceeds %dx%d", count, a.Width, a.Height), nil))
	case count > maxTiles:
		r.fail(decodeErr(CorruptState, fmt.Sprintf("tile count %d exceeds %d", count, maxTiles), nil))
	default:
		a.Tiles = make([]Tile, 0, min(count, tilePrealloc))
	}
	for i := 0; i < count && r.err == nil; i++ {
		idx := int(r.u8())
		pos := unpackPoint(r.i32())
		var cfg any
		if version == 0 {
			cfg = r.i32()
		} else {
			cfg = readObject(r)
		}
		rot := r.u8()
		if r.err != nil {
			break
		}
		if idx >= len(palette) {
			r.fail(decodeErr(MissingReference, fmt.Sprintf("palette index %d of %d", idx, len(palette)), nil))
			break
		}
		a.Tiles = append(a.Tiles, Tile{Block: palette[idx], X: pos.X, Y: pos.Y, Config: cfg, Rotation: rot})
	}
	if r.err != nil {
		return nil, classify(r.err)
	}
	return a, nil
}

// Encode implements Codec. Tags are written in key order and the palette
// in first-use order, so equal artifacts encode to equal bytes.
func (Msch) Encode(a *Artifact) ([]byte, error) {
	w := &writer{}
	w.i16(a.Width)
	w.i16(a.Height)

	if len(a.Tags) > 255 {
		return nil, fmt.Errorf("encode msch: %d tags exceeds 255", len(a.Tags))
	}
	keys := make([]string, 0, len(a.Tags))
	for k := range a.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.u8(uint8(len(keys)))
	for _, k := range keys {
		w.utf(k)
		w.utf(a.Tags[k])
	}

	var palette []string
	index := make(map[string]int)
	for _, t := range a.Tiles {
		if _, ok := index[t.Block]; !ok {
			index[t.Block] = len(palette)
			palette = append(palette, t.Block)
		}
	}
	if len(palette) > 255 {
		return nil, fmt.Errorf("encode msch: %d distinct blocks exceeds 255", len(palette))
	}
	w.u8(uint8(len(palette)))
	for _, b := range palette {
		w.utf(b)
	}

	w.i32(int32(len(a.Tiles)))
	for _, t := range a.Tiles {
		w.u8(uint8(index[t.Block]))
		w.i32(Point{X: t.X, Y: t.Y}.pack())
		if err := writeObject(w, t.Config); err != nil {
			return nil, fmt.Errorf("encode msch tile (%d,%d): %w", t.X, t.Y, err)
		}
		w.u8(t.Rotation)
	}
	if w.err != nil {
		return nil, fmt.Errorf("encode msch: %w", w.err)
	}

	var out bytes.Buffer
	out.WriteString(mschMagic)
	out.WriteByte(mschVersion)
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(w.buf.Bytes()); err != nil {
		return nil, fmt.Errorf("compress msch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress msch: %w", err)
	}
	return out.Bytes(), nil
}

func readObject(r *reader) any {
	tag := r.u8()
	if r.err != nil {
		return nil
	}
	switch tag {
	case tagNull:
		return nil
	case tagInt:
		return r.i32()
	case tagLong:
		return r.i64()
	case tagFloat:
		return r.f32()
	case tagString:
		if r.u8() == 0 {
			return nil
		}
		return r.utf()
	case tagContent:
		return Content{Type: r.u8(), ID: r.i16()}
	case tagIntSeq:
		return IntSeq(readInts(r))
	case tagPoint:
		return Point{X: int16(r.i32()), Y: int16(r.i32())}
	case tagPoints:
		var pts []Point
		for n := int(r.u8()); n > 0 && r.err == nil; n-- {
			pts = append(pts, unpackPoint(r.i32()))
		}
		return pts
	case tagBool:
		return r.u8() != 0
	case tagDouble:
		return r.f64()
	case tagBuilding:
		return Building(r.i32())
	case tagLAccess:
		return LAccess(r.i16())
	case tagBytes:
		n := int(r.i32())
		if n == 0 {
			return []byte(nil)
		}
		return r.read(n)
	case tagTeam:
		return Team(r.u8())
	case tagIntArray:
		return IntArray(readInts(r))
	case tagUnitCommand:
		return UnitCommand(r.u16())
	default:
		r.fail(decodeErr(CorruptState, fmt.Sprintf("unknown config type %d", tag), nil))
		return nil
	}
}

func readInts(r *reader) []int32 {
	n := int(r.i16())
	if n < 0 {
		r.fail(decodeErr(CorruptState, fmt.Sprintf("negative list length %d", n), nil))
		return nil
	}
	var out []int32
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.i32())
	}
	return out
}

func writeObject(w *writer, v any) error {
	switch v := v.(type) {
	case nil:
		w.u8(tagNull)
	case int32:
		w.u8(tagInt)
		w.i32(v)
	case int64:
		w.u8(tagLong)
		w.i64(v)
	case float32:
		w.u8(tagFloat)
		w.f32(v)
	case string:
		w.u8(tagString)
		w.u8(1)
		w.utf(v)
	case Content:
		w.u8(tagContent)
		w.u8(v.Type)
		w.i16(v.ID)
	case IntSeq:
		w.u8(tagIntSeq)
		writeInts(w, v)
	case Point:
		w.u8(tagPoint)
		w.i32(int32(v.X))
		w.i32(int32(v.Y))
	case []Point:
		if len(v) > 255 {
			return fmt.Errorf("%d points exceeds 255", len(v))
		}
		w.u8(tagPoints)
		w.u8(uint8(len(v)))
		for _, p := range v {
			w.i32(p.pack())
		}
	case bool:
		w.u8(tagBool)
		if v {
			w.u8(1)
		} else {
			w.u8(0)
		}
	case float64:
		w.u8(tagDouble)
		w.f64(v)
	case Building:
		w.u8(tagBuilding)
		w.i32(int32(v))
	case LAccess:
		w.u8(tagLAccess)
		w.i16(int16(v))
	case []byte:
		w.u8(tagBytes)
		w.i32(int32(len(v)))
		w.buf.Write(v)
	case Team:
		w.u8(tagTeam)
		w.u8(uint8(v))
	case IntArray:
		w.u8(tagIntArray)
		writeInts(w, v)
	case UnitCommand:
		w.u8(tagUnitCommand)
		w.u16(uint16(v))
	default:
		return fmt.Errorf("unsupported config type %T", v)
	}
	return nil
}

func writeInts(w *writer, v []int32) {
	w.i16(int16(len(v)))
	for _, x := range v {
		w.i32(x)
	}
}
