package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

const (
	saveMagic   = "MSAV"
	saveVersion = 7
	// SaveExt is the file extension of save files.
	SaveExt = "msav"
)

// SaveInfo is the metadata region of a save file.
type SaveInfo struct {
	Version int32
	Meta    map[string]string
}

// Name returns the map name recorded in the save.
func (s SaveInfo) Name() string { return s.Meta["mapname"] }

// Size returns the map dimensions, or zeros when absent.
func (s SaveInfo) Size() (int, int) {
	w, _ := strconv.Atoi(s.Meta["width"])
	h, _ := strconv.Atoi(s.Meta["height"])
	return w, h
}

// InspectSave reads the header and metadata of a save file. The map body
// itself is not decoded.
func InspectSave(data []byte) (SaveInfo, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return SaveInfo{}, decodeErr(HeaderInvalid, "not zlib compressed", err)
	}
	defer zr.Close()

	r := &reader{r: capped(zr)}
	magic := r.read(len(saveMagic))
	if r.err != nil {
		return SaveInfo{}, classify(r.err)
	}
	if string(magic) != saveMagic {
		return SaveInfo{}, decodeErr(HeaderInvalid, "missing MSAV magic", nil)
	}
	info := SaveInfo{Version: r.i32(), Meta: make(map[string]string)}
	if r.err == nil && info.Version != saveVersion {
		return info, decodeErr(UnsupportedVersion, fmt.Sprint(info.Version), nil)
	}

	chunk := r.read(int(r.i32()))
	if r.err != nil {
		return info, classify(r.err)
	}
	mr := &reader{r: bytes.NewReader(chunk)}
	n := int(mr.i16())
	for i := 0; i < n && mr.err == nil; i++ {
		k := mr.utf()
		info.Meta[k] = mr.utf()
	}
	if mr.err != nil {
		return info, classify(mr.err)
	}
	return info, nil
}

// SaveDiagnostic renders the user-facing message for a save file that
// could not be read.
func SaveDiagnostic(file string, err error) string {
	switch KindOf(err) {
	case HeaderInvalid:
		return fmt.Sprintf("`%s` is not a map.", file)
	case UnsupportedVersion:
		var de *DecodeError
		errors.As(err, &de)
		return fmt.Sprintf("unsupported version: `%s`. supported versions: `%d`.", de.Detail, saveVersion)
	case Truncated:
		return fmt.Sprintf("failed to read map `%s`: file ends early.", file)
	default:
		return fmt.Sprintf("failed to read map `%s`.", file)
	}
}
