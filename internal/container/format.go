// Package container implements the masked-video container: a single file
// holding the masked keep-frames, periodic full snapshots, per-frame timing
// and the mask attributes.
//
// Layout (little-endian):
//
//	0   magic "VMASKMVC"
//	8   format version (uint16)
//	10  has_finished flag (0 or 1)
//	16  width (uint32)
//	20  height (uint32)
//	24  trailer offset (uint64)
//	32  trailer length (uint64)
//	64  row records, one zstd frame per row, in append order
//	..  msgpack trailer (dataset row extents, attributes, timing)
//
// Rows are appended as they are produced. The trailer and the header offsets
// are written only by Finalize, and the has_finished byte is set after both
// are on disk, so a file whose flag is 1 is always complete.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Dataset names.
const (
	MaskDataset = "mask"
	FullDataset = "full_data"
)

// Extension is the file extension of containers.
const Extension = ".mvc"

const (
	magic         = "VMASKMVC"
	formatVersion = 1
	headerSize    = 64

	offVersion    = 8
	offFinished   = 10
	offWidth      = 16
	offHeight     = 20
	offTrailerOff = 24
	offTrailerLen = 32
)

// Row growth steps, mirroring how often each dataset is appended to.
const (
	maskGrowRows = 1000
	fullGrowRows = 1
)

// Image-class labels stored on both datasets so generic viewers treat rows
// as grayscale images with the origin in the upper left.
var imageLabels = map[string]string{
	"CLASS":          "IMAGE",
	"IMAGE_SUBCLASS": "IMAGE_GRAYSCALE",
	"DISPLAY_ORIGIN": "UL",
	"IMAGE_VERSION":  "1.2",
}

// imageWhiteIsZero is the numeric image-class attribute of both datasets.
const imageWhiteIsZero = "IMAGE_WHITE_IS_ZERO"

var (
	// ErrCorrupt is returned when the header or trailer cannot be decoded.
	ErrCorrupt = errors.New("container corrupt")
	// ErrNotFinished is returned when opening a container whose
	// has_finished flag is 0.
	ErrNotFinished = errors.New("container not finished")
)

type header struct {
	version    uint16
	finished   bool
	width      uint32
	height     uint32
	trailerOff uint64
	trailerLen uint64
}

func (h header) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b, magic)
	binary.LittleEndian.PutUint16(b[offVersion:], h.version)
	if h.finished {
		b[offFinished] = 1
	}
	binary.LittleEndian.PutUint32(b[offWidth:], h.width)
	binary.LittleEndian.PutUint32(b[offHeight:], h.height)
	binary.LittleEndian.PutUint64(b[offTrailerOff:], h.trailerOff)
	binary.LittleEndian.PutUint64(b[offTrailerLen:], h.trailerLen)
	return b
}

func parseHeader(b []byte) (header, error) {
	if len(b) < headerSize || string(b[:len(magic)]) != magic {
		return header{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	h := header{
		version:    binary.LittleEndian.Uint16(b[offVersion:]),
		width:      binary.LittleEndian.Uint32(b[offWidth:]),
		height:     binary.LittleEndian.Uint32(b[offHeight:]),
		trailerOff: binary.LittleEndian.Uint64(b[offTrailerOff:]),
		trailerLen: binary.LittleEndian.Uint64(b[offTrailerLen:]),
	}
	switch b[offFinished] {
	case 0:
	case 1:
		h.finished = true
	default:
		return header{}, fmt.Errorf("%w: has_finished = %d", ErrCorrupt, b[offFinished])
	}
	if h.version != formatVersion {
		return header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.version)
	}
	return h, nil
}

// extent locates one compressed row record.
type extent struct {
	Off  int64 `msgpack:"o"`
	Size int64 `msgpack:"n"`
}

type datasetMeta struct {
	Name   string            `msgpack:"name"`
	Rows   []extent          `msgpack:"rows"`
	Attrs  map[string]int64  `msgpack:"attrs,omitempty"`
	Labels map[string]string `msgpack:"labels,omitempty"`
}

type trailer struct {
	Datasets []datasetMeta `msgpack:"datasets"`
	FramePos []int64       `msgpack:"vid_frame_pos"`
	TimePos  []float64     `msgpack:"vid_time_pos"`
}

func (t *trailer) dataset(name string) *datasetMeta {
	for i := range t.Datasets {
		if t.Datasets[i].Name == name {
			return &t.Datasets[i]
		}
	}
	return nil
}
