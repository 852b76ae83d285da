// Package compression implements the audit backup codec: a reversible,
// self-describing byte transform built from dictionary substitution,
// run-length encoding and frequency remapping.
//
// A frame is an 8-byte tag, the original length as a little-endian uint64,
// then the payload. TagRaw frames carry the input untouched and are used
// whenever the pipeline would not make the data smaller. TagRLE frames carry
// the pipeline output; each stage embeds whatever table it needs to be
// reversed, so a frame can always be decoded on its own.
package compression

import (
	"encoding/binary"

	"github.com/auditvault/auditvault/pkg/errclass"
)

// HeaderSize is the size of the tag plus the original-length field.
const HeaderSize = 16

// Reserved token markers, one per stage. Literal occurrences are escaped by
// the stage that owns the marker.
const (
	markerDict byte = 0xFF
	markerRLE  byte = 0xFE
	markerFreq byte = 0xFD
)

// FrameTag identifies how a frame payload is encoded.
type FrameTag [8]byte

var (
	// TagRaw marks a payload that is the original input.
	TagRaw = FrameTag{'A', 'V', 'C', 'R', 'A', 'W', '0', '1'}
	// TagRLE marks a payload produced by the three-stage pipeline.
	TagRLE = FrameTag{'A', 'V', 'C', 'R', 'L', 'E', '0', '1'}
)

func (t FrameTag) String() string {
	return string(t[:])
}

// Compress encodes data into a frame. It never fails: input the pipeline
// cannot shrink is framed as TagRaw.
func Compress(data []byte) []byte {
	payload := remapEncode(rleEncode(dictEncode(data)))
	if len(payload)+HeaderSize >= len(data)+HeaderSize {
		return frame(TagRaw, uint64(len(data)), data)
	}
	return frame(TagRLE, uint64(len(data)), payload)
}

// Decompress reverses Compress. Unknown tags, truncated tokens and length
// mismatches are reported as E_FRAME_CORRUPT.
func Decompress(data []byte) ([]byte, error) {
	tag, size, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[HeaderSize:]

	switch tag {
	case TagRaw:
		if uint64(len(payload)) != size {
			return nil, errclass.ErrFrameCorrupt.WithMessagef("raw payload is %d bytes, header says %d", len(payload), size)
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil

	case TagRLE:
		remapped, err := remapDecode(payload)
		if err != nil {
			return nil, err
		}
		expanded, err := rleDecode(remapped)
		if err != nil {
			return nil, err
		}
		out, err := dictDecode(expanded)
		if err != nil {
			return nil, err
		}
		if uint64(len(out)) != size {
			return nil, errclass.ErrFrameCorrupt.WithMessagef("decoded %d bytes, header says %d", len(out), size)
		}
		return out, nil

	default:
		return nil, errclass.ErrFrameCorrupt.WithMessagef("unknown frame tag %q", tag.String())
	}
}

// ParseHeader returns the tag and original length of a frame.
func ParseHeader(data []byte) (FrameTag, uint64, error) {
	var tag FrameTag
	if len(data) < HeaderSize {
		return tag, 0, errclass.ErrFrameCorrupt.WithMessagef("frame is %d bytes, shorter than the %d-byte header", len(data), HeaderSize)
	}
	copy(tag[:], data[:8])
	return tag, binary.LittleEndian.Uint64(data[8:HeaderSize]), nil
}

func frame(tag FrameTag, size uint64, payload []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(out, tag[:])
	binary.LittleEndian.PutUint64(out[8:HeaderSize], size)
	return append(out, payload...)
}

func truncated(stage string, offset int) error {
	return errclass.ErrFrameCorrupt.WithMessagef("%s: truncated token at offset %d", stage, offset)
}
