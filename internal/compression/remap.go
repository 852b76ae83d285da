package compression

import (
	"sort"

	"github.com/auditvault/auditvault/pkg/errclass"
)

const (
	remapTableSize    = 16
	minRemapFrequency = 10
	// Index byte that stands for a literal markerFreq. Never a valid slot.
	remapEscape byte = 0xFF
)

// remapEncode prefixes a fixed 16-byte table of the most frequent bytes
// (at least minRemapFrequency occurrences, markerFreq excluded) and replaces
// each occurrence of a table byte with [markerFreq, slot]. Unused slots are
// zero and never referenced.
func remapEncode(in []byte) []byte {
	var counts [256]int
	for _, b := range in {
		counts[b]++
	}

	candidates := make([]byte, 0, 256)
	for b := 0; b < 256; b++ {
		if byte(b) != markerFreq && counts[b] >= minRemapFrequency {
			candidates = append(candidates, byte(b))
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := counts[candidates[i]], counts[candidates[j]]
		if ci != cj {
			return ci > cj
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > remapTableSize {
		candidates = candidates[:remapTableSize]
	}

	var table [remapTableSize]byte
	var slot [256]int
	for i := range slot {
		slot[i] = -1
	}
	for i, b := range candidates {
		table[i] = b
		slot[b] = i
	}

	out := make([]byte, 0, remapTableSize+len(in)+len(in)/4)
	out = append(out, table[:]...)
	for _, b := range in {
		switch {
		case b == markerFreq:
			out = append(out, markerFreq, remapEscape)
		case slot[b] >= 0:
			out = append(out, markerFreq, byte(slot[b]))
		default:
			out = append(out, b)
		}
	}
	return out
}

func remapDecode(in []byte) ([]byte, error) {
	if len(in) < remapTableSize {
		return nil, errclass.ErrFrameCorrupt.WithMessagef("remap: payload is %d bytes, shorter than the table", len(in))
	}
	table := in[:remapTableSize]
	body := in[remapTableSize:]

	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); {
		if body[i] != markerFreq {
			out = append(out, body[i])
			i++
			continue
		}
		if i+1 >= len(body) {
			return nil, truncated("remap", i)
		}
		idx := body[i+1]
		switch {
		case idx == remapEscape:
			out = append(out, markerFreq)
		case int(idx) < remapTableSize:
			out = append(out, table[idx])
		default:
			return nil, errclass.ErrFrameCorrupt.WithMessagef("remap: invalid slot %d at offset %d", idx, i)
		}
		i += 2
	}
	return out, nil
}
