package compression

import (
	"sort"

	"github.com/auditvault/auditvault/pkg/errclass"
)

const (
	maxDictEntries   = 200
	minSeqLen        = 2
	maxSeqLen        = 4
	minDictFrequency = 2
	// Only this many leading bytes are scanned when choosing the dictionary.
	dictSampleLimit = 256 << 10
	// Index byte that stands for a literal markerDict. Always >= maxDictEntries.
	dictEscape byte = 0xFF
)

// dictionary maps frequent 2-4 byte sequences to single-byte indices.
type dictionary struct {
	entries [][]byte
	lookup  map[string]byte
}

// buildDictionary selects up to maxDictEntries sequences ordered by
// frequency (descending), then length (ascending), then byte order.
// Sequences of a single repeated byte are left for the RLE stage.
func buildDictionary(data []byte) *dictionary {
	sample := data
	if len(sample) > dictSampleLimit {
		sample = sample[:dictSampleLimit]
	}

	counts := make(map[string]int)
	for n := minSeqLen; n <= maxSeqLen; n++ {
		for i := 0; i+n <= len(sample); i++ {
			counts[string(sample[i:i+n])]++
		}
	}

	type candidate struct {
		seq  string
		freq int
	}
	candidates := make([]candidate, 0, len(counts))
	for seq, freq := range counts {
		if freq >= minDictFrequency && !uniform(seq) {
			candidates = append(candidates, candidate{seq, freq})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.freq != b.freq {
			return a.freq > b.freq
		}
		if len(a.seq) != len(b.seq) {
			return len(a.seq) < len(b.seq)
		}
		return a.seq < b.seq
	})
	if len(candidates) > maxDictEntries {
		candidates = candidates[:maxDictEntries]
	}

	d := &dictionary{lookup: make(map[string]byte, len(candidates))}
	for i, c := range candidates {
		d.entries = append(d.entries, []byte(c.seq))
		d.lookup[c.seq] = byte(i)
	}
	return d
}

func uniform(seq string) bool {
	for i := 1; i < len(seq); i++ {
		if seq[i] != seq[0] {
			return false
		}
	}
	return true
}

// match returns the longest dictionary entry that prefixes data.
func (d *dictionary) match(data []byte) (byte, int, bool) {
	for n := maxSeqLen; n >= minSeqLen; n-- {
		if n > len(data) {
			continue
		}
		if idx, ok := d.lookup[string(data[:n])]; ok {
			return idx, n, true
		}
	}
	return 0, 0, false
}

// appendTable serialises the dictionary as count, then length+bytes per entry.
func (d *dictionary) appendTable(out []byte) []byte {
	out = append(out, byte(len(d.entries)))
	for _, e := range d.entries {
		out = append(out, byte(len(e)))
		out = append(out, e...)
	}
	return out
}

func readDictTable(in []byte) ([][]byte, []byte, error) {
	if len(in) == 0 {
		return nil, nil, errclass.ErrFrameCorrupt.WithMessage("dictionary: missing table")
	}
	count := int(in[0])
	if count > maxDictEntries {
		return nil, nil, errclass.ErrFrameCorrupt.WithMessagef("dictionary: %d entries exceeds limit %d", count, maxDictEntries)
	}
	pos := 1
	entries := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if pos >= len(in) {
			return nil, nil, errclass.ErrFrameCorrupt.WithMessagef("dictionary: table truncated at entry %d", i)
		}
		n := int(in[pos])
		if n < minSeqLen || n > maxSeqLen {
			return nil, nil, errclass.ErrFrameCorrupt.WithMessagef("dictionary: entry %d has invalid length %d", i, n)
		}
		pos++
		if pos+n > len(in) {
			return nil, nil, errclass.ErrFrameCorrupt.WithMessagef("dictionary: table truncated at entry %d", i)
		}
		entries = append(entries, in[pos:pos+n])
		pos += n
	}
	return entries, in[pos:], nil
}

// dictEncode replaces dictionary matches (greedy, longest first) with
// [markerDict, index, length]. A literal markerDict becomes [markerDict, dictEscape].
func dictEncode(data []byte) []byte {
	d := buildDictionary(data)
	out := d.appendTable(make([]byte, 0, len(data)+len(data)/8+1+len(d.entries)*(maxSeqLen+1)))

	for i := 0; i < len(data); {
		if idx, n, ok := d.match(data[i:]); ok {
			out = append(out, markerDict, idx, byte(n))
			i += n
			continue
		}
		if data[i] == markerDict {
			out = append(out, markerDict, dictEscape)
		} else {
			out = append(out, data[i])
		}
		i++
	}
	return out
}

func dictDecode(in []byte) ([]byte, error) {
	entries, body, err := readDictTable(in)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)*2)
	for i := 0; i < len(body); {
		b := body[i]
		if b != markerDict {
			out = append(out, b)
			i++
			continue
		}
		if i+1 >= len(body) {
			return nil, truncated("dictionary", i)
		}
		idx := body[i+1]
		if idx == dictEscape {
			out = append(out, markerDict)
			i += 2
			continue
		}
		if i+2 >= len(body) {
			return nil, truncated("dictionary", i)
		}
		if int(idx) >= len(entries) {
			return nil, errclass.ErrFrameCorrupt.WithMessagef("dictionary: unknown index %d at offset %d", idx, i)
		}
		entry := entries[idx]
		if int(body[i+2]) != len(entry) {
			return nil, errclass.ErrFrameCorrupt.WithMessagef("dictionary: token length %d does not match entry %d", body[i+2], idx)
		}
		out = append(out, entry...)
		i += 3
	}
	return out, nil
}
