package compression

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInputs() map[string][]byte {
	rng := rand.New(rand.NewSource(42))
	random := make([]byte, 4096)
	rng.Read(random)

	allBytes := make([]byte, 0, 256*3)
	for i := 0; i < 256; i++ {
		allBytes = append(allBytes, byte(i))
	}
	allBytes = append(allBytes, allBytes...)

	var logLines strings.Builder
	for i := 0; i < 200; i++ {
		logLines.WriteString(`{"action":"document.update","entity_id":"DOC-42","timestamp":1700000000,"user_id":"alice"}` + "\n")
	}

	return map[string][]byte{
		"empty":        {},
		"single":       {'x'},
		"all-zero":     make([]byte, 1000),
		"repetitive":   bytes.Repeat([]byte("a"), 5000),
		"random":       random,
		"all-bytes":    allBytes,
		"markers-only": bytes.Repeat([]byte{0xFF, 0xFE, 0xFD}, 100),
		"marker-runs":  append(bytes.Repeat([]byte{0xFE}, 600), bytes.Repeat([]byte{0xFD}, 20)...),
		"log-lines":    []byte(logLines.String()),
		"long-run":     bytes.Repeat([]byte{'z'}, 257),
	}
}

func TestRoundTrip(t *testing.T) {
	for name, input := range sampleInputs() {
		t.Run(name, func(t *testing.T) {
			frame := Compress(input)
			out, err := Decompress(frame)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(input, out), "round trip must be byte-identical")
		})
	}
}

func TestRoundTrip_RandomLengths(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := rng.Intn(600)
		input := make([]byte, n)
		// Small alphabet including the markers to force runs, matches and escapes.
		alphabet := []byte{0xFF, 0xFE, 0xFD, 'a', 'b', 0}
		for j := range input {
			input[j] = alphabet[rng.Intn(len(alphabet))]
		}
		out, err := Decompress(Compress(input))
		require.NoError(t, err)
		require.True(t, bytes.Equal(input, out), "iteration %d (len %d)", i, n)
	}
}

func TestFraming_RawWhenNotSmaller(t *testing.T) {
	for name, input := range sampleInputs() {
		t.Run(name, func(t *testing.T) {
			frame := Compress(input)
			tag, size, err := ParseHeader(frame)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(input)), size)

			pipeline := remapEncode(rleEncode(dictEncode(input)))
			if len(pipeline)+HeaderSize >= len(input)+HeaderSize {
				assert.Equal(t, TagRaw, tag)
				assert.True(t, bytes.Equal(input, frame[HeaderSize:]), "raw payload must equal input")
			} else {
				assert.Equal(t, TagRLE, tag)
				assert.Less(t, len(frame), len(input)+HeaderSize)
			}
		})
	}
}

func TestCompress_ShrinksRuns(t *testing.T) {
	input := make([]byte, 10000)
	frame := Compress(input)
	tag, _, err := ParseHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, TagRLE, tag)
	assert.Less(t, len(frame), len(input)/4)
}

func TestCompress_EmptyIsRaw(t *testing.T) {
	frame := Compress(nil)
	assert.Len(t, frame, HeaderSize)
	tag, size, err := ParseHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, TagRaw, tag)
	assert.Zero(t, size)
}

func TestDecompress_Corrupt(t *testing.T) {
	good := Compress(make([]byte, 2000))

	unknownTag := append([]byte(nil), good...)
	copy(unknownTag, "BOGUSTAG")

	wrongSize := append([]byte(nil), good...)
	wrongSize[8]++

	rawShort := Compress([]byte("abc"))
	rawShort = rawShort[:len(rawShort)-1]

	cases := map[string][]byte{
		"short header": good[:10],
		"unknown tag":  unknownTag,
		"size":         wrongSize,
		"truncated":    good[:len(good)-2],
		"raw short":    rawShort,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decompress(frame)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errclass.ErrFrameCorrupt), "got %v", err)
		})
	}
}

func TestDictionary_Selection(t *testing.T) {
	d := buildDictionary([]byte("abababab"))
	require.NotEmpty(t, d.entries)
	// "ab" occurs 4 times, more than any longer sequence.
	assert.Equal(t, []byte("ab"), d.entries[0])

	idx, n, ok := d.match([]byte("ababx"))
	require.True(t, ok)
	assert.Equal(t, 4, n, "longest match wins")
	assert.Equal(t, "abab", string(d.entries[idx]))
}

func TestDictionary_TieBreakByLength(t *testing.T) {
	// "xy" and "xyz" both appear twice; equal frequency prefers the shorter one.
	d := buildDictionary([]byte("xyz-xyz"))
	var order []string
	for _, e := range d.entries {
		order = append(order, string(e))
	}
	require.Contains(t, order, "xy")
	require.Contains(t, order, "xyz")
	assert.Less(t, indexOf(order, "xy"), indexOf(order, "xyz"))
}

func TestDictionary_LimitsEntries(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 50000)
	for i := range data {
		data[i] = byte('a' + rng.Intn(20))
	}
	d := buildDictionary(data)
	assert.LessOrEqual(t, len(d.entries), maxDictEntries)
}

func TestRLE_Tokens(t *testing.T) {
	assert.Equal(t, []byte("ab"), rleEncode([]byte("ab")))
	assert.Equal(t, []byte("aa"), rleEncode([]byte("aa")))
	assert.Equal(t, []byte{markerRLE, 'a', 3}, rleEncode([]byte("aaa")))
	assert.Equal(t, []byte{markerRLE, markerRLE, 1}, rleEncode([]byte{markerRLE}))

	long := rleEncode(bytes.Repeat([]byte{'q'}, 300))
	assert.Equal(t, []byte{markerRLE, 'q', 255, markerRLE, 'q', 45}, long)
}

func TestRemap_TableAndEscape(t *testing.T) {
	in := append(bytes.Repeat([]byte{'e'}, 12), markerFreq, 'x')
	out := remapEncode(in)
	require.GreaterOrEqual(t, len(out), remapTableSize)
	assert.Equal(t, byte('e'), out[0], "most frequent byte takes slot 0")

	body := out[remapTableSize:]
	assert.Equal(t, []byte{markerFreq, 0}, body[:2])
	assert.Equal(t, []byte{markerFreq, remapEscape, 'x'}, body[len(body)-3:])

	back, err := remapDecode(out)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}

func TestRemap_IgnoresRareBytes(t *testing.T) {
	in := bytes.Repeat([]byte{'r'}, minRemapFrequency-1)
	out := remapEncode(in)
	assert.Equal(t, in, out[remapTableSize:])
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestDictionary_LeavesRunsToRLE(t *testing.T) {
	d := buildDictionary(bytes.Repeat([]byte{'a'}, 100))
	assert.Empty(t, d.entries)
}
