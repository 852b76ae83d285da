package compression

import "github.com/auditvault/auditvault/pkg/errclass"

const (
	minRun = 3
	maxRun = 255
)

// rleEncode replaces runs of at least minRun identical bytes with
// [markerRLE, byte, count]. Every run of markerRLE itself, even of length
// one, is emitted as a token so that markerRLE never appears as a literal.
func rleEncode(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); {
		b := in[i]
		run := 1
		for i+run < len(in) && in[i+run] == b && run < maxRun {
			run++
		}
		if run >= minRun || b == markerRLE {
			out = append(out, markerRLE, b, byte(run))
		} else {
			for k := 0; k < run; k++ {
				out = append(out, b)
			}
		}
		i += run
	}
	return out
}

func rleDecode(in []byte) ([]byte, error) {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); {
		if in[i] != markerRLE {
			out = append(out, in[i])
			i++
			continue
		}
		if i+2 >= len(in) {
			return nil, truncated("rle", i)
		}
		b, count := in[i+1], int(in[i+2])
		if count == 0 {
			return nil, errclass.ErrFrameCorrupt.WithMessagef("rle: zero-length run at offset %d", i)
		}
		for k := 0; k < count; k++ {
			out = append(out, b)
		}
		i += 3
	}
	return out, nil
}
