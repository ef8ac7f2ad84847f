package embedding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pgvector/pgvector-go"
)

// encodeProfile serialises an embedding in the pgvector binary format, so a
// profile can also be stored in a vector column verbatim.
func encodeProfile(v []float32) ([]byte, error) {
	buf, err := pgvector.NewVector(v).EncodeBinary(nil)
	if err != nil {
		return nil, fmt.Errorf("embedding: encode profile: %w", err)
	}
	return buf, nil
}

// decodeProfile parses a blob produced by encodeProfile.
func decodeProfile(data []byte) ([]float32, error) {
	if len(data) < 4 || (len(data)-4)%4 != 0 || int(binary.BigEndian.Uint16(data[0:2]))*4 != len(data)-4 {
		return nil, errors.New("embedding: profile is not a binary vector")
	}
	var v pgvector.Vector
	if err := v.DecodeBinary(data); err != nil {
		return nil, fmt.Errorf("embedding: decode profile: %w", err)
	}
	s := v.Slice()
	if len(s) == 0 {
		return nil, errors.New("embedding: profile is empty")
	}
	return s, nil
}

// cosine returns the cosine similarity of a and b, or 0 when their lengths
// differ or either is a zero vector.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// normalize scales v to unit length in place.
func normalize(v []float32) []float32 {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	if n == 0 {
		return v
	}
	n = math.Sqrt(n)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}
