package audio

import (
	"encoding/binary"
	"math"
)

// Int16ToBytes encodes samples as little-endian 16-bit PCM, the wire format
// expected by the streaming STT backends.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 decodes little-endian 16-bit PCM. A trailing odd byte is
// ignored; callers that receive audio in arbitrary chunks should use a
// [PCMDecoder] to carry it over to the next chunk.
func BytesToInt16(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// ToFloat32 converts samples to float32 normalised to [-1.0, 1.0).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMS returns the root-mean-square energy of samples in 16-bit PCM units.
// Silence is close to zero; full-scale noise approaches 32 767.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ClippedRatio returns the fraction of samples at or beyond threshold in
// absolute value.
func ClippedRatio(samples []int16, threshold int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	clipped := 0
	for _, s := range samples {
		if s >= threshold || s <= -threshold {
			clipped++
		}
	}
	return float64(clipped) / float64(len(samples))
}

// PCMDecoder turns a byte stream of little-endian 16-bit PCM delivered in
// arbitrary chunk sizes into samples, keeping a split sample across calls.
// The zero value is ready to use. Not safe for concurrent use.
type PCMDecoder struct {
	carry    byte
	hasCarry bool
}

// Decode returns every complete sample available after appending chunk.
func (d *PCMDecoder) Decode(chunk []byte) []int16 {
	if len(chunk) == 0 {
		return nil
	}
	if d.hasCarry {
		chunk = append([]byte{d.carry}, chunk...)
		d.hasCarry = false
	}
	if len(chunk)%2 == 1 {
		d.carry = chunk[len(chunk)-1]
		d.hasCarry = true
		chunk = chunk[:len(chunk)-1]
	}
	return BytesToInt16(chunk)
}

// Reset drops any carried byte.
func (d *PCMDecoder) Reset() {
	d.hasCarry = false
}
