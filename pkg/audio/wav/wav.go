// Package wav encodes mono 16-bit PCM into RIFF/WAV containers. It is used for
// whisper-server uploads, speaker-embedding requests and enrollment xray dumps.
package wav

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

const (
	headerSize    = 44
	bitsPerSample = 16
	channels      = 1
)

// Encode wraps samples in a canonical 44-byte-header PCM WAV file.
func Encode(samples []int16, sampleRate int) []byte {
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf := make([]byte, headerSize, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return append(buf, audio.Int16ToBytes(samples)...)
}

// Decode parses a mono 16-bit PCM WAV file and returns its samples and sample
// rate. The RIFF chunks are walked, so fmt chunks with extension bytes and
// LIST chunks before the data are accepted.
func Decode(data []byte) ([]int16, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("wav: not a RIFF/WAVE file")
	}

	rate := 0
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := data[offset+8:]

		switch id {
		case "fmt ":
			if size < 16 || len(body) < 16 {
				return nil, 0, fmt.Errorf("wav: short fmt chunk")
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, 0, fmt.Errorf("wav: unsupported audio format %d", format)
			}
			if ch := binary.LittleEndian.Uint16(body[2:4]); ch != channels {
				return nil, 0, fmt.Errorf("wav: expected mono audio, got %d channels", ch)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != bitsPerSample {
				return nil, 0, fmt.Errorf("wav: expected 16-bit samples, got %d", bits)
			}
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			if rate == 0 {
				return nil, 0, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			// Streaming servers write 0 or 0xFFFFFFFF when the length is unknown.
			if size == 0 || size > len(body) {
				size = len(body)
			}
			return audio.BytesToInt16(body[:size]), rate, nil
		}

		offset += 8 + size
		if size%2 != 0 {
			offset++
		}
	}
	return nil, 0, fmt.Errorf("wav: missing data chunk")
}

// WriteFile encodes samples and writes them to path with 0o644 permissions.
func WriteFile(path string, samples []int16, sampleRate int) error {
	if err := os.WriteFile(path, Encode(samples, sampleRate), 0o644); err != nil {
		return fmt.Errorf("wav: write %q: %w", path, err)
	}
	return nil
}
