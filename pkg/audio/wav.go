package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Errors returned by [DecodeWAV].
var (
	ErrNotWAV         = errors.New("audio: not a RIFF/WAVE stream")
	ErrUnsupportedWAV = errors.New("audio: unsupported WAV encoding")
)

// DecodeWAV reads a 16-bit PCM WAV stream and returns a mono [Clip].
// Stereo input is downmixed by averaging channels. Non-PCM encodings
// (float, ADPCM, µ-law) return [ErrUnsupportedWAV].
func DecodeWAV(r io.Reader) (*Clip, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("audio: read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		haveFmt       bool
	)

	// Walk chunks until the data chunk. Unknown chunks are skipped.
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("audio: no data chunk: %w", ErrNotWAV)
			}
			return nil, fmt.Errorf("audio: read chunk header: %w", err)
		}
		chunkID := string(hdr[0:4])
		chunkLen := binary.LittleEndian.Uint32(hdr[4:8])

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, ErrUnsupportedWAV
			}
			buf := make([]byte, chunkLen)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			if format != 1 { // PCM only
				return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, format)
			}
			channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedWAV, bitsPerSample)
			}
			if channels < 1 || channels > 2 {
				return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, channels)
			}
			if sampleRate <= 0 {
				return nil, fmt.Errorf("%w: sample rate %d", ErrUnsupportedWAV, sampleRate)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("audio: data chunk before fmt chunk: %w", ErrNotWAV)
			}
			data := make([]byte, chunkLen)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("audio: read data chunk: %w", err)
			}
			return decodePCM16(data, sampleRate, channels), nil

		default:
			// Chunks are word-aligned; odd sizes carry a pad byte.
			skip := int64(chunkLen)
			if chunkLen%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("audio: skip %q chunk: %w", chunkID, err)
			}
		}
	}
}

// EncodeWAV serialises the clip as a mono 16-bit PCM WAV file. Samples are
// clamped to [-1, 1] before quantisation.
func EncodeWAV(c *Clip) []byte {
	pcm := PCM16(c)
	dataLen := len(pcm)

	out := make([]byte, 0, 44+dataLen)
	var hdr [4]byte

	out = append(out, "RIFF"...)
	binary.LittleEndian.PutUint32(hdr[:], uint32(36+dataLen))
	out = append(out, hdr[:]...)
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	binary.LittleEndian.PutUint32(hdr[:], 16)
	out = append(out, hdr[:]...)
	binary.LittleEndian.PutUint16(hdr[:2], 1) // PCM
	out = append(out, hdr[:2]...)
	binary.LittleEndian.PutUint16(hdr[:2], 1) // mono
	out = append(out, hdr[:2]...)
	binary.LittleEndian.PutUint32(hdr[:], uint32(c.SampleRate))
	out = append(out, hdr[:]...)
	binary.LittleEndian.PutUint32(hdr[:], uint32(c.SampleRate*2))
	out = append(out, hdr[:]...)
	binary.LittleEndian.PutUint16(hdr[:2], 2) // block align
	out = append(out, hdr[:2]...)
	binary.LittleEndian.PutUint16(hdr[:2], 16)
	out = append(out, hdr[:2]...)

	out = append(out, "data"...)
	binary.LittleEndian.PutUint32(hdr[:], uint32(dataLen))
	out = append(out, hdr[:]...)
	return append(out, pcm...)
}

// PCM16 converts the clip's samples to raw little-endian 16-bit PCM.
func PCM16(c *Clip) []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		q := int16(v * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(q))
	}
	return out
}

// decodePCM16 converts little-endian int16 PCM bytes to a mono float32
// clip, averaging stereo pairs.
func decodePCM16(data []byte, sampleRate, channels int) *Clip {
	frames := len(data) / 2 / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var acc float64
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			acc += float64(s) / 32768.0
		}
		samples[i] = float32(acc / float64(channels))
	}
	return &Clip{Samples: samples, SampleRate: sampleRate}
}
