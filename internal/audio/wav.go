package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrUnsupportedWAV is returned for WAV payloads that are not 16-bit PCM.
var ErrUnsupportedWAV = errors.New("unsupported wav encoding")

// Clip is interleaved PCM16 audio.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return len(c.Samples)
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// EncodeWAV wraps the clip in a WAV container.
func EncodeWAV(c Clip) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVTo(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVFile writes the clip as a WAV file at path.
func WriteWAVFile(path string, c Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAVTo(f, c); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteWAVTo writes the clip to out as a WAV stream.
func WriteWAVTo(out io.Writer, c Clip) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	sampleRate := c.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	numChannels := c.Channels
	if numChannels <= 0 {
		numChannels = 1
	}

	dataSize := uint32(len(c.Samples) * 2)
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	header := []any{
		uint32(16),
		uint16(audioFormat),
		uint16(numChannels),
		uint32(sampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(SamplesToBytes(c.Samples)); err != nil {
		return err
	}
	return w.Flush()
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (Clip, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, err
	}
	return DecodeWAV(raw)
}

// DecodeWAV parses a RIFF/WAVE payload holding 16-bit PCM. Unknown chunks
// (LIST, fact, ...) are skipped.
func DecodeWAV(raw []byte) (Clip, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedWAV)
	}
	var (
		clip    Clip
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(raw) {
		id := string(raw[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		// Streaming encoders write 0 or 0xFFFFFFFF for unknown data sizes.
		if end > len(raw) || end < body {
			end = len(raw)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return Clip{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			format := binary.LittleEndian.Uint16(raw[body : body+2])
			clip.Channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(raw[body+14 : body+16])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE; treat as PCM when 16-bit.
			if (format != 1 && format != 0xFFFE) || bits != 16 {
				return Clip{}, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedWAV, format, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Clip{}, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			clip.Samples = BytesToSamples(raw[body:end])
			return clip, nil
		}
		pos = end
		if size%2 == 1 {
			pos++
		}
	}
	return Clip{}, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
}
