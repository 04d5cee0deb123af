package audio

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/edumint/edumint-backend/internal/errs"
)

// Defaults for the PCM stream the TTS backend produces when the mime type
// carries no parameters.
const (
	DefaultSampleRate    = 24000
	DefaultBitsPerSample = 16
	DefaultChannels      = 1
)

// PCMParams describes a raw PCM stream as advertised by its mime type.
type PCMParams struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// ParseMimeParams extracts PCM parameters from a mime type like
// "audio/L16;codec=pcm;rate=24000". Unknown parameters are ignored; missing
// ones fall back to the defaults above.
func ParseMimeParams(mimeType string) PCMParams {
	p := PCMParams{
		SampleRate:    DefaultSampleRate,
		BitsPerSample: DefaultBitsPerSample,
		Channels:      DefaultChannels,
	}
	parts := strings.Split(mimeType, ";")
	if len(parts) > 0 {
		// "audio/L16" encodes the sample width after the L.
		main := strings.TrimSpace(parts[0])
		if idx := strings.LastIndex(main, "L"); idx >= 0 {
			if bits, err := strconv.Atoi(main[idx+1:]); err == nil && bits > 0 {
				p.BitsPerSample = bits
			}
		}
	}
	for _, param := range parts[1:] {
		param = strings.TrimSpace(param)
		if !strings.HasPrefix(param, "rate=") {
			continue
		}
		if rate, err := strconv.Atoi(strings.TrimPrefix(param, "rate=")); err == nil && rate > 0 {
			p.SampleRate = rate
		}
	}
	return p
}

// EncodeWAV prepends the canonical 44-byte RIFF header to raw PCM data. The
// input is copied; the raw PCM slice stays untouched.
func EncodeWAV(pcm []byte, p PCMParams) []byte {
	bytesPerSample := p.BitsPerSample / 8
	blockAlign := p.Channels * bytesPerSample
	byteRate := p.SampleRate * blockAlign
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(p.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(p.BitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// WAVInfo is the decoded header of a canonical PCM WAV file.
type WAVInfo struct {
	PCMParams
	DataSize int
}

// ParseWAVHeader decodes the 44-byte header written by EncodeWAV. Used by the
// duration calculation and for validating round-trips.
func ParseWAVHeader(wav []byte) (WAVInfo, error) {
	if len(wav) < 44 {
		return WAVInfo{}, errs.Generationf("WAV data too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, errs.Generationf("not a RIFF/WAVE stream")
	}
	info := WAVInfo{
		PCMParams: PCMParams{
			Channels:      int(binary.LittleEndian.Uint16(wav[22:24])),
			SampleRate:    int(binary.LittleEndian.Uint32(wav[24:28])),
			BitsPerSample: int(binary.LittleEndian.Uint16(wav[34:36])),
		},
		DataSize: int(binary.LittleEndian.Uint32(wav[40:44])),
	}
	return info, nil
}

// PCMDuration returns the playback length in seconds of a raw PCM payload.
func PCMDuration(dataSize int, p PCMParams) float64 {
	bytesPerSecond := p.SampleRate * p.Channels * (p.BitsPerSample / 8)
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(dataSize) / float64(bytesPerSecond)
}

// EstimateSpokenDuration approximates how long a dialogue script takes to
// speak, at a typical conversational 150 words per minute. Used when no
// rendered audio exists to measure.
func EstimateSpokenDuration(script string) float64 {
	words := len(strings.Fields(script))
	return float64(words) / 150.0 * 60.0
}
