package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/MrWong99/werewolf/pkg/provider/tts"
)

// EncodeWAV wraps a 16-bit PCM clip in a canonical 44-byte RIFF header. Cache
// stores keep clips in this form so they stay playable on disk.
func EncodeWAV(clip tts.Audio) []byte {
	channels := max(clip.Channels, 1)
	blockAlign := channels * 2
	var buf bytes.Buffer
	buf.Grow(44 + len(clip.Data))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(clip.Data)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(clip.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(clip.SampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(clip.Data)))
	buf.Write(clip.Data)
	return buf.Bytes()
}

// DecodeWAV parses a 16-bit PCM WAV file, skipping unknown chunks.
func DecodeWAV(b []byte) (tts.Audio, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return tts.Audio{}, errors.New("audio: not a RIFF/WAVE file")
	}
	var (
		clip   tts.Audio
		gotFmt bool
	)
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if body+size > len(b) {
			size = len(b) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return tts.Audio{}, errors.New("audio: short fmt chunk")
			}
			if f := binary.LittleEndian.Uint16(b[body:]); f != 1 {
				return tts.Audio{}, fmt.Errorf("audio: unsupported wav format %d", f)
			}
			if bits := binary.LittleEndian.Uint16(b[body+14:]); bits != 16 {
				return tts.Audio{}, fmt.Errorf("audio: unsupported bit depth %d", bits)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return tts.Audio{}, errors.New("audio: data chunk before fmt chunk")
			}
			clip.Data = b[body : body+size]
			return clip, nil
		}
		off = body + size + size%2
	}
	return tts.Audio{}, errors.New("audio: no data chunk")
}
