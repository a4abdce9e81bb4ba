package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

// WAVInfo describes an extracted chunk file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int64
}

// DurationSeconds derives the audio length from the data chunk size.
func (i WAVInfo) DurationSeconds() float64 {
	bytesPerSecond := i.SampleRate * i.Channels * i.BitsPerSample / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return float64(i.DataBytes) / float64(bytesPerSecond)
}

// InspectWAV validates the RIFF structure of an extracted chunk and returns
// its format. The extractor uses this to reject truncated or empty output
// before a chunk reaches the transcription engine.
func InspectWAV(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return WAVInfo{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return WAVInfo{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVInfo{}, ErrInvalidWAV
	}

	var (
		info    WAVInfo
		hasFmt  bool
		hasData bool
	)

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return WAVInfo{}, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return WAVInfo{}, ErrInvalidWAV
			}
			buf := make([]byte, 16)
			if _, err := io.ReadFull(f, buf); err != nil {
				return WAVInfo{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(buf[0:2])
			if audioFormat != 1 && audioFormat != 3 {
				return WAVInfo{}, ErrUnsupportedWAV
			}
			info.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))
			hasFmt = true
			if _, err := f.Seek(skip-16, io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("seek wav fmt padding: %w", err)
			}
		case "data":
			info.DataBytes = int64(chunkSize)
			hasData = true
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("seek wav data chunk: %w", err)
			}
		default:
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return WAVInfo{}, ErrInvalidWAV
	}
	if info.DataBytes == 0 {
		return WAVInfo{}, fmt.Errorf("%w: empty data chunk", ErrInvalidWAV)
	}
	return info, nil
}
