package tagstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/go-flac"
	"github.com/hajimehoshi/go-mp3"
)

// readCommon reads title, artist and artwork presence with the format
// agnostic tag reader.
func readCommon(path string) (Fields, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fields{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Fields{}, err
	}
	return Fields{
		Title:      strings.TrimSpace(m.Title()),
		Artist:     strings.TrimSpace(m.Artist()),
		HasArtwork: m.Picture() != nil,
	}, nil
}

// mp3Bitrate returns the declared bitrate of a constant bitrate stream.
// Variable bitrate files fall back to an estimate from the audio payload
// size and the decoded duration.
func mp3Bitrate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	tagSize, err := id3HeaderSize(f)
	if err != nil {
		return 0, err
	}

	if bitrate, ok := declaredBitrate(f, tagSize); ok {
		return bitrate, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("failed to decode mp3: %w", err)
	}
	// Length is in bytes of 16-bit stereo PCM
	samples := dec.Length() / 4
	if samples <= 0 || dec.SampleRate() <= 0 {
		return 0, nil
	}
	seconds := float64(samples) / float64(dec.SampleRate())
	audioBytes := info.Size() - tagSize
	return int(math.Round(float64(audioBytes) * 8 / seconds)), nil
}

// Layer III bitrates in kbps by header index.
var (
	mpeg1Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mpeg2Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
	mpeg1Rates    = [4]int{44100, 48000, 32000, 0}
)

const (
	frameScanLimit = 64 << 10
	framesCompared = 4
)

// frameHeader is a decoded MPEG audio Layer III frame header.
type frameHeader struct {
	bitrate    int // bits per second
	sampleRate int
	length     int // bytes including the header
	mpeg1      bool
	mono       bool
}

// sideInfoSize is the distance from the end of the header to the Xing or
// Info tag of the first frame.
func (h frameHeader) sideInfoSize() int {
	switch {
	case h.mpeg1 && h.mono:
		return 17
	case h.mpeg1:
		return 32
	case h.mono:
		return 9
	default:
		return 17
	}
}

func parseFrameHeader(b []byte) (frameHeader, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return frameHeader{}, false
	}
	version := b[1] >> 3 & 0x03 // 3 = MPEG-1, 2 = MPEG-2, 0 = MPEG-2.5
	layer := b[1] >> 1 & 0x03   // 1 = Layer III
	if version == 1 || layer != 1 {
		return frameHeader{}, false
	}
	bitrateIdx := b[2] >> 4
	rateIdx := b[2] >> 2 & 0x03
	padding := int(b[2] >> 1 & 0x01)

	h := frameHeader{mpeg1: version == 3, mono: b[3]>>6 == 3}
	h.sampleRate = mpeg1Rates[rateIdx]
	kbps := mpeg1Bitrates[bitrateIdx]
	if !h.mpeg1 {
		kbps = mpeg2Bitrates[bitrateIdx]
		h.sampleRate /= 2
		if version == 0 {
			h.sampleRate /= 2
		}
	}
	if kbps == 0 || h.sampleRate == 0 {
		return frameHeader{}, false
	}
	h.bitrate = kbps * 1000

	samplesPerFrame := 1152
	if !h.mpeg1 {
		samplesPerFrame = 576
	}
	h.length = samplesPerFrame/8*h.bitrate/h.sampleRate + padding
	return h, true
}

// declaredBitrate reads the frames following the ID3 tag. ok is false for
// variable bitrate streams or when no frame header is found.
func declaredBitrate(r io.ReadSeeker, offset int64) (int, bool) {
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return 0, false
	}
	buf := make([]byte, frameScanLimit)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, false
	}
	buf = buf[:n]

	start, first, found := -1, frameHeader{}, false
	for i := 0; i+4 <= len(buf); i++ {
		h, ok := parseFrameHeader(buf[i:])
		if !ok {
			continue
		}
		// a real frame is followed by another one or by the end of data
		next := i + h.length
		if next+4 <= len(buf) {
			if nh, ok := parseFrameHeader(buf[next:]); !ok || nh.sampleRate != h.sampleRate {
				continue
			}
		}
		start, first, found = i, h, true
		break
	}
	if !found {
		return 0, false
	}

	tagAt := start + 4 + first.sideInfoSize()
	if tagAt+4 <= len(buf) {
		switch string(buf[tagAt : tagAt+4]) {
		case "Xing":
			return 0, false
		case "Info":
			// the Info frame carries no audio; the stream starts after it
			start += first.length
		}
	}
	if vbri := start + 36; vbri+4 <= len(buf) && string(buf[vbri:vbri+4]) == "VBRI" {
		return 0, false
	}

	bitrate := 0
	pos := start
	for i := 0; i < framesCompared && pos+4 <= len(buf); i++ {
		h, ok := parseFrameHeader(buf[pos:])
		if !ok {
			break
		}
		if bitrate != 0 && h.bitrate != bitrate {
			return 0, false
		}
		bitrate = h.bitrate
		pos += h.length
	}
	return bitrate, bitrate > 0
}

// id3HeaderSize returns the size of a leading ID3v2 tag, or 0.
func id3HeaderSize(r io.ReadSeeker) (int64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	header := make([]byte, 10)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, err
	}
	if string(header[:3]) != "ID3" {
		return 0, nil
	}
	// synchsafe integer: 7 significant bits per byte
	raw := binary.BigEndian.Uint32(header[6:10])
	size := int64(raw&0x7f) | int64(raw>>8&0x7f)<<7 | int64(raw>>16&0x7f)<<14 | int64(raw>>24&0x7f)<<21
	size += 10
	if header[5]&0x10 != 0 {
		size += 10 // footer
	}
	return size, nil
}

// flacInfo returns the average bitrate of the audio frames and whether a
// picture block is embedded.
func flacInfo(path string) (int, bool, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	hasArt := false
	for _, block := range f.Meta {
		if block.Type != flac.Picture {
			continue
		}
		if _, err := flacpicture.ParseFromMetaDataBlock(*block); err == nil {
			hasArt = true
			break
		}
	}

	info, err := f.GetStreamInfo()
	if err != nil {
		return 0, hasArt, fmt.Errorf("failed to read STREAMINFO: %w", err)
	}
	if info.SampleRate <= 0 || info.SampleCount <= 0 {
		return 0, hasArt, nil
	}
	seconds := float64(info.SampleCount) / float64(info.SampleRate)
	return int(float64(len(f.Frames)) * 8 / seconds), hasArt, nil
}
