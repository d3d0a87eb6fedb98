package tagstore

import (
	"bytes"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"autotag/internal/shared"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
)

func TestRatingByte(t *testing.T) {
	want := map[int]uint8{1: 1, 2: 64, 3: 128, 4: 192, 5: 255}
	for rating, value := range want {
		got, err := RatingByte(rating)
		if err != nil || got != value {
			t.Errorf("RatingByte(%d) = (%d, %v), want %d", rating, got, err, value)
		}
	}
	for _, bad := range []int{0, 6, -1} {
		if _, err := RatingByte(bad); err == nil {
			t.Errorf("RatingByte(%d) should fail", bad)
		}
	}
}

func TestTagGenre(t *testing.T) {
	tests := map[string]string{
		"House":                      "House",
		"Afro House / Melodic House": "Afro House; Melodic House",
		"Club/House":                 "Club; House",
	}
	for in, want := range tests {
		if got := TagGenre(in); got != want {
			t.Errorf("TagGenre(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatOf(t *testing.T) {
	if f, ok := FormatOf("/music/Song.MP3"); !ok || f != FormatMP3 {
		t.Errorf("mp3 not detected: %v %v", f, ok)
	}
	if f, ok := FormatOf("song.flac"); !ok || f != FormatFLAC {
		t.Errorf("flac not detected: %v %v", f, ok)
	}
	if _, ok := FormatOf("song.wav"); ok {
		t.Error("wav must be unsupported")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	s := New(nil)
	if _, err := s.ReadFields("song.wav"); !errors.Is(err, shared.ErrUnsupportedFormat) {
		t.Errorf("ReadFields: %v", err)
	}
	if err := s.WriteFields("song.ogg", FieldUpdate{Genre: "House"}); !errors.Is(err, shared.ErrUnsupportedFormat) {
		t.Errorf("WriteFields: %v", err)
	}
	if err := s.WriteRating("song.mp3", 9); err == nil {
		t.Error("WriteRating should reject out of range ratings")
	}
}

// TestMP3TagWrites works on a file holding only an ID3 tag; no audio is
// needed to exercise the frame handling.
func TestMP3TagWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	seed, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	seed.AddFrame("POPM", id3v2.PopularimeterFrame{Email: "someone@player", Rating: 10, Counter: big.NewInt(7)})
	seed.SetTitle("Dynamite (Ale Lucchi Afro House Remix)")
	if err := seed.Save(); err != nil {
		t.Fatal(err)
	}
	seed.Close()

	s := New(nil)
	if err := s.WriteFields(path, FieldUpdate{Genre: "Afro House / Melodic House", Artist: "Taio Cruz", Year: "2010"}); err != nil {
		t.Fatalf("WriteFields: %v", err)
	}
	if err := s.WriteRating(path, 3); err != nil {
		t.Fatalf("WriteRating: %v", err)
	}
	if err := s.WriteRating(path, 4); err != nil {
		t.Fatalf("WriteRating: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer tag.Close()

	if tag.Genre() != "Afro House; Melodic House" {
		t.Errorf("genre = %q", tag.Genre())
	}
	if tag.Artist() != "Taio Cruz" {
		t.Errorf("artist = %q", tag.Artist())
	}
	if tag.Title() != "Dynamite (Ale Lucchi Afro House Remix)" {
		t.Errorf("title lost: %q", tag.Title())
	}

	ratings := map[string]uint8{}
	for _, f := range tag.GetFrames("POPM") {
		pf, ok := f.(id3v2.PopularimeterFrame)
		if !ok {
			t.Fatalf("unexpected frame type %T", f)
		}
		ratings[pf.Email] = pf.Rating
	}
	if len(ratings) != 2 || ratings[RatingEmail] != 192 || ratings["someone@player"] != 10 {
		t.Errorf("POPM frames = %v", ratings)
	}
}

func TestSetComment(t *testing.T) {
	c := flacvorbis.New()
	c.Comments = []string{"GENRE=Pop", "genre=Dance", "TITLE=Song"}

	setComment(c, flacvorbis.FIELD_GENRE, "Afro House; House")
	setComment(c, flacvorbis.FIELD_ARTIST, "")

	genres, err := c.Get(flacvorbis.FIELD_GENRE)
	if err != nil {
		t.Fatal(err)
	}
	if len(genres) != 1 || genres[0] != "Afro House; House" {
		t.Errorf("GENRE = %v", genres)
	}
	if titles, _ := c.Get(flacvorbis.FIELD_TITLE); len(titles) != 1 {
		t.Errorf("TITLE should be untouched, got %v", titles)
	}
	if artists, _ := c.Get(flacvorbis.FIELD_ARTIST); len(artists) != 0 {
		t.Errorf("empty values must not be written, got %v", artists)
	}
}

func TestID3HeaderSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagged.mp3")
	// ID3v2.4 header with synchsafe size 0x00 0x00 0x02 0x01 = 257
	header := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 2, 1}
	if err := os.WriteFile(path, append(header, make([]byte, 300)...), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	size, err := id3HeaderSize(f)
	if err != nil {
		t.Fatal(err)
	}
	if size != 267 {
		t.Errorf("size = %d, want 267", size)
	}
}

// mpegFrames returns n silent MPEG-1 Layer III stereo frames at 44.1 kHz
// using the encoder padding schedule. kbps must be in the MPEG-1 table.
func mpegFrames(n, kbps int) []byte {
	idx := 0
	for i, v := range mpeg1Bitrates {
		if v == kbps {
			idx = i
		}
	}
	var out []byte
	rest := 0
	for i := 0; i < n; i++ {
		pad := 0
		rest += 144 * kbps * 1000 % 44100
		if rest >= 44100 {
			rest -= 44100
			pad = 1
		}
		frame := make([]byte, 144*kbps*1000/44100+pad)
		frame[0], frame[1], frame[2], frame[3] = 0xFF, 0xFB, byte(idx<<4|pad<<1), 0x00
		out = append(out, frame...)
	}
	return out
}

func withTag(frame []byte, tag string) []byte {
	frame = append([]byte(nil), frame...)
	copy(frame[4+32:], tag)
	return frame
}

func TestMP3BitrateCBR(t *testing.T) {
	first := mpegFrames(1, 320)
	tests := []struct {
		name string
		data []byte
	}{
		{"plain stream", mpegFrames(1000, 320)},
		{"after id3 tag", append(append([]byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 20}, make([]byte, 20)...), mpegFrames(500, 320)...)},
		{"info frame", append(withTag(first, "Info"), mpegFrames(500, 320)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cbr.mp3")
			if err := os.WriteFile(path, tt.data, 0644); err != nil {
				t.Fatal(err)
			}
			got, err := mp3Bitrate(path)
			if err != nil {
				t.Fatalf("mp3Bitrate: %v", err)
			}
			if got != 320_000 {
				t.Errorf("bitrate = %d, want 320000", got)
			}
		})
	}
}

func TestDeclaredBitrateVBR(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"xing frame", append(withTag(mpegFrames(1, 128), "Xing"), mpegFrames(50, 320)...)},
		{"mixed bitrates", append(mpegFrames(2, 320), mpegFrames(10, 128)...)},
		{"no frames", make([]byte, 4096)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := declaredBitrate(bytes.NewReader(tt.data), 0); ok {
				t.Errorf("declaredBitrate = %d, want a variable bitrate result", got)
			}
		})
	}
}

func TestParseFrameHeader(t *testing.T) {
	h, ok := parseFrameHeader([]byte{0xFF, 0xFB, 0xE2, 0xC0})
	if !ok {
		t.Fatal("expected a valid header")
	}
	if h.bitrate != 320_000 || h.sampleRate != 44100 || h.length != 1045 || !h.mpeg1 || !h.mono {
		t.Errorf("header = %+v", h)
	}
	if _, ok := parseFrameHeader([]byte{0xFF, 0xFB, 0xF0, 0x00}); ok {
		t.Error("bitrate index 15 must be rejected")
	}
}
