package tagstore

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

const popmFrameID = "POPM"

func openID3(path string) (*id3v2.Tag, error) {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open ID3 tag: %w", err)
	}
	t.SetDefaultEncoding(id3v2.EncodingUTF8)
	return t, nil
}

func writeMP3Fields(path string, update FieldUpdate) error {
	t, err := openID3(path)
	if err != nil {
		return err
	}
	defer t.Close()

	if update.Genre != "" {
		t.SetGenre(update.Genre)
	}
	if update.Artist != "" {
		t.SetArtist(update.Artist)
	}
	if update.Year != "" {
		t.SetYear(update.Year)
	}
	if err := t.Save(); err != nil {
		return fmt.Errorf("failed to save ID3 tag: %w", err)
	}
	return nil
}

// writeMP3Rating replaces our POPM frame and keeps those of other players.
func writeMP3Rating(path string, value uint8) error {
	t, err := openID3(path)
	if err != nil {
		return err
	}
	defer t.Close()

	var keep []id3v2.PopularimeterFrame
	for _, f := range t.GetFrames(popmFrameID) {
		if pf, ok := f.(id3v2.PopularimeterFrame); ok && pf.Email != RatingEmail {
			keep = append(keep, pf)
		}
	}
	t.DeleteFrames(popmFrameID)
	for _, pf := range keep {
		t.AddFrame(popmFrameID, pf)
	}
	t.AddFrame(popmFrameID, id3v2.PopularimeterFrame{
		Email:   RatingEmail,
		Rating:  value,
		Counter: big.NewInt(0),
	})

	if err := t.Save(); err != nil {
		return fmt.Errorf("failed to save ID3 tag: %w", err)
	}
	return nil
}

// editVorbis rewrites the VORBIS_COMMENT block of a FLAC file, creating it
// when missing. Other metadata blocks, artwork included, are kept as is.
func editVorbis(path string, edit func(c *flacvorbis.MetaDataBlockVorbisComment)) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	idx := -1
	comment := flacvorbis.New()
	for i, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		parsed, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return fmt.Errorf("failed to parse vorbis comment: %w", err)
		}
		idx, comment = i, parsed
		break
	}

	edit(comment)

	block := comment.Marshal()
	if idx >= 0 {
		f.Meta[idx] = &block
	} else {
		f.Meta = append(f.Meta, &block)
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}
	return nil
}

// setComment replaces every value of field with value.
func setComment(c *flacvorbis.MetaDataBlockVorbisComment, field, value string) {
	if value == "" {
		return
	}
	prefix := strings.ToUpper(field) + "="
	kept := c.Comments[:0]
	for _, cmt := range c.Comments {
		if !strings.HasPrefix(strings.ToUpper(cmt), prefix) {
			kept = append(kept, cmt)
		}
	}
	c.Comments = kept
	c.Add(field, value)
}

func writeFLACFields(path string, update FieldUpdate) error {
	return editVorbis(path, func(c *flacvorbis.MetaDataBlockVorbisComment) {
		setComment(c, flacvorbis.FIELD_GENRE, update.Genre)
		setComment(c, flacvorbis.FIELD_ARTIST, update.Artist)
		setComment(c, flacvorbis.FIELD_DATE, update.Year)
	})
}

func writeFLACRating(path string, value uint8) error {
	return editVorbis(path, func(c *flacvorbis.MetaDataBlockVorbisComment) {
		setComment(c, "RATING", strconv.Itoa(int(value)))
	})
}
