// Package metadata extracts tag and technical information from an audio
// file and produces the normalized appevents.AudioFileParsed event the
// binding coordinators consume. Tag reading is layered: dhowden/tag first,
// falling back to format-specific libraries for embedded pictures dhowden
// does not expose on every container.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"

	"melodia/internal/appevents"
	"melodia/internal/domain"
)

// Parser reads tags + technical attributes for one file path.
type Parser struct {
	// IgnoredArticles are stripped from sort names; nil falls back to
	// domain.DefaultIgnoredArticles.
	IgnoredArticles []string
	FFprobePath     string
}

func New(ffprobePath string) *Parser {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Parser{IgnoredArticles: domain.DefaultIgnoredArticles(), FFprobePath: ffprobePath}
}

// Parse reads path and builds the AudioFileParsed payload. audioFileID is
// supplied by the caller once the AudioFile aggregate has been ensured —
// Parse itself only reads the file.
func (p *Parser) Parse(ctx context.Context, path string, suffix string, audioFileID int64) (appevents.AudioFileParsed, error) {
	f, err := os.Open(path)
	if err != nil {
		return appevents.AudioFileParsed{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return appevents.AudioFileParsed{}, fmt.Errorf("read tags from %s: %w", path, err)
	}

	technical, err := p.probe(ctx, path)
	if err != nil {
		return appevents.AudioFileParsed{}, fmt.Errorf("probe %s: %w", path, err)
	}

	picture := m.Picture()
	var embedded []byte
	if picture != nil {
		embedded = picture.Data
	} else {
		embedded = p.fallbackPicture(path, suffix)
	}

	title, artist, album := m.Title(), m.Artist(), m.Album()
	if strings.EqualFold(suffix, "flac") && (title == "" || artist == "" || album == "") {
		if vc, ok := flacVorbisComment(path); ok {
			title = firstNonEmpty(title, vc.title)
			artist = firstNonEmpty(artist, vc.artist)
			album = firstNonEmpty(album, vc.album)
		}
	}

	evt := appevents.AudioFileParsed{
		AudioFileID:     audioFileID,
		Title:           firstNonEmpty(title, strings.TrimSuffix(fileBase(path), fileExt(path))),
		AlbumName:       album,
		Participants:    p.participantsWithFallback(m, artist),
		Genres:          genreList(m.Genre()),
		Compilation:     isCompilation(m),
		Technical:       technical,
		EmbeddedPicture: embedded,
	}

	if track, _ := m.Track(); track > 0 {
		evt.TrackNumber = &track
	}
	if disc, _ := m.Disc(); disc > 0 {
		evt.DiscNumber = &disc
	}
	if year := m.Year(); year > 0 {
		evt.Year = &year
	}
	if lyrics := m.Lyrics(); lyrics != "" {
		evt.Lyrics = &lyrics
	}

	return evt, nil
}

func (p *Parser) participantsWithFallback(m tag.Metadata, resolvedArtist string) []domain.ParticipantMeta {
	var out []domain.ParticipantMeta
	if resolvedArtist != "" {
		out = append(out, domain.ParticipantMeta{Name: resolvedArtist, Role: domain.RoleArtist})
	}
	if albumArtist := m.AlbumArtist(); albumArtist != "" && albumArtist != resolvedArtist {
		out = append(out, domain.ParticipantMeta{Name: albumArtist, Role: domain.RoleAlbumArtist})
	}
	return out
}

type vorbisComment struct {
	title, artist, album string
}

// flacVorbisComment reads the VORBIS_COMMENT metadata block directly —
// dhowden/tag sometimes leaves Title/Artist/Album empty on FLAC files using
// nonstandard field casing it doesn't normalize.
func flacVorbisComment(path string) (vorbisComment, bool) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return vorbisComment{}, false
	}
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		var vc vorbisComment
		if vals, err := cmt.Get(flacvorbis.FIELD_TITLE); err == nil && len(vals) > 0 {
			vc.title = vals[0]
		}
		if vals, err := cmt.Get(flacvorbis.FIELD_ARTIST); err == nil && len(vals) > 0 {
			vc.artist = vals[0]
		}
		if vals, err := cmt.Get(flacvorbis.FIELD_ALBUM); err == nil && len(vals) > 0 {
			vc.album = vals[0]
		}
		return vc, true
	}
	return vorbisComment{}, false
}

func isCompilation(m tag.Metadata) bool {
	albumArtist := strings.ToLower(strings.TrimSpace(m.AlbumArtist()))
	return albumArtist == "various artists" || albumArtist == "various"
}

func genreList(genre string) []string {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return nil
	}
	parts := strings.Split(genre, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType        string `json:"codec_type"`
		SampleRate       string `json:"sample_rate"`
		Channels         int    `json:"channels"`
		BitsPerSample    int    `json:"bits_per_sample"`
		BitsPerRawSample string `json:"bits_per_raw_sample"`
	} `json:"streams"`
}

// probe shells out to ffprobe for duration/bit-rate/sample-rate/channels/bit
// depth — dhowden/tag does not expose these.
func (p *Parser) probe(ctx context.Context, path string) (domain.TechnicalInfo, error) {
	cmd := exec.CommandContext(ctx, p.FFprobePath, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return domain.TechnicalInfo{}, fmt.Errorf("ffprobe: %w", err)
	}

	var data ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &data); err != nil {
		return domain.TechnicalInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := domain.TechnicalInfo{}
	if dur, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
		info.DurationSeconds = int(dur)
	}
	if br := parseIntSafe(data.Format.BitRate); br > 0 {
		info.BitRateKbps = br / 1000
	}

	for _, stream := range data.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		info.SampleRateHz = parseIntSafe(stream.SampleRate)
		info.Channels = stream.Channels
		switch {
		case stream.BitsPerSample > 0:
			info.BitDepth = stream.BitsPerSample
		case stream.BitsPerRawSample != "":
			info.BitDepth = parseIntSafe(stream.BitsPerRawSample)
		}
		if info.BitDepth == 0 {
			info.BitDepth = 16
		}
		break
	}
	return info, nil
}

// fallbackPicture covers containers/tags where dhowden/tag's generic
// picture reader comes back empty: FLAC (flacvorbis/flacpicture METADATA
// blocks) and MP3 (raw ID3v2 APIC frame) each need their own reader.
func (p *Parser) fallbackPicture(path, suffix string) []byte {
	switch strings.ToLower(suffix) {
	case "flac":
		return flacEmbeddedPicture(path)
	case "mp3":
		return id3EmbeddedPicture(path)
	default:
		return nil
	}
}

func flacEmbeddedPicture(path string) []byte {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil
	}
	for _, block := range f.Meta {
		if block.Type != flac.PictureBlock {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*block)
		if err == nil {
			return pic.ImageData
		}
	}
	return nil
}

func id3EmbeddedPicture(path string) []byte {
	id3Tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"Attached picture"}})
	if err != nil {
		return nil
	}
	defer id3Tag.Close()
	frames := id3Tag.GetFrames(id3Tag.CommonID("Attached picture"))
	for _, f := range frames {
		if pic, ok := f.(id3v2.PictureFrame); ok {
			return pic.Picture
		}
	}
	return nil
}

func parseIntSafe(s string) int {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func fileBase(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func fileExt(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}
