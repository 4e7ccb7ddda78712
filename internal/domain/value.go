// Package domain holds the aggregates and value objects of the catalog:
// Library, AudioFile, Album, Artist, Genre, CoverArt, Annotation, Player,
// PlayQueue, Playlist. Aggregates reference each other only by id — there are
// no back-pointers — and each owns a pending-event queue drained by its
// service after every mutation.
package domain

import (
	"strings"
	"time"
)

// MediaPath is a value object: a storage protocol plus a path within it.
// Equality is structural.
type MediaPath struct {
	Protocol string
	Path     string
}

// ParentPath returns a new MediaPath with the last '/'-separated segment
// removed. The leading '/' is preserved.
func (m MediaPath) ParentPath() MediaPath {
	p := strings.TrimRight(m.Path, "/")
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return MediaPath{Protocol: m.Protocol, Path: "/"}
	}
	return MediaPath{Protocol: m.Protocol, Path: p[:idx]}
}

func (m MediaPath) String() string {
	return m.Protocol + "://" + m.Path
}

// FileMeta is an immutable snapshot of a file at scan time.
type FileMeta struct {
	Path    MediaPath
	DirPath MediaPath
	Size    int64
	Suffix  string // lower-cased extension, no leading dot
	Mtime   time.Time
	Atime   time.Time
	Ctime   time.Time
	Hash    *string
}

// FileType classifies a scanned file for library bookkeeping purposes.
type FileType int

const (
	FileTypeAudio FileType = iota
	FileTypeImage
	FileTypeNfo
	FileTypeOther
)

var audioSuffixes = map[string]bool{
	"mp3": true, "flac": true, "ogg": true, "oga": true, "opus": true,
	"m4a": true, "aac": true, "wav": true, "wma": true, "aiff": true,
	"aif": true, "ape": true, "dsf": true, "dff": true, "wv": true,
}

var imageSuffixes = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true, "bmp": true,
}

// ClassifyFileType classifies by lower-cased suffix (sans dot).
func ClassifyFileType(suffix string) FileType {
	s := strings.ToLower(suffix)
	switch {
	case audioSuffixes[s]:
		return FileTypeAudio
	case imageSuffixes[s]:
		return FileTypeImage
	case s == "nfo":
		return FileTypeNfo
	default:
		return FileTypeOther
	}
}

// ParticipantRole is the role a participant played on a work.
type ParticipantRole int

const (
	RoleAlbumArtist ParticipantRole = iota
	RoleArtist
	RolePerformer
)

// ParticipantSubRole further qualifies a Performer role.
type ParticipantSubRole int

const (
	SubRoleNone ParticipantSubRole = iota
	SubRoleBass
	SubRoleDrums
	SubRoleGuitar
	SubRoleKeyboard
	SubRoleVocals
	SubRoleOther
)

// ParticipantWorkType names the kind of work a participant is attached to.
type ParticipantWorkType int

const (
	WorkTypeAlbum ParticipantWorkType = iota
	WorkTypeAudioFile
)

// ParticipantMeta is the raw, tag-derived shape of a participant before ids
// are resolved — the shape AudioFileParsed carries.
type ParticipantMeta struct {
	Name    string
	Role    ParticipantRole
	SubRole *ParticipantSubRole
}

// Participant is the resolved shape an AudioFile aggregate stores once the
// artist id is known.
type Participant struct {
	ArtistID int64
	Role     ParticipantRole
	SubRole  *ParticipantSubRole
	WorkID   int64
	WorkType ParticipantWorkType
}

// NormalizeSortName strips the configured ignored articles from the head and
// lower-cases, used as Album's/Artist's natural key.
func NormalizeSortName(name string, ignoredArticles []string) string {
	n := strings.TrimSpace(strings.ToLower(name))
	for _, article := range ignoredArticles {
		a := strings.ToLower(article)
		prefix := a + " "
		if strings.HasPrefix(n, prefix) {
			n = strings.TrimSpace(n[len(prefix):])
			break
		}
	}
	return n
}

var defaultIgnoredArticles = []string{"the", "la", "le", "les", "el", "los", "las", "a", "an"}

// DefaultIgnoredArticles is the fallback list used when config supplies none.
func DefaultIgnoredArticles() []string { return defaultIgnoredArticles }

// AudioQuality classifies technical quality for UI/sort purposes.
type AudioQuality int

const (
	QualityLow AudioQuality = iota
	QualityStandard
	QualityLossless
	QualityHiRes
)

// ClassifyQuality derives quality from suffix + sample rate (Hz) + bit depth
// + bit rate (kbps), per spec.md §3: lossless HiRes (sr>=95k or depth>=24),
// lossless Lossless (sr>=44.1k and depth>=16), lossless Standard; lossy
// Standard (sr>=47k & br>=320, or sr>=44.1k & br>=192), otherwise Low.
func ClassifyQuality(suffix string, sampleRate int, bitDepth int, bitRate int) AudioQuality {
	lossless := isLosslessSuffix(suffix)
	if lossless {
		switch {
		case sampleRate >= 95000 || bitDepth >= 24:
			return QualityHiRes
		case sampleRate >= 44100 && bitDepth >= 16:
			return QualityLossless
		default:
			return QualityStandard
		}
	}
	switch {
	case sampleRate >= 47000 && bitRate >= 320:
		return QualityStandard
	case sampleRate >= 44100 && bitRate >= 192:
		return QualityStandard
	default:
		return QualityLow
	}
}

var losslessSuffixes = map[string]bool{
	"flac": true, "wav": true, "aiff": true, "aif": true, "ape": true,
	"dsf": true, "dff": true, "wv": true, "alac": true,
}

func isLosslessSuffix(suffix string) bool {
	return losslessSuffixes[strings.ToLower(suffix)]
}

// IsLosslessSuffix reports whether suffix names a lossless container, the
// same table ClassifyQuality and the streaming engine's transcode decision
// both key off of.
func IsLosslessSuffix(suffix string) bool {
	return isLosslessSuffix(suffix)
}
