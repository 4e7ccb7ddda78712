// Package search maintains a bleve full-text index over audio files, albums,
// and artists, kept current by subscribing to the same domain events the
// projectors consume rather than by a separate reindex pass per write.
package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"melodia/internal/domain"
	"melodia/internal/eventbus"
)

type documentKind string

const (
	kindSong   documentKind = "song"
	kindAlbum  documentKind = "album"
	kindArtist documentKind = "artist"
)

type document struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Year     int    `json:"year"`
	Duration int    `json:"duration"`
}

// Result names one hit: its kind and the id to resolve against the owning
// repository.
type Result struct {
	Type string
	ID   int64
}

type Options struct {
	Query string
	Type  string // "song", "album", "artist", or empty for all
	Limit int
}

// Index wraps a bleve index kept warm by domain event subscriptions.
type Index struct {
	index      bleve.Index
	audioFiles domain.AudioFileRepository
	albums     domain.AlbumRepository
	artists    domain.ArtistRepository
}

// Open opens the index at dir, creating it with the standard field mapping
// if absent.
func Open(dir string, audioFiles domain.AudioFileRepository, albums domain.AlbumRepository, artists domain.ArtistRepository) (*Index, error) {
	path := filepath.Join(dir, "search_index")
	idx, err := bleve.Open(path)
	if err != nil {
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create search index: %w", err)
		}
	}
	return &Index{index: idx, audioFiles: audioFiles, albums: albums, artists: artists}, nil
}

func buildMapping() *bleve.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"

	keyword := bleve.NewKeywordFieldMapping()
	numeric := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("type", keyword)
	doc.AddFieldMappingsAt("title", text)
	doc.AddFieldMappingsAt("artist", text)
	doc.AddFieldMappingsAt("album", text)
	doc.AddFieldMappingsAt("year", numeric)
	doc.AddFieldMappingsAt("duration", numeric)

	mapping := bleve.NewIndexMapping()
	mapping.DefaultMapping = doc
	return mapping
}

func (x *Index) Close() error { return x.index.Close() }

// Register subscribes the index to the events that make a document
// indexable or re-indexable.
func (x *Index) Register(bus *eventbus.Bus) {
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.AudioFileEvent]) {
		switch env.Payload.Kind {
		case domain.AudioFileEventCreated, domain.AudioFileEventFound, domain.AudioFileEventBoundToAlbum:
			x.indexAudioFile(env.Payload.AudioFile)
		case domain.AudioFileEventDeleted:
			x.remove(kindSong, env.Payload.AudioFile)
		}
	})
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.AlbumEvent]) {
		if env.Payload.Kind == domain.AlbumEventCreated || env.Payload.Kind == domain.AlbumEventFound {
			x.indexAlbum(env.Payload.AlbumID)
		}
	})
	eventbus.SubscribeFunc(bus, func(ctx context.Context, env eventbus.Envelope[domain.ArtistEvent]) {
		if env.Payload.Kind == domain.ArtistEventCreated || env.Payload.Kind == domain.ArtistEventFound {
			x.indexArtist(env.Payload.ArtistID)
		}
	})
}

func (x *Index) indexAudioFile(id int64) {
	af, err := x.audioFiles.FindByID(id)
	if err != nil {
		return
	}
	doc := document{ID: docID(kindSong, id), Type: string(kindSong), Title: af.Title, Duration: af.Technical.DurationSeconds}
	if af.AlbumID != nil {
		if album, err := x.albums.FindByID(*af.AlbumID); err == nil {
			doc.Album = album.Name
			if album.Year != nil {
				doc.Year = *album.Year
			}
		}
	}
	if af.ArtistID != nil {
		if artist, err := x.artists.FindByID(*af.ArtistID); err == nil {
			doc.Artist = artist.Name
		}
	}
	_ = x.index.Index(doc.ID, doc)
}

func (x *Index) indexAlbum(id int64) {
	album, err := x.albums.FindByID(id)
	if err != nil {
		return
	}
	doc := document{ID: docID(kindAlbum, id), Type: string(kindAlbum), Title: album.Name}
	if album.Year != nil {
		doc.Year = *album.Year
	}
	if len(album.ArtistIDs) > 0 {
		if artist, err := x.artists.FindByID(album.ArtistIDs[0]); err == nil {
			doc.Artist = artist.Name
		}
	}
	_ = x.index.Index(doc.ID, doc)
}

func (x *Index) indexArtist(id int64) {
	artist, err := x.artists.FindByID(id)
	if err != nil {
		return
	}
	doc := document{ID: docID(kindArtist, id), Type: string(kindArtist), Title: artist.Name, Artist: artist.Name}
	_ = x.index.Index(doc.ID, doc)
}

func (x *Index) remove(kind documentKind, id int64) {
	_ = x.index.Delete(docID(kind, id))
}

func docID(kind documentKind, id int64) string {
	return string(kind) + "_" + strconv.FormatInt(id, 10)
}

// Search runs opts against the index and returns bare type+id pairs; callers
// resolve full records through the usual repositories.
func (x *Index) Search(opts Options) ([]Result, error) {
	q := buildQuery(opts)
	req := bleve.NewSearchRequest(q)
	if opts.Limit > 0 {
		req.Size = opts.Limit
	}
	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		parts := strings.SplitN(hit.ID, "_", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Result{Type: parts[0], ID: id})
	}
	return out, nil
}

func buildQuery(opts Options) query.Query {
	var queries []query.Query
	if opts.Query != "" {
		title := bleve.NewMatchQuery(opts.Query)
		title.SetField("title")
		title.SetBoost(2.0)

		artist := bleve.NewMatchQuery(opts.Query)
		artist.SetField("artist")
		artist.SetBoost(1.5)

		album := bleve.NewMatchQuery(opts.Query)
		album.SetField("album")

		queries = append(queries, bleve.NewDisjunctionQuery(title, artist, album))
	}
	if opts.Type != "" {
		t := bleve.NewTermQuery(opts.Type)
		t.SetField("type")
		queries = append(queries, t)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
