// Package scan walks a storage backend, diffs the observed files against a
// Library aggregate's snapshot, and feeds audio files through tag parsing
// and the ensure/coordinator pipeline. Grounded on the teacher's worker-pool
// + progress-ticker walk style, generalized onto the event-driven domain
// model in place of direct SQL upserts.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"melodia/internal/appevents"
	"melodia/internal/domain"
	"melodia/internal/ensure"
	"melodia/internal/eventbus"
	"melodia/internal/metadata"
	"melodia/internal/snowflake"
)

// Backend is the minimal storage capability the scan engine needs: list
// every file under the library root with its metadata.
type Backend interface {
	// Walk calls visit once per file found under root, in no particular
	// order. An error returned from visit stops the walk and is returned
	// from Walk.
	Walk(ctx context.Context, root domain.MediaPath, visit func(domain.FileMeta) error) error
	// LocalPath resolves a MediaPath to an os.Open-able filesystem path,
	// used by the metadata parser to read tags directly.
	LocalPath(path domain.MediaPath) (string, error)
}

type Engine struct {
	backend  Backend
	library  *domain.Library
	repo     domain.LibraryRepository
	ids      *snowflake.Generator
	bus      *eventbus.Bus
	parser   *metadata.Parser
	audio    *ensure.AudioFileHandler
	artist   *ensure.ArtistHandler
	genre    *ensure.GenreHandler
	album    *ensure.AlbumHandler
	workers  int
	log      *slog.Logger
	scanning int32
}

func NewEngine(
	backend Backend,
	library *domain.Library,
	repo domain.LibraryRepository,
	ids *snowflake.Generator,
	bus *eventbus.Bus,
	parser *metadata.Parser,
	audio *ensure.AudioFileHandler,
	artist *ensure.ArtistHandler,
	genre *ensure.GenreHandler,
	album *ensure.AlbumHandler,
	workers int,
	log *slog.Logger,
) *Engine {
	if workers < 1 {
		workers = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		backend: backend, library: library, repo: repo, ids: ids, bus: bus,
		parser: parser, audio: audio, artist: artist, genre: genre, album: album,
		workers: workers, log: log,
	}
}

func (e *Engine) IsScanning() bool { return atomic.LoadInt32(&e.scanning) == 1 }

// Result summarizes one completed scan pass.
type Result struct {
	FilesFound   int
	FilesAdded   int
	FilesUpdated int
	FilesRemoved int
	Duration     time.Duration
	Errors       []error
}

// Run performs one full walk-diff-ingest pass. Errors walking individual
// files are collected, never abort the scan.
func (e *Engine) Run(ctx context.Context, fullScan bool) (*Result, error) {
	if !atomic.CompareAndSwapInt32(&e.scanning, 0, 1) {
		return nil, fmt.Errorf("scan already running")
	}
	defer atomic.StoreInt32(&e.scanning, 0)

	start := time.Now()
	result := &Result{}

	if err := e.library.StartScan(fullScan); err != nil {
		return nil, err
	}
	e.publishLibraryEvents()

	type found struct {
		meta domain.FileMeta
		typ  domain.FileType
	}
	filesChan := make(chan found, 256)

	var walkErr error
	go func() {
		defer close(filesChan)
		walkErr = e.backend.Walk(ctx, e.library.Path, func(meta domain.FileMeta) error {
			typ := domain.ClassifyFileType(meta.Suffix)
			if typ != domain.FileTypeAudio {
				return nil
			}
			select {
			case filesChan <- found{meta: meta, typ: typ}:
			case <-ctx.Done():
			}
			return nil
		})
	}()

	var mu sync.Mutex
	var wg sync.WaitGroup
	var processed int64

	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range filesChan {
				mu.Lock()
				result.FilesFound++
				mu.Unlock()

				n := atomic.AddInt64(&processed, 1)
				if n%1000 == 0 {
					e.log.Info("scan progress", "processed", n, "size_processed", humanize.Bytes(uint64(f.meta.Size)*uint64(n)))
				}

				item := domain.NewLibraryItem(e.ids.Next(), e.library.ID, f.meta, f.typ)
				mu.Lock()
				e.library.AddItem(item)
				mu.Unlock()

				if err := e.ingestAudioFile(ctx, f.meta); err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("%s: %w", f.meta.Path.Path, err))
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if walkErr != nil {
		e.library.AbortScan()
		e.publishLibraryEvents()
		return nil, fmt.Errorf("walk library: %w", walkErr)
	}

	e.library.FinishScan()
	result.FilesRemoved = e.countRemovals()
	e.publishLibraryEvents()

	if err := e.repo.Save(e.library); err != nil {
		return nil, fmt.Errorf("save library: %w", err)
	}

	result.Duration = time.Since(start)
	e.log.Info("scan complete", "found", result.FilesFound, "removed", result.FilesRemoved, "duration", result.Duration, "errors", len(result.Errors))
	return result, nil
}

func (e *Engine) countRemovals() int {
	n := 0
	for _, evt := range e.library.PendingEvents {
		if evt.Kind == domain.LibraryEventFileRemoved {
			n++
		}
	}
	return n
}

func (e *Engine) publishLibraryEvents() {
	for _, evt := range e.library.TakeEvents() {
		env := eventbus.Envelope[domain.LibraryEvent]{
			Payload: evt, AggregateID: e.library.ID, Version: evt.Version(), CorrelationID: eventbus.NewCorrelationID(),
		}
		eventbus.Publish(context.Background(), e.bus, env)
	}
}

// ingestAudioFile parses tags, ensures the AudioFile aggregate exists, and
// publishes AudioFileParsed to seed the binding coordinators — each genre
// and participant name triggers its own ensure handler, which in turn
// publishes the Created/Found events the coordinators rendezvous on.
func (e *Engine) ingestAudioFile(ctx context.Context, meta domain.FileMeta) error {
	localPath, err := e.backend.LocalPath(meta.Path)
	if err != nil {
		return err
	}

	af, err := e.audio.EnsureAudioFile(ctx, nil, meta, domain.TechnicalInfo{}, "")
	if err != nil {
		return err
	}

	parsed, err := e.parser.Parse(ctx, localPath, meta.Suffix, af.ID)
	if err != nil {
		return err
	}

	corr := ensure.PublishAudioFileParsed(ctx, e.bus, parsed)
	parentEnv := eventbus.Envelope[appevents.AudioFileParsed]{Payload: parsed, AggregateID: af.ID, CorrelationID: corr}

	if parsed.AlbumName != "" {
		if _, err := e.album.EnsureAlbum(ctx, parentEnv, parsed.AlbumName); err != nil {
			e.log.Error("ensure album failed", "error", err, "album", parsed.AlbumName)
		}
	}
	for _, p := range parsed.Participants {
		if _, err := e.artist.EnsureArtist(ctx, parentEnv, p.Name); err != nil {
			e.log.Error("ensure artist failed", "error", err, "artist", p.Name)
		}
	}
	for _, g := range parsed.Genres {
		if _, err := e.genre.EnsureGenre(ctx, parentEnv, g); err != nil {
			e.log.Error("ensure genre failed", "error", err, "genre", g)
		}
	}

	return nil
}
