package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"melodia/internal/config"
	"melodia/internal/coordinator"
	"melodia/internal/coverart"
	"melodia/internal/database"
	"melodia/internal/domain"
	"melodia/internal/ensure"
	"melodia/internal/eventbus"
	"melodia/internal/handlers"
	"melodia/internal/jobs"
	"melodia/internal/metadata"
	"melodia/internal/playback"
	"melodia/internal/playlist"
	"melodia/internal/projector"
	"melodia/internal/repository"
	"melodia/internal/scan"
	"melodia/internal/search"
	"melodia/internal/services/hls"
	"melodia/internal/snowflake"
	"melodia/internal/storage"
	"melodia/internal/streamengine"
	"melodia/internal/streamtoken"
	"melodia/migrations"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.New(database.Config{DSN: cfg.DBDSN})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.Pool)
	if err := migrator.Migrate(context.Background()); err != nil {
		log.Fatal("failed to run database migrations:", err)
	}

	bus := eventbus.New(logger)
	ids := snowflake.NewGenerator(workerIDFromEnv())

	artistRepo := repository.NewArtistRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	genreRepo := repository.NewGenreRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	albumRepo := repository.NewAlbumRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	audioFileRepo := repository.NewAudioFileRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	libraryRepo := repository.NewLibraryRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	coverArtRepo := repository.NewCoverArtRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	annotationRepo := repository.NewAnnotationRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	playerRepo := repository.NewPlayerRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	playQueueRepo := repository.NewPlayQueueRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	playlistRepo := repository.NewPlaylistRepo(db, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)

	artistHandler := ensure.NewArtistHandler(artistRepo, ids, bus, logger, cfg.IgnoredArticles)
	genreHandler := ensure.NewGenreHandler(genreRepo, ids, bus, logger)
	albumHandler := ensure.NewAlbumHandler(albumRepo, audioFileRepo, ids, bus, logger, cfg.IgnoredArticles)
	audioFileHandler := ensure.NewAudioFileHandler(audioFileRepo, ids, bus, logger)

	coordinator.NewBindToAlbumCoordinator(albumHandler, logger).Register(bus)
	coordinator.NewBindToAudioFileCoordinator(audioFileHandler, logger).Register(bus)

	playlistService := playlist.NewService(playlistRepo, ids, logger)
	playlistHandler := handlers.NewPlaylistHandler(playlistService)

	playbackService := playback.NewService(playerRepo, playQueueRepo, annotationRepo, ids, logger)
	playbackHandler := handlers.NewPlaybackHandler(playbackService)

	searchIndex, err := search.Open(cfg.SearchIndexPath, audioFileRepo, albumRepo, artistRepo)
	if err != nil {
		log.Fatal("failed to open search index:", err)
	}
	defer searchIndex.Close()
	searchIndex.Register(bus)

	statsProjector := projector.New(db, audioFileRepo, ids, cfg.MediaRoot, cfg.MemtableSizeThreshold, cfg.MemtableSizeThreshold, cfg.MemtableFlushTimeout, cfg.MemtablePersistWorkers, logger)
	statsProjector.Register(bus)

	tokenSigner := streamtoken.NewSigner(cfg.StreamTokenSecret, cfg.StreamTokenTTL)
	tokenHandler := handlers.NewStreamTokenHandler(tokenSigner)

	parser := metadata.New(cfg.FFprobePath)

	backend, err := storage.New(context.Background(), storage.Config{
		Protocol:  storageProtocol(cfg),
		LocalRoot: cfg.MediaRoot,
		S3: storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			CacheDir:  cfg.CoverCachePath + "/../s3-cache",
		},
	})
	if err != nil {
		log.Fatal("failed to initialize storage backend:", err)
	}

	library, err := bootstrapLibrary(libraryRepo, ids, cfg.MediaRoot)
	if err != nil {
		log.Fatal("failed to bootstrap library:", err)
	}

	engine := scan.NewEngine(backend, library, libraryRepo, ids, bus, parser, audioFileHandler, artistHandler, genreHandler, albumHandler, cfg.ScanWorkers, logger)

	streamCache, err := hls.NewCache(hls.CacheConfig{
		Dir:       cfg.StreamCachePath,
		MaxSizeMB: cfg.StreamCacheSizeMB,
		MinTTL:    time.Hour,
	})
	if err != nil {
		log.Fatal("failed to initialize stream cache:", err)
	}
	streamEngine := streamengine.NewEngine(
		audioFileRepo, backend, streamCache, streamengine.NewFFmpegTranscoder(cfg.FFmpegPath),
		streamengine.Config{
			DefaultFormat:      cfg.StreamDefaultFormat,
			DefaultBitRateKbps: cfg.StreamDefaultBitRateKbps,
			CacheEnabled:       cfg.StreamCacheEnabled,
		},
		logger,
	)
	streamHandler := streamengine.NewHandler(streamEngine)

	coverCache, err := hls.NewCache(hls.CacheConfig{
		Dir:       cfg.CoverCachePath,
		MaxSizeMB: 500,
		MinTTL:    time.Hour,
	})
	if err != nil {
		log.Fatal("failed to initialize cover art cache:", err)
	}
	placeholder, err := os.ReadFile(cfg.CoverPlaceholderPath)
	if err != nil {
		logger.Warn("no cover art placeholder configured, misses will 404", "path", cfg.CoverPlaceholderPath, "error", err)
		placeholder = nil
	}
	coverEngine := coverart.NewEngine(audioFileRepo, coverArtRepo, backend, coverCache, placeholder, logger)
	coverHandler := coverart.NewHandler(coverEngine)

	queue := jobs.NewQueue(cfg.RedisAddr, cfg.ScanWorkers, logger)
	scanHandler := jobs.NewScanHandler(engine, logger)
	queue.RegisterHandler(jobs.TaskScanLibrary, scanHandler)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go func() {
		if err := queue.Start(workerCtx); err != nil {
			logger.Error("job queue worker stopped", "error", err)
		}
	}()
	defer func() {
		cancelWorker()
		queue.Stop()
	}()

	var watcher *scan.Watcher
	if cfg.ScanWatch {
		watcher, err = scan.NewWatcher(engine, cfg.MediaRoot, 5*time.Second, logger)
		if err != nil {
			log.Fatal("failed to start library watcher:", err)
		}
		if err := watcher.Start(workerCtx); err != nil {
			log.Fatal("failed to start library watcher:", err)
		}
		defer watcher.Stop()
	}

	if _, err := engine.Run(context.Background(), true); err != nil {
		logger.Error("initial scan failed", "error", err)
	}

	router := setupRouter(db, queue, streamHandler, coverHandler, playlistHandler, playbackHandler, searchIndex, tokenHandler, tokenSigner)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("melodia server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown:", err)
	}
	logger.Info("server shutdown complete")
}

// setupRouter wires the full HTTP surface over the domain/repository model:
// health checks, streaming and cover art, an admin scan trigger backed
// directly by the job queue, the playlist and playback (player/queue/
// annotation) REST surface, and full-text search.
func setupRouter(db *database.DB, queue *jobs.Queue, streamHandler *streamengine.Handler, coverHandler *coverart.Handler, playlistHandler *handlers.PlaylistHandler, playbackHandler *handlers.PlaybackHandler, searchIndex *search.Index, tokenHandler *handlers.StreamTokenHandler, tokenSigner *streamtoken.Signer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handlers.NewHealthHandler(db)
	router.GET("/api/ping", healthHandler.Ping)
	router.GET("/api/health", healthHandler.Health)

	router.POST("/api/audio-files/:id/stream-token", tokenHandler.Issue)
	router.GET("/api/audio-files/:id/stream", handlers.RequireToken(tokenSigner, streamtoken.PurposeStream), streamHandler.StreamAudioFile)
	router.GET("/api/audio-files/:id/cover-art", handlers.RequireToken(tokenSigner, streamtoken.PurposeCoverArt), coverHandler.GetCoverArt)

	router.POST("/api/admin/library/scan", func(c *gin.Context) {
		full := c.Query("full") == "true"
		id, err := queue.EnqueueUnique(jobs.TaskScanLibrary, jobs.ScanPayload{FullScan: full}, "scan:library:primary")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": id})
	})

	playlists := router.Group("/api/playlists")
	{
		playlists.GET("", playlistHandler.ListOwned)
		playlists.POST("", playlistHandler.Create)
		playlists.GET("/:id", playlistHandler.Get)
		playlists.PUT("/:id", playlistHandler.Rename)
		playlists.POST("/:id/entries", playlistHandler.AddEntries)
		playlists.DELETE("/:id/entries", playlistHandler.RemoveEntries)
		playlists.DELETE("/:id", playlistHandler.Delete)
	}

	player := router.Group("/api/player")
	{
		player.POST("/play", playbackHandler.Play)
		player.POST("/pause", playbackHandler.Pause)
		player.POST("/resume", playbackHandler.Resume)
		player.POST("/stop", playbackHandler.Stop)
		player.POST("/heartbeat", playbackHandler.Heartbeat)
	}
	router.GET("/api/playqueue", playbackHandler.GetQueue)
	router.PUT("/api/playqueue", playbackHandler.SaveQueue)
	router.POST("/api/annotations/star", playbackHandler.Star)
	router.POST("/api/annotations/unstar", playbackHandler.Unstar)
	router.POST("/api/annotations/rate", playbackHandler.Rate)
	router.POST("/api/annotations/scrobble", playbackHandler.Scrobble)

	router.GET("/api/search", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		results, err := searchIndex.Search(search.Options{
			Query: c.Query("query"),
			Type:  c.Query("type"),
			Limit: limit,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, results)
	})

	return router
}

// bootstrapLibrary finds or creates the single Library aggregate for the
// configured media root. Only one library per process is supported today;
// the domain model has no inherent limit, this is just what main wires.
func bootstrapLibrary(repo *repository.LibraryRepo, ids *snowflake.Generator, mediaRoot string) (*domain.Library, error) {
	path := domain.MediaPath{Protocol: "local", Path: mediaRoot}

	existing, ok, err := repo.FindByPath(path)
	if err != nil {
		return nil, err
	}
	if ok {
		return existing, nil
	}

	lib := domain.NewLibrary(ids.Next(), mediaRoot, path)
	if err := repo.Save(lib); err != nil {
		return nil, err
	}
	return lib, nil
}

func storageProtocol(cfg config.Config) string {
	if cfg.S3Bucket != "" {
		return "s3"
	}
	return "local"
}

func workerIDFromEnv() int64 {
	if v := os.Getenv("WORKER_ID"); v != "" {
		var id int64
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			return id
		}
	}
	return 1
}
