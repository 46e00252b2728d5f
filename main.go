// Main entry point for the media viewer application.
//
// It starts an HTTP server that provides:
//   - Web-based media browsing interface
//   - RESTful API for media operations
//   - Background media indexing
//   - Video transcoding and streaming
//   - User authentication
//
// Configuration is provided via environment variables:
//   - MEDIA_DIR: Path to media files (default: /media)
//   - CACHE_DIR: Path to cache directory (default: /cache)
//   - DATABASE_DIR: Path to database directory (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - INDEX_INTERVAL: Media indexing interval (default: 30m)
//   - LOG_LEVEL: Logging verbosity (default: info)
//   - LOG_STATIC_FILES: Log static file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clipper/internal/database"
	"clipper/internal/handlers"
	"clipper/internal/indexer"
	"clipper/internal/jobrunner"
	"clipper/internal/logging"
	"clipper/internal/media"
	"clipper/internal/memory"
	"clipper/internal/middleware"
	"clipper/internal/rootmanager"
	"clipper/internal/startup"
	"clipper/internal/transcoder"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, _, err := database.New(context.Background(), config.DatabasePath, nil)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	// Clean up expired sessions periodically
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.CleanExpiredSessions(); err != nil {
				logging.Error("failed to clean expired sessions: %v", err)
			}
		}
	}()

	// Initialize transcoder
	startup.LogTranscoderInit(config.TranscodingEnabled)
	trans := transcoder.New(config.TranscodeDir, config.TranscodingEnabled)

	// Initialize thumbnail generator
	memMonitor := memory.NewMonitor(memory.DefaultConfig())
	memMonitor.Start()
	thumbGen := media.NewThumbnailGenerator(
		config.ThumbnailDir,
		config.MediaDir,
		config.ThumbnailsEnabled,
		db,
		config.ThumbnailInterval,
		memMonitor,
	)

	// Initialize indexer
	startup.LogIndexerInit(config.IndexInterval)
	idx := indexer.New(db, config.MediaDir, config.IndexInterval)

	// Start indexer in background (non-blocking)
	go func() {
		if err := idx.Start(); err != nil {
			logging.Error("Failed to start indexer: %v", err)
		}
	}()
	startup.LogIndexerStarted()

	// Start thumbnail generator in background
	thumbGen.Start()
	logging.Info("Thumbnail generator started")

	// Initialize the multi-root catalog manager. roots.json lives alongside
	// the legacy database; an empty roots.json just means no root is active
	// yet, so the legacy MEDIA_DIR is registered as the default root on
	// first run.
	rootsPath := filepath.Join(config.DatabaseDir, "roots.json")
	rootMgr, err := rootmanager.New(context.Background(), rootsPath, nil)
	if err != nil {
		startup.LogFatal("Failed to initialize root manager: %v", err)
	}
	if rootMgr.Current().Path == "" {
		if err := rootMgr.AddRoot(rootmanager.Root{Name: "default", Path: config.MediaDir, Default: true}); err != nil {
			startup.LogFatal("Failed to register default root: %v", err)
		}
		if err := rootMgr.Select(context.Background(), "default"); err != nil {
			startup.LogFatal("Failed to select default root: %v", err)
		}
	}
	// Thumbnails are cached by path hash under a single shared cache dir, not
	// per-root, so a root switch only needs the face model reset and a no-op
	// store reinit; InvalidateAllThumbnails keeps stale entries from a prior
	// root out of the cache.
	rootMgr.OnInvalidateThumbnails(func() {
		if _, err := thumbGen.InvalidateAll(); err != nil {
			logging.Warn("root switch: failed to invalidate thumbnail cache: %v", err)
		}
	})
	rootMgr.OnResetFaceModel(func() {
		logging.Info("root switch: face recognition state reset for new root")
	})
	rootMgr.OnReinitThumbnailStore(func(path string) error {
		return nil
	})

	// Initialize the background job runner for long-running edit/download
	// operations (cut/crop, HLS range downloads, SOCKS-proxied fetches).
	jobs := jobrunner.New("", "", "")

	// Initialize handlers
	h := handlers.New(db, idx, trans, thumbGen, config).WithRootManager(rootMgr).WithJobRunner(jobs)

	// Cataloging an edit job's output as soon as it completes, so it shows
	// up without waiting on the next category rescan (§4.8/§4.11).
	jobs.SetEditImporter(h)

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// Apply authentication middleware
	authedRouter := h.AuthMiddleware(router)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(authedRouter)

	// Apply compression middleware
	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(loggedHandler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to signal shutdown completion
	shutdownComplete := make(chan struct{})

	// Start graceful shutdown handler
	go handleShutdown(srv, db, idx, trans, thumbGen, rootMgr, jobs, memMonitor, shutdownComplete)

	// Start server
	startup.LogServerStarted(config.Port, time.Since(startTime))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}

	// Wait for shutdown to complete
	<-shutdownComplete
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Root-aware byte-range media streaming (C10), resolved against the
	// active root on every request — distinct from the legacy
	// /api/stream/{path:.*} bound to h.mediaDir at startup.
	r.HandleFunc("/stream/{category}/{relative:.*}", h.StreamMedia).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/setup-required", h.CheckSetupRequired).Methods("GET")
	auth.HandleFunc("/setup", h.Setup).Methods("POST")
	auth.HandleFunc("/login", h.Login).Methods("POST")
	auth.HandleFunc("/logout", h.Logout).Methods("POST")
	auth.HandleFunc("/check", h.CheckAuth).Methods("GET")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/files", h.ListFiles).Methods("GET")
	api.HandleFunc("/media", h.GetMediaFiles).Methods("GET")
	api.HandleFunc("/file/{path:.*}", h.GetFile).Methods("GET")
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/playlists", h.ListPlaylists).Methods("GET")
	api.HandleFunc("/playlist/{name}", h.GetPlaylist).Methods("GET")
	api.HandleFunc("/stream/{path:.*}", h.StreamVideo).Methods("GET")
	api.HandleFunc("/stream-info/{path:.*}", h.GetStreamInfo).Methods("GET")
	api.HandleFunc("/search", h.CatalogSearch).Methods("GET")
	api.HandleFunc("/search/suggestions", h.CatalogSuggestions).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/reindex", h.TriggerReindex).Methods("POST")

	// Favorites
	api.HandleFunc("/favorites", h.GetFavorites).Methods("GET")
	api.HandleFunc("/favorites", h.AddFavorite).Methods("POST")
	api.HandleFunc("/favorites", h.RemoveFavorite).Methods("DELETE")
	api.HandleFunc("/favorites/check", h.CheckFavorite).Methods("GET")

	// Tags
	api.HandleFunc("/tags", h.GetAllTags).Methods("GET")
	api.HandleFunc("/tags/file", h.GetFileTags).Methods("GET")
	api.HandleFunc("/tags/file", h.AddTagToFile).Methods("POST")
	api.HandleFunc("/tags/file", h.RemoveTagFromFile).Methods("DELETE")
	api.HandleFunc("/tags/file/set", h.SetFileTags).Methods("POST")
	api.HandleFunc("/tags/batch", h.GetBatchFileTags).Methods("POST")
	api.HandleFunc("/tags/{tag}", h.GetFilesByTag).Methods("GET")
	api.HandleFunc("/tags/{tag}", h.DeleteTag).Methods("DELETE")
	api.HandleFunc("/tags/{tag}", h.RenameTag).Methods("PUT")

	// Roots (multi-root catalog switching)
	api.HandleFunc("/roots", h.ListRoots).Methods("GET")
	api.HandleFunc("/roots", h.AddRoot).Methods("POST")
	api.HandleFunc("/roots/select", h.SelectRoot).Methods("POST")

	// Scan / reconcile
	api.HandleFunc("/scan", h.ScanCategory).Methods("GET", "POST")
	api.HandleFunc("/scan/prune", h.PruneRoot).Methods("POST")
	api.HandleFunc("/scan/structure", h.ScanStructure).Methods("GET")
	api.HandleFunc("/scan/subfolders", h.ScanSubfolders).Methods("GET")

	// CLIPPER_LOCAL_MODE direct file-system serving
	api.HandleFunc("/local/{category}/{relative:.*}", h.ServeLocalFile).Methods("GET")

	// Move, rename, delete
	api.HandleFunc("/items/{id}/move", h.MoveItem).Methods("POST")
	api.HandleFunc("/items/{id}/rename", h.RenameItem).Methods("POST")
	api.HandleFunc("/items/{id}/hash-rename", h.HashRenameItem).Methods("POST")
	api.HandleFunc("/folders/rename", h.RenameFolder).Methods("POST")
	api.HandleFunc("/items/{id}/soft-delete", h.SoftDeleteItem).Methods("POST")
	api.HandleFunc("/items/{id}/hard-delete", h.HardDeleteItem).Methods("POST")

	// Catalog search and editorial metadata
	api.HandleFunc("/catalog/search", h.CatalogSearch).Methods("GET")
	api.HandleFunc("/catalog/suggestions", h.CatalogSuggestions).Methods("GET")
	api.HandleFunc("/catalog/items/bulk-editorial", h.BulkUpdateEditorial).Methods("POST")
	api.HandleFunc("/catalog/items/{id}", h.GetCatalogItem).Methods("GET")
	api.HandleFunc("/catalog/items/{id}/editorial", h.UpdateCatalogItemEditorial).Methods("PATCH")
	api.HandleFunc("/catalog/categories/{category}", h.ListCatalogItemsByCategory).Methods("GET")

	// Perceptual fingerprints / duplicate detection
	api.HandleFunc("/items/{id}/fingerprint", h.GenerateFingerprint).Methods("POST")
	api.HandleFunc("/fingerprints/check-duplicate", h.CheckFingerprintDuplicate).Methods("POST")
	api.HandleFunc("/fingerprints/duplicates", h.FindAllDuplicates).Methods("GET")

	// Face identity catalog
	api.HandleFunc("/faces", h.ListFaceCatalog).Methods("GET")
	api.HandleFunc("/faces/cleanup", h.CleanupOrphanFaces).Methods("POST")
	api.HandleFunc("/faces/cross-grouping", h.CrossFaceGrouping).Methods("GET")
	api.HandleFunc("/faces/compare", h.CompareFaces).Methods("POST")
	api.HandleFunc("/faces/merge", h.MergeFaces).Methods("POST")
	api.HandleFunc("/faces/search", h.ManualFaceSearch).Methods("POST")
	api.HandleFunc("/faces/{id}", h.RenameFace).Methods("PATCH")
	api.HandleFunc("/faces/{id}", h.DeleteFace).Methods("DELETE")
	api.HandleFunc("/faces/{id}/primary-encoding", h.SetPrimaryFaceEncoding).Methods("POST")
	api.HandleFunc("/faces/{id}/encodings/{encodingId}", h.DeleteFaceEncoding).Methods("DELETE")
	api.HandleFunc("/faces/{id}/cleanup-view", h.FaceCleanupView).Methods("GET")
	api.HandleFunc("/faces/{id}/duplicate-analysis", h.FaceDuplicateAnalysis).Methods("GET")
	api.HandleFunc("/items/{id}/faces/detect", h.DetectFaces).Methods("GET")
	api.HandleFunc("/items/{id}/faces/commit", h.CommitFaceDetections).Methods("POST")
	api.HandleFunc("/items/{id}/faces/auto-scan", h.AutoScanFaces).Methods("POST")
	api.HandleFunc("/items/{id}/faces", h.ListVideoFaces).Methods("GET")

	// Background job runner (edits, HLS/SOCKS downloads)
	api.HandleFunc("/editor/jobs", h.SubmitEditJob).Methods("POST")
	api.HandleFunc("/editor/jobs/{id}/copy-metadata", h.CopyEditMetadata).Methods("POST")
	api.HandleFunc("/editor/jobs/{id}/preserve-faces", h.PreserveEditFaces).Methods("POST")
	api.HandleFunc("/downloads/hls", h.SubmitHLSDownloadJob).Methods("POST")
	api.HandleFunc("/downloads/socks", h.SubmitSOCKSDownloadJob).Methods("POST")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/completed", h.ClearCompletedJobs).Methods("DELETE")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.RemoveJob).Methods("DELETE")
	api.HandleFunc("/socks-config", h.GetSOCKSConfig).Methods("GET")
	api.HandleFunc("/socks-config", h.SetSOCKSConfig).Methods("PUT")

	// Static files
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./static")))

	// Thumbnails
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/thumbnail/{path:.*}", h.InvalidateThumbnail).Methods("DELETE")
	api.HandleFunc("/thumbnails/invalidate", h.InvalidateAllThumbnails).Methods("POST")
	api.HandleFunc("/thumbnails/rebuild", h.RebuildAllThumbnails).Methods("POST")
	api.HandleFunc("/thumbnails/status", h.GetThumbnailStatus).Methods("GET")

	return r
}

func handleShutdown(srv *http.Server, db *database.Database, idx *indexer.Indexer, trans *transcoder.Transcoder, thumbGen *media.ThumbnailGenerator, rootMgr *rootmanager.Manager, jobs *jobrunner.Runner, memMonitor *memory.Monitor, done chan struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping thumbnail generator")
	thumbGen.Stop()
	startup.LogShutdownStepComplete("Thumbnail generator stopped")

	startup.LogShutdownStep("Stopping indexer")
	idx.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	startup.LogShutdownStep("Cleaning up transcoder")
	trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	startup.LogShutdownStep("Stopping memory monitor")
	memMonitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Shutting down job runner")
	jobs.Shutdown()
	startup.LogShutdownStepComplete("Job runner stopped")

	startup.LogShutdownStep("Closing root manager")
	if err := rootMgr.Close(); err != nil {
		logging.Warn("Root manager close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Root manager closed")
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Closing database")
	if err := db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
