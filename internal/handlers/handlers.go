package handlers

import (
	"clipper/internal/database"
	"clipper/internal/faceembed"
	"clipper/internal/faceengine"
	"clipper/internal/fingerprint"
	"clipper/internal/frameextract"
	"clipper/internal/indexer"
	"clipper/internal/jobrunner"
	"clipper/internal/media"
	"clipper/internal/movecoordinator"
	"clipper/internal/reconciler"
	"clipper/internal/rootmanager"
	"clipper/internal/scanfs"
	"clipper/internal/startup"
	"clipper/internal/transcoder"
)

// Handlers contains all HTTP request handlers and their dependencies.
//
// db/thumbGen remain bound to the root active at process startup and back
// the teacher-original media/search/tag/playlist endpoints. The root-aware
// surface added for multi-root support (scan, move, fingerprints, faces)
// always reads the active catalog through rootMgr.DB(), so a root switch is
// visible to it immediately without reconstructing Handlers.
type Handlers struct {
	db         *database.Database
	indexer    *indexer.Indexer
	transcoder *transcoder.Transcoder
	thumbGen   *media.ThumbnailGenerator
	mediaDir   string
	cacheDir   string

	rootMgr          *rootmanager.Manager
	jobs             *jobrunner.Runner
	embedClient      faceembed.Client
	grabber          *frameextract.Grabber
	excluded         []string
	localModeEnabled bool
}

// New creates a new Handlers instance with the given dependencies. The
// root-aware components (rootMgr, the job runner) are optional and wired in
// afterward via WithRootManager/WithJobRunner, so existing callers that only
// exercise the single-root teacher surface don't need to construct them.
func New(db *database.Database, idx *indexer.Indexer, trans *transcoder.Transcoder, thumbGen *media.ThumbnailGenerator, config *startup.Config) *Handlers {
	return &Handlers{
		db:         db,
		indexer:    idx,
		transcoder: trans,
		thumbGen:   thumbGen,
		mediaDir:   config.MediaDir,
		cacheDir:   config.CacheDir,

		embedClient: faceembed.StubClient{},
		grabber:     frameextract.New(),
		excluded:    config.ExcludedFolders,

		localModeEnabled: config.LocalModeEnabled,
	}
}

// WithRootManager wires the multi-root manager into Handlers, enabling the
// root-aware endpoints (scan, move, fingerprints, faces). Returns h for
// chaining at the call site in main.go.
func (h *Handlers) WithRootManager(rm *rootmanager.Manager) *Handlers {
	h.rootMgr = rm
	return h
}

// WithJobRunner wires the background job registry into Handlers, enabling
// the editor/download endpoints.
func (h *Handlers) WithJobRunner(j *jobrunner.Runner) *Handlers {
	h.jobs = j
	return h
}

// currentDB returns the catalog database bound to whichever root is
// currently active, so every root-aware handler sees a root switch on its
// very next request.
func (h *Handlers) currentDB() *database.Database {
	return h.rootMgr.DB()
}

// reconciler builds a fresh C8 reconciler bound to the active root's catalog
// and the shared default-root thumbnail generator. Reconciler holds no
// state of its own beyond its dependencies, so constructing one per request
// costs nothing worth caching.
func (h *Handlers) reconciler() *reconciler.Reconciler {
	return reconciler.New(h.currentDB(), scanfs.New(h.excluded), h.thumbGen)
}

// moveCoordinator builds a fresh C9 coordinator rooted at the active root's
// path.
func (h *Handlers) moveCoordinator() *movecoordinator.Coordinator {
	return movecoordinator.New(h.currentDB(), h.thumbGen, h.rootMgr.Current().Path)
}

// fingerprintEngine builds a fresh C6 engine bound to the active root.
func (h *Handlers) fingerprintEngine() *fingerprint.Engine {
	return fingerprint.New(h.currentDB(), h.grabber)
}

// faceEngine builds a fresh C7 engine bound to the active root.
func (h *Handlers) faceEngine() *faceengine.Engine {
	return faceengine.New(h.currentDB(), h.embedClient, h.grabber)
}
