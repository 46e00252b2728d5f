package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

// streamContentTypes maps the extensions recognized by the File Scanner
// (scanfs.Classify) to their HTTP content type, per §4.10's "explicit
// mapping for the supported set". Anything else falls through to
// http.ServeContent's own sniffing.
var streamContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// resolveCategoryPath resolves {category}/{relative} against the active
// root and guards against path traversal: the resolved absolute path must
// stay inside the active root. category == "_root" addresses the root
// directory itself, per §4.10.
func (h *Handlers) resolveCategoryPath(category, relative string) (string, error) {
	if h.rootMgr == nil {
		return "", fmt.Errorf("multi-root support not configured")
	}
	root := h.rootMgr.Current().Path
	if root == "" {
		return "", fmt.Errorf("no active root")
	}

	base := root
	if category != "" && category != "_root" {
		base = filepath.Join(root, category)
	}
	full := filepath.Join(base, relative)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	absPath, err := filepath.Abs(full)
	if err != nil || !isSubPath(absRoot, absPath) {
		return "", fmt.Errorf("forbidden: path escapes active root")
	}
	return absPath, nil
}

// serveResolvedFile opens path, sets the explicit content-type mapping and
// the cache-control header shared by both entry points, and hands off to
// http.ServeContent for byte-range handling (200/206/304/416, Content-Range,
// Accept-Ranges, If-None-Match — all per the standard library's own
// implementation of §4.10's contract).
func serveResolvedFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Failed to open file", http.StatusInternalServerError)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	if ct, ok := streamContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// StreamMedia is the root-aware C10 Stream Server: GET
// /stream/{category}/{relative}. Unlike the teacher's original StreamVideo
// (bound to h.mediaDir at process startup), this resolves against
// rootMgr.Current() on every request, so a root switch changes what it
// serves with no handler reconstruction needed.
func (h *Handlers) StreamMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path, err := h.resolveCategoryPath(vars["category"], vars["relative"])
	if err != nil {
		if h.rootMgr == nil {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	serveResolvedFile(w, r, path)
}

// ServeLocalFile is the CLIPPER_LOCAL_MODE direct file-system entry point
// (§12.1 of SPEC_FULL): GET /api/local/{category}/{relative}. It reuses
// StreamMedia's traversal guard and content-type/cache logic verbatim — it
// is not a new trust boundary, just an alternate path into the same guard,
// gated behind the local-mode flag and bypassing the catalog entirely.
func (h *Handlers) ServeLocalFile(w http.ResponseWriter, r *http.Request) {
	if !h.localModeEnabled {
		http.Error(w, "local mode is not enabled", http.StatusNotFound)
		return
	}
	vars := mux.Vars(r)
	path, err := h.resolveCategoryPath(vars["category"], vars["relative"])
	if err != nil {
		if h.rootMgr == nil {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	serveResolvedFile(w, r, path)
}
