// Package scanfs walks a category directory under the active root and
// classifies each regular file it finds, with no side effects beyond
// stat-ing the filesystem. It is a pure function of disk state: the same
// tree always produces the same descriptors, and nothing here touches the
// catalog database.
package scanfs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MediaType is the coarse classification of a scanned file.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

// videoExtensions and imageExtensions are the recognized extensions; any
// other regular file is skipped rather than classified as "other" — the
// scanner only ever emits videos and images.
var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".wmv": true, ".flv": true, ".webm": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// DefaultExcludedFolders is the directory-name exclusion set applied when a
// Scanner is constructed with a nil/empty exclusion list.
var DefaultExcludedFolders = []string{"Temp", ".DS_Store", ".clipper", "@eaDir"}

// classify returns the MediaType for ext (including the leading dot,
// already lowercased by the caller) and whether it is recognized at all.
func classify(ext string) (MediaType, bool) {
	return Classify(ext)
}

// Classify reports the MediaType for a file extension (case-insensitive,
// with or without a leading dot) and whether it is recognized at all. Shared
// with callers outside this package (the thumbnail cache, the fingerprint
// engine) that need the same video/image classification without walking a
// directory.
func Classify(ext string) (MediaType, bool) {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if videoExtensions[ext] {
		return MediaTypeVideo, true
	}
	if imageExtensions[ext] {
		return MediaTypeImage, true
	}
	return "", false
}

// File is one scanned media file's stable descriptor.
type File struct {
	Path         string    // absolute filesystem path
	Name         string    // basename
	Size         int64     // bytes
	ModTime      int64     // unix seconds
	Extension    string    // lowercase, with leading dot
	MediaType    MediaType // video or image
	Category     string    // top-level directory name under the root
	Subcategory  string    // nested path under the category, "" if direct child
	RelativePath string    // path relative to the category directory
	Breadcrumbs  []string  // subcategory split into path components
}

// Folder is a direct subfolder of a scanned category directory, surfaced by
// Hierarchical for lazy expansion.
type Folder struct {
	Name    string // basename of the subfolder
	Path    string // absolute filesystem path
	Preview []File // direct video files inside, not recursed further
}

// Scanner walks directories under an active root. An exclusion set names
// directories (by basename, case-sensitive) to skip entirely; directory
// names beginning with "." are always skipped regardless of the exclusion
// set.
type Scanner struct {
	excluded map[string]bool
}

// New builds a Scanner. A nil or empty excluded list falls back to
// DefaultExcludedFolders.
func New(excluded []string) *Scanner {
	if len(excluded) == 0 {
		excluded = DefaultExcludedFolders
	}
	set := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		set[name] = true
	}
	return &Scanner{excluded: set}
}

func (s *Scanner) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || s.excluded[name]
}

// Recursive walks every file under categoryDir (named category), returning
// one File per recognized video/image, with subcategory and breadcrumbs
// computed from the nesting beneath categoryDir.
func (s *Scanner) Recursive(categoryDir, category string) ([]File, error) {
	var out []File
	err := filepath.Walk(categoryDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != categoryDir && s.skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		f, ok := s.describe(path, info, categoryDir, category)
		if ok {
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

// DirectOnly lists only the files that are direct children of categoryDir
// — no recursion into subfolders.
func (s *Scanner) DirectOnly(categoryDir, category string) ([]File, error) {
	entries, err := os.ReadDir(categoryDir)
	if err != nil {
		return nil, err
	}
	var out []File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(categoryDir, entry.Name())
		if f, ok := s.describe(path, info, categoryDir, category); ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Hierarchical returns the direct video files of categoryDir plus a listing
// of its immediate, non-excluded subfolders, each carrying a shallow
// preview of its own direct video files for lazy expansion by the caller.
func (s *Scanner) Hierarchical(categoryDir, category string) ([]File, []Folder, error) {
	direct, err := s.DirectOnly(categoryDir, category)
	if err != nil {
		return nil, nil, err
	}
	var videos []File
	for _, f := range direct {
		if f.MediaType == MediaTypeVideo {
			videos = append(videos, f)
		}
	}

	entries, err := os.ReadDir(categoryDir)
	if err != nil {
		return nil, nil, err
	}
	var folders []Folder
	for _, entry := range entries {
		if !entry.IsDir() || s.skipDir(entry.Name()) {
			continue
		}
		subPath := filepath.Join(categoryDir, entry.Name())
		preview, err := s.DirectOnly(subPath, category)
		if err != nil {
			continue
		}
		var videoPreview []File
		for _, f := range preview {
			if f.MediaType == MediaTypeVideo {
				videoPreview = append(videoPreview, f)
			}
		}
		folders = append(folders, Folder{Name: entry.Name(), Path: subPath, Preview: videoPreview})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return videos, folders, nil
}

func (s *Scanner) describe(path string, info os.FileInfo, categoryDir, category string) (File, bool) {
	ext := strings.ToLower(filepath.Ext(info.Name()))
	mediaType, ok := classify(ext)
	if !ok {
		return File{}, false
	}

	rel, err := filepath.Rel(categoryDir, path)
	if err != nil {
		return File{}, false
	}
	rel = filepath.ToSlash(rel)

	subcategory := ""
	var breadcrumbs []string
	if dir := filepath.ToSlash(filepath.Dir(rel)); dir != "." {
		subcategory = dir
		breadcrumbs = strings.Split(dir, "/")
	}

	return File{
		Path:         path,
		Name:         info.Name(),
		Size:         info.Size(),
		ModTime:      info.ModTime().Unix(),
		Extension:    ext,
		MediaType:    mediaType,
		Category:     category,
		Subcategory:  subcategory,
		RelativePath: rel,
		Breadcrumbs:  breadcrumbs,
	}, true
}
