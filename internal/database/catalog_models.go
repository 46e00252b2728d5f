package database

import "time"

// MediaType classifies a MediaItem as defined by the File Scanner.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

// ThumbnailState tracks the outcome of the last thumbnail generation
// attempt for a MediaItem.
type ThumbnailState string

const (
	ThumbnailNone   ThumbnailState = "none"
	ThumbnailOK     ThumbnailState = "ok"
	ThumbnailFailed ThumbnailState = "failed"
)

// MediaItem is one physical file under the active root, as described by
// the catalog's data model: stable id, unique path, technical metadata
// filled in by the Metadata Extractor, and editorial metadata owned by the
// user.
type MediaItem struct {
	ID                   int64          `db:"id" json:"id"`
	Path                 string         `db:"path" json:"path"`
	Name                 string         `db:"name" json:"name"`
	DisplayName          *string        `db:"display_name" json:"displayName,omitempty"`
	Description          *string        `db:"description" json:"description,omitempty"`
	Category             string         `db:"category" json:"category"`
	Subcategory          *string        `db:"subcategory" json:"subcategory,omitempty"`
	RelativePath         string         `db:"relative_path" json:"relativePath"`
	Size                 int64          `db:"size" json:"size"`
	Mtime                int64          `db:"mtime" json:"mtime"`
	Extension            string         `db:"extension" json:"extension"`
	MediaType            MediaType      `db:"media_type" json:"mediaType"`
	Duration             *float64       `db:"duration" json:"duration,omitempty"`
	Width                *int           `db:"width" json:"width,omitempty"`
	Height               *int           `db:"height" json:"height,omitempty"`
	Codec                *string        `db:"codec" json:"codec,omitempty"`
	Bitrate              *int64         `db:"bitrate" json:"bitrate,omitempty"`
	FPS                  *float64       `db:"fps" json:"fps,omitempty"`
	ThumbnailGenerated   ThumbnailState `db:"thumbnail_generated" json:"thumbnailGenerated"`
	ThumbnailUpdatedAt   int64          `db:"thumbnail_updated_at" json:"thumbnailUpdatedAt"`
	FingerprintGenerated bool           `db:"fingerprint_generated" json:"fingerprintGenerated"`
	FingerprintedAt      *int64         `db:"fingerprinted_at" json:"fingerprintedAt,omitempty"`
	Series               *string        `db:"series" json:"series,omitempty"`
	Season               *int           `db:"season" json:"season,omitempty"`
	Episode              *string        `db:"episode" json:"episode,omitempty"`
	Year                 *int           `db:"year" json:"year,omitempty"`
	Channel              *string        `db:"channel" json:"channel,omitempty"`
	Rating               *int           `db:"rating" json:"rating,omitempty"`
	Favorite             bool           `db:"favorite" json:"favorite"`
	IsFinal              bool           `db:"is_final" json:"isFinal"`
	CreatedAt            int64          `db:"created_at" json:"createdAt"`
	UpdatedAt            int64          `db:"updated_at" json:"updatedAt"`

	Tags  []string `db:"-" json:"tags,omitempty"`
	Actors []string `db:"-" json:"actors,omitempty"`
}

// ThumbnailURL is computed, never stored, per the reconciler's contract
// ("thumbnail_url = /api/thumbnails/<id> set once id is known").
func (m *MediaItem) ThumbnailURL() string {
	return "/api/thumbnails/" + itoa(m.ID)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CatalogActor is a person who may be linked to many MediaItems.
type CatalogActor struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Notes      *string `db:"notes" json:"notes,omitempty"`
	VideoCount int    `db:"video_count" json:"videoCount"`
	CreatedAt  int64  `db:"created_at" json:"createdAt"`
}

// FaceID is a person identity holding one or more FaceEncodings.
type FaceID struct {
	ID                int64   `db:"id" json:"id"`
	Name              string  `db:"name" json:"name"`
	ActorID           *int64  `db:"actor_id" json:"actorId,omitempty"`
	EncodingCount     int     `db:"encoding_count" json:"encodingCount"`
	PrimaryEncodingID *int64  `db:"primary_encoding_id" json:"primaryEncodingId,omitempty"`
	CreatedAt         int64   `db:"created_at" json:"createdAt"`
}

// FaceEncoding is a single 512-D embedding with provenance.
type FaceEncoding struct {
	ID              int64    `db:"id" json:"id"`
	FaceID          int64    `db:"face_id" json:"faceId"`
	MediaItemID     *int64   `db:"media_item_id" json:"mediaItemId,omitempty"`
	FrameTimestamp  float64  `db:"frame_timestamp" json:"frameTimestamp"`
	Encoding        string   `db:"encoding" json:"encoding"` // base64 float32[512]
	EncodingHash    string   `db:"encoding_hash" json:"-"`
	Thumbnail       *string  `db:"thumbnail" json:"thumbnail,omitempty"` // base64 JPEG
	Confidence      *float64 `db:"confidence" json:"confidence,omitempty"`
	QualityScore    *float64 `db:"quality_score" json:"qualityScore,omitempty"`
	CreatedAt       int64    `db:"created_at" json:"createdAt"`
}

// VideoFace is the (media_item, face) junction with provenance.
type VideoFace struct {
	MediaItemID      int64  `db:"media_item_id" json:"mediaItemId"`
	FaceID           int64  `db:"face_id" json:"faceId"`
	FirstDetectedAt  int64  `db:"first_detected_at" json:"firstDetectedAt"`
	DetectionMethod  string `db:"detection_method" json:"detectionMethod"`
	AppearanceCount  int    `db:"appearance_count" json:"appearanceCount"`
}

// Detection methods for VideoFace.DetectionMethod.
const (
	DetectionManualSearch     = "manual_search"
	DetectionBatchExtraction  = "batch_extraction"
	DetectionAutoScan         = "auto_scan"
	DetectionUserSelected     = "user_selected"
	DetectionPreservedFromEdit = "preserved_from_edit"
)

// VideoFingerprint is one sampled frame's perceptual hash for a MediaItem.
type VideoFingerprint struct {
	ID             int64  `db:"id" json:"id"`
	MediaItemID    int64  `db:"media_item_id" json:"mediaItemId"`
	FramePosition  int    `db:"frame_position" json:"framePosition"`
	PHash          string `db:"phash" json:"phash"`
	CreatedAt      int64  `db:"created_at" json:"createdAt"`
}

// FolderGroup is a user-defined sidebar grouping of categories.
type FolderGroup struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Categories string `db:"categories" json:"-"` // serialized JSON list
	Icon       *string `db:"icon" json:"icon,omitempty"`
	Color      *string `db:"color" json:"color,omitempty"`
	Ordinal    int    `db:"ordinal" json:"ordinal"`
	IsSystem   bool   `db:"is_system" json:"isSystem"`
}

// FolderScanStatus records the last reconciliation outcome for a category.
type FolderScanStatus struct {
	Category     string   `db:"category" json:"category"`
	LastScanned  *int64   `db:"last_scanned" json:"lastScanned,omitempty"`
	VideoCount   int      `db:"video_count" json:"videoCount"`
	ScanDuration *float64 `db:"scan_duration" json:"scanDuration,omitempty"`
	IsScanned    bool     `db:"is_scanned" json:"isScanned"`
}

// nowUnix is a tiny indirection so tests can observe the timestamps this
// package writes without requiring wall-clock control in the database
// layer itself.
func nowUnix() int64 { return timeNow().Unix() }

var timeNow = func() time.Time { return time.Now() }
