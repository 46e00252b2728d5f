// Package media provides media file handling utilities including thumbnail
// generation for images, videos, and folders.
//
// The ThumbnailGenerator supports generating thumbnails for:
//   - Images: Direct resize with format detection
//   - Videos: Frame extraction using FFmpeg
//   - Folders: Composite stacked thumbnails from contained media
package media
