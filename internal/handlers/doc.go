// Package handlers provides HTTP request handlers for the media viewer API.
//
// It includes handlers for:
//   - File browsing and directory listing
//   - Media streaming and thumbnails
//   - Search and search suggestions
//   - User authentication and sessions
//   - Favorites and tags management
//   - Health checks and application stats
package handlers
