// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// It provides:
//   - Environment variable configuration loading and validation
//   - Directory setup and permission checking
//   - Build information and version reporting
//   - Structured startup and shutdown logging
//   - HTTP route registration logging
package startup
