// Package integration provides cross-package integration tests for codex-cv.
// These tests verify that discovery, routing, orchestration, and persistence
// work correctly together across package boundaries.
//
// Build tag: integration
// Run with: go test -tags integration ./internal/integration/...
package integration
