// Package services provides the shared error taxonomy and context plumbing
// used across pipeline stages and editor-facing operations.
package services
