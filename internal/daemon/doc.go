// Package daemon hosts the long-running newsdesk process: it holds the
// single-instance file lock and supervises the workflow manager.
package daemon
