// Package logging wraps log/slog with the handlers and standardized field
// keys shared by the daemon, the CLI, and pipeline stages. The console
// handler renders compact single-line records; the JSON handler is intended
// for log shipping.
package logging
