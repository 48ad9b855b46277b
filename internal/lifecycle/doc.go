// Package lifecycle defines the document status state machine.
//
// The transition table here is the only place edge legality is decided.
// Callers route every status change through EnforceTransition before
// persisting, which keeps documents moving strictly forward along defined
// edges and makes illegal moves fail loudly instead of corrupting pipeline
// position.
package lifecycle
