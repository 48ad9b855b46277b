// Package dedup flags exact-duplicate documents by content fingerprint.
package dedup
