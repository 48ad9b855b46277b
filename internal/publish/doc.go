// Package publish renders approved insights into a newsletter bundle and
// delivers it to the configured newsletter platform.
package publish
