// Package cache stores extracted document content on disk so that re-running
// a review over unchanged files skips PDF parsing and image normalisation.
//
// Entries are keyed by a SHA-256 hash of the file path, size, modification
// time and processing mode. Each entry is a JSON envelope compressed with
// LZ4, carrying the value, a creation timestamp and a TTL in seconds.
// Expired entries are skipped on read and counted in Stats.
//
// The default directory is $XDG_CACHE_HOME/docreview (or the OS-appropriate
// equivalent). Cached text has already been through secret redaction.
package cache
