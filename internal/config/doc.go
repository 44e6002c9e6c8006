// Package config loads and merges docreview configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (DOCREVIEW_PROVIDER, DOCREVIEW_REVIEW_MODE, etc.)
//  3. Config file ($XDG_CONFIG_HOME/docreview/config.yaml)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged, validated [Config], [Save] to write a
// config file, and [SetField] to update a single key.
package config
