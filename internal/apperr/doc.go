// Package apperr defines the coded internal error used across docreview.
package apperr
