// Package chat answers questions about the documents of a review run.
//
// A turn plans per-document research tasks, runs them concurrently through
// the same chunk-retry controller the review engine uses, and streams the
// synthesized answer as data stream frames (0: text, 9: tool call,
// a: tool result, e: step finish, d: finish, 3: error).
package chat
