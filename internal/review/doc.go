// Package review runs checklist reviews of documents with an LLM.
//
// A run extracts its documents while the checklist is split into categories
// (ClassifyChecklists), then reviews every category with bounded
// concurrency. Small mode sends all documents in one message per category.
// Large mode summarizes each document, asks follow-up questions until a
// readiness agent is satisfied, reviews each document on its own and
// consolidates the per-document comments into one evaluation per item.
//
// Whenever a model call overflows the context window, RunChunked splits the
// document into one more overlapping chunk and tries again, up to the
// policy's retry bound. Chunk counts that worked are remembered per file so
// later runs start from them.
//
// Failures of one category are reported in the run outcome without
// affecting the others.
package review
