// Docreview is a local CLI for reviewing documents against checklists with
// LLM providers.
//
// It extracts text or page images from PDF, Markdown, plain-text and image
// files, groups the checklist into categories, asks the model for an
// evaluation and comment per item, and stores every run in a local SQLite
// database. Large document sets are split into chunks that are retried with
// finer splits when the model runs out of context. Questions about the
// reviewed documents can be asked afterwards.
//
// Usage:
//
//	docreview review run --checklist items.yaml spec.pdf notes.md
//	docreview review run --run <id> --image '*.pdf' ./docs
//	docreview review watch --run <id> ./docs
//	docreview review show <run-id> --format markdown
//	docreview chat <run-id> "Which sections lack an owner?"
//	docreview checklist list <run-id>
package main
