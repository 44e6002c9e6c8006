// Package cli wires together the Cobra command tree for the docreview binary.
//
// It defines the root command and all subcommands (review, checklist, chat,
// config, models, cache, version), binds flags, reads configuration, opens
// the run store, invokes the review engine, and returns deterministic exit
// codes.
package cli
