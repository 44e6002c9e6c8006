// Package output formats review results for display or machine consumption.
//
// Four formats are supported:
//   - text     human-readable terminal table (default)
//   - json     full structured report
//   - markdown with a collapsible section of per-document comments
//   - html     the markdown report rendered to a standalone page
//
// Use [GetWriter] to obtain a [Writer] for a given format string, then call
// [Writer.Write] with an [io.Writer] and a [*Report]. [WriteReport] handles
// destination selection.
package output
