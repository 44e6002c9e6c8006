// Package extract turns input files into the text or page images that are
// sent to the review and chat models.
//
// Plain text formats are read as-is, Markdown is flattened through the
// goldmark AST, and PDF text is read from page content streams with
// pdfcpu. In image mode a PDF yields one picture per page. Every image is
// decoded, scaled down to a maximum dimension and re-encoded as base64 PNG.
//
// Results can be cached between runs and text can be passed through secret
// redaction before it leaves the extractor.
package extract
