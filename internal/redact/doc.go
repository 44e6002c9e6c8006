// Package redact removes secrets from extracted document text before it is
// stored or sent to a model.
//
// Detection is regex based and covers API keys, bearer tokens, JWTs,
// private key headers and connection strings with inline passwords.
// Documents whose path matches a configured glob are withheld entirely.
package redact
