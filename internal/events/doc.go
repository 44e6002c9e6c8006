// Package events carries notifications from the review engine to whoever
// is watching, such as the CLI's watch command. Events are CloudEvents with
// JSON data delivered over an in-process bus.
package events
