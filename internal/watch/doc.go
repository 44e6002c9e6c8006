// Package watch re-triggers work when reviewed documents change on disk.
//
// A [Watcher] observes files and directories with fsnotify, coalesces
// bursts of events for the debounce interval, then hands the current
// document list to a callback. [Files] performs the same expansion once.
package watch
