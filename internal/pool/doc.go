// Package pool provides the bounded fan-out helpers used by every parallel
// stage of a review run and a chat turn.
//
// All fan-outs share a fixed limit of [DefaultLimit] in-flight operations.
// [ForEach] stops dispatching new work once its context is done;
// [Collect] keeps per-item errors so one failure does not cancel siblings.
package pool
