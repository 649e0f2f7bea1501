// Package cursor persists per-source read positions and enforces the
// contiguous-prefix acknowledgement discipline.
//
// A Store owns one cursor file, written with the rename-over trick so a
// crash at any point leaves either the old or the new file intact. A
// Tracker sits between a source and its ack channel: it hands out
// monotonically increasing sequence numbers, collects acknowledgements that
// may arrive out of order (sink acks interleave with transform-drop acks),
// and persists only the token of the largest contiguously acknowledged
// prefix. A crash therefore never loses a record; it may replay an
// unacknowledged suffix.
package cursor
