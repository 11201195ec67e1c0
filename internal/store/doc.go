// Package store owns the on-disk layout of job artifacts.
//
// Every job is a family of files in a single jobs directory, sharing the
// job name as base name: raw stream captures (.out, .err), the merged log
// (.log plus numbered rotations), the exit marker (.exit), the metadata
// record (.json), the signal marker (.signal) and the advisory lock file
// (.lock). The exit marker is the completion contract: its presence means
// the job has terminated and all of its logs are fully written.
//
// A Store carries the jobs directory explicitly so callers (and tests) are
// isolated from each other without touching process environment.
package store
