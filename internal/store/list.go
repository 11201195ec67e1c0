package store

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// artifactExtensions are the recognized artifact kinds, used to map
// directory entries back to job names.
var artifactExtensions = map[string]bool{
	"out":    true,
	"err":    true,
	"log":    true,
	"exit":   true,
	"json":   true,
	"signal": true,
	"lock":   true,
}

// ListJobs scans the jobs directory and returns the sorted, deduplicated
// names of all jobs with at least one artifact present.
func ListJobs(s Store) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if name, ok := jobNameOf(entry.Name()); ok {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

// jobNameOf strips a recognized artifact extension from a filename,
// including rotated log suffixes such as "job.log.2".
func jobNameOf(filename string) (string, bool) {
	base, ext, found := cutLast(filename, ".")
	if !found {
		return "", false
	}

	// Rotated logs carry a trailing number after the real extension.
	if _, err := strconv.Atoi(ext); err == nil {
		base, ext, found = cutLast(base, ".")
		if !found {
			return "", false
		}
	}

	if !artifactExtensions[ext] || base == "" {
		return "", false
	}

	return base, true
}

func cutLast(s, sep string) (before, after string, found bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s, "", false
	}

	return s[:idx], s[idx+len(sep):], true
}
