// Package persist writes annotated output to an auto-incremented run directory.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// IncrementPath creates and returns the run directory for project/name.
// The plain name is used when it is free or existOK is set; otherwise the
// name gets the next numeric suffix after the highest one already present
// (name1, name2, ...).
func IncrementPath(project, name string, existOK bool) (string, error) {
	base := filepath.Join(project, name)

	dir := base
	if _, err := os.Stat(base); err == nil && !existOK {
		n, err := nextSuffix(project, name)
		if err != nil {
			return "", err
		}
		dir = base + strconv.Itoa(n)
	} else if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	return dir, nil
}

func nextSuffix(project, name string) (int, error) {
	entries, err := os.ReadDir(project)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", project, err)
	}

	re := regexp.MustCompile("^" + regexp.QuoteMeta(name) + `(\d+)$`)
	highest := 0
	for _, e := range entries {
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
