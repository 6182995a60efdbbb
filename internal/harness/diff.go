package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// GoldenPath returns where the golden trace of a scenario is kept:
// golden/{name}.golden next to the scenario files.
func GoldenPath(scenarioDir, name string) string {
	return filepath.Join(scenarioDir, "golden", name+".golden")
}

// CompareGolden compares a rendered trace with the golden file at path.
// It returns an empty diff when they match, or when no golden file
// exists and update is false. With update set, the file is (re)written.
func CompareGolden(path string, got []byte, update bool) (string, error) {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create golden directory: %w", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			return "", fmt.Errorf("write golden file: %w", err)
		}
		return "", nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read golden file: %w", err)
	}
	if string(want) == string(got) {
		return "", nil
	}
	return Diff(string(want), string(got)), nil
}

// Diff returns a line diff of two traces: "- " lines are only in want,
// "+ " lines only in got.
func Diff(want, got string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(want, got)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var buf strings.Builder
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" {
			continue
		}
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, l := range strings.Split(text, "\n") {
			buf.WriteString(prefix + l + "\n")
		}
	}
	return buf.String()
}
