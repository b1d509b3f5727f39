package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadRegoFiles reads every .rego file in dir, keyed by file name.
// Subdirectories are not descended into.
func LoadRegoFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(src)
	}
	return modules, nil
}
