package workflows

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hangarhq/hangar/pkg/ignition"
)

// LoadTemplates reads every *.json file in dir as a workflow template.
// Templates are returned sorted by filename, so deployment order is
// deterministic and can be controlled with numeric prefixes.
func LoadTemplates(dir string) ([]ignition.WorkflowTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading template directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	templates := make([]ignition.WorkflowTemplate, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", name, err)
		}
		templates = append(templates, ignition.WorkflowTemplate{
			Name: strings.TrimSuffix(name, ".json"),
			JSON: data,
		})
	}
	return templates, nil
}
