package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/sitesnap/internal/snapshot"
	"gopkg.in/yaml.v3"
)

// projectsFile is the --projects-file format:
//
//	projects:
//	  - 5f1a0c2b3d4e5f6a7b8c9d0e
//	  - neuro/study-a
type projectsFile struct {
	Projects []string `yaml:"projects"`
}

// loadProjectsFile reads project references from a YAML file.
func loadProjectsFile(path string) ([]snapshot.ProjectRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projects file: %w", err)
	}

	var pf projectsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse projects file %s: %w", path, err)
	}

	refs := parseRefs(pf.Projects)
	if len(refs) == 0 {
		return nil, fmt.Errorf("projects file %s lists no projects", path)
	}
	return refs, nil
}

// parseRefs turns IDs and group/label paths into references, skipping blanks.
func parseRefs(values []string) []snapshot.ProjectRef {
	refs := make([]snapshot.ProjectRef, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		refs = append(refs, snapshot.ParseRef(v))
	}
	return refs
}
