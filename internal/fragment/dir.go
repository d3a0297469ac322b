package fragment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
)

// extensions are tried in order for each fragment name.
var extensions = []string{".yaml", ".yml", ".json"}

// DirSource reads one <name>.yaml, <name>.yml or <name>.json file per
// fragment from a directory.
type DirSource struct {
	Dir string
}

func (s DirSource) DefaultFragment(ctx context.Context) (doc.Value, error) {
	return s.FragmentForGroup(ctx, emm.DefaultPolicy)
}

func (s DirSource) FragmentForGroup(_ context.Context, name string) (doc.Value, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid fragment name %q", name)
	}
	for _, ext := range extensions {
		path := filepath.Join(s.Dir, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read fragment: %w", err)
		}
		v, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("fragment %s: %w", path, err)
		}
		return v, nil
	}
	return nil, nil
}

// Decode parses a YAML or JSON fragment. JSON is a subset of YAML, but JSON
// input goes through doc.Parse so large integers keep their precision.
func Decode(data []byte) (doc.Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if v, err := doc.Parse(trimmed); err == nil {
			return v, nil
		}
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return doc.FromAny(raw)
}
