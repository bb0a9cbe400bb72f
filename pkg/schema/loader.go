package schema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a single schema document. JSON is tried first, then YAML,
// so callers never need to declare the format up front.
func Parse(data []byte) (FormSchema, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return FormSchema{}, errorf("", "", "document is empty")
	}

	var form FormSchema
	if err := json.Unmarshal(data, &form); err == nil {
		return form, nil
	}
	if err := yaml.Unmarshal(data, &form); err != nil {
		return FormSchema{}, wrapError("", "", "document is not valid JSON or YAML", err)
	}
	return form, nil
}

// ParseCompile decodes and compiles a document in one step.
func ParseCompile(data []byte) (*CompiledSchema, error) {
	form, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Compile(form)
}

// LoadFS walks the filesystem, parses every .json/.yaml/.yml document and
// compiles it. Schema ids must be unique across all files. When fsys is
// nil the result is empty.
func LoadFS(fsys fs.FS) (map[string]*CompiledSchema, error) {
	schemas := make(map[string]*CompiledSchema)
	if fsys == nil {
		return schemas, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isSchemaFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("schema: read %s: %w", path, err)
		}

		compiled, err := ParseCompile(data)
		if err != nil {
			return fmt.Errorf("schema: load %s: %w", path, err)
		}

		if _, dup := schemas[compiled.ID()]; dup {
			return errorf(compiled.ID(), "", "duplicate schema id (file %s)", path)
		}
		schemas[compiled.ID()] = compiled
		return nil
	})
	if err != nil {
		return nil, err
	}

	return schemas, nil
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
