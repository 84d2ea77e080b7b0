package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ylqcxwl/youtube-notifier/internal/atomicio"
	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

// File stores state as an indented JSON document, or YAML when the path
// ends in .yaml or .yml.
type File struct {
	path string
	yaml bool
}

// NewFile returns a File backend for path.
func NewFile(path string) *File {
	ext := strings.ToLower(filepath.Ext(path))
	return &File{path: path, yaml: ext == ".yaml" || ext == ".yml"}
}

// Path returns the location of the state file.
func (f *File) Path() string {
	return f.path
}

// Load reads the state file. A missing file yields an empty state.
func (f *File) Load(_ context.Context) (model.State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.State{}, nil
	}

	state := model.State{}
	if f.yaml {
		err = yaml.Unmarshal(data, &state)
	} else {
		err = json.Unmarshal(data, &state)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, f.path, err)
	}

	for id, rec := range state {
		if rec == nil {
			state[id] = &model.Record{}
		}
	}
	return state, nil
}

// Save writes the full state atomically, creating the parent directory
// when it does not exist.
func (f *File) Save(_ context.Context, state model.State) error {
	data, err := f.encode(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	if err := atomicio.WriteFile(f.path, data, atomicio.Perm(f.path, 0o644)); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

func (f *File) encode(state model.State) ([]byte, error) {
	if state == nil {
		state = model.State{}
	}
	var buf bytes.Buffer
	if f.yaml {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(4)
		if err := enc.Encode(state); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close implements Backend.
func (f *File) Close() error {
	return nil
}
