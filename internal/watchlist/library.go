package watchlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SavedInfo describes one named configuration in a library.
type SavedInfo struct {
	Name    string
	Pairs   int
	Corrupt bool
}

// Library is a directory of named watchlists.
type Library struct {
	dir string
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Path resolves a configuration name to its file.
func (l *Library) Path(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".json")
	if name == "" {
		return "", errors.New("configuration name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid configuration name %q", name)
	}
	return filepath.Join(l.dir, name+".json"), nil
}

// List returns every saved configuration sorted by name.
func (l *Library) List() ([]SavedInfo, error) {
	files, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list saved configurations: %w", err)
	}

	var out []SavedInfo
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info := SavedInfo{Name: strings.TrimSuffix(f.Name(), ".json")}
		res, err := Load(filepath.Join(l.dir, f.Name()))
		if err != nil {
			info.Corrupt = true
		} else {
			info.Pairs = len(res.Entries)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load reads a named configuration.
func (l *Library) Load(name string) (Result, error) {
	path, err := l.Path(name)
	if err != nil {
		return Result{}, err
	}
	return Load(path)
}

// Save stores entries under name.
func (l *Library) Save(name string, entries []Entry) (string, error) {
	path, err := l.Path(name)
	if err != nil {
		return "", err
	}
	return path, Save(path, entries)
}
