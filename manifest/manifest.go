// Package manifest handles vmgen.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "vmgen.toml"

// Manifest represents a vmgen.toml project configuration.
type Manifest struct {
	Project  Project   `toml:"project" json:"project"`
	Source   Source    `toml:"source" json:"source"`
	Compiler Compiler  `toml:"compiler" json:"compiler"`
	Cache    Cache     `toml:"cache" json:"cache"`
	Server   Server    `toml:"server" json:"server"`
	Builtins []Builtin `toml:"builtin" json:"builtin,omitempty"`
	Cases    []Cases   `toml:"cases" json:"cases,omitempty"`

	// Dir is the directory containing the vmgen.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name" json:"name,omitempty"`
}

// Source configures where declaration batches are read from.
type Source struct {
	Dirs []string `toml:"dirs" json:"dirs,omitempty"`
}

// Compiler configures the batch driver.
type Compiler struct {
	Jobs   int      `toml:"jobs" json:"jobs,omitempty"`
	Trace  []string `toml:"trace" json:"trace,omitempty"`
	Verify bool     `toml:"verify" json:"verify,omitempty"`
}

// Cache configures the procedure cache. An empty path keeps it in memory.
type Cache struct {
	Path string `toml:"path" json:"path,omitempty"`
}

// Server configures the compile service.
type Server struct {
	Port int `toml:"port" json:"port,omitempty"`
}

// Builtin declares a VM intrinsic or native function.
type Builtin struct {
	Name  string `toml:"name" json:"name"`
	Arity uint32 `toml:"arity" json:"arity"`
	Kind  string `toml:"kind" json:"kind"`
}

// Cases registers a built-in case analyzer.
type Cases struct {
	Name         string `toml:"name" json:"name"`
	Index        uint32 `toml:"index" json:"index"`
	Alternatives uint32 `toml:"alternatives" json:"alternatives"`
}

// DefaultPort is the compile service port when none is configured.
const DefaultPort = 8970

// Load parses a vmgen.toml file from the given directory, validates it and
// applies environment overrides.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates configuration text. The result has defaults
// and environment overrides applied but no Dir.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	m.ApplyDefaults()
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Default returns the configuration used when no vmgen.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.ApplyDefaults()
	return m
}

// ApplyDefaults fills in unset values.
func (m *Manifest) ApplyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"build"}
	}
	if m.Server.Port == 0 {
		m.Server.Port = DefaultPort
	}
}

// FindAndLoad walks up from startDir to find a vmgen.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// BatchFiles returns every *.cbor file in the source directories, sorted.
// Missing directories are skipped.
func (m *Manifest) BatchFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		matches, err := filepath.Glob(filepath.Join(dir, "*.cbor"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// CachePath returns the cache database path resolved against Dir, or ""
// for an in-memory cache.
func (m *Manifest) CachePath() string {
	if m.Cache.Path == "" || filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
