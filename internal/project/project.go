// Package project resolves the routing identity stamped onto every
// event: the project file under .chute/ plus whatever git reveals about
// the working copy.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chutedev/chute/internal/envelope"
)

// ConfigFile is the project file path relative to the project root.
const ConfigFile = ".chute/project.yaml"

// ErrNotFound is returned when no project file exists between the start
// directory and the filesystem root.
var ErrNotFound = errors.New("no .chute/project.yaml found: run inside a project or pass --project")

// Config is the parsed project file. All fields are optional except
// ProjectUUID must be a valid UUID when present; a config without one
// yields local-only events.
type Config struct {
	// ServerURL overrides the sync endpoint stored with credentials.
	ServerURL string `yaml:"server_url,omitempty"`

	// TeamSlug identifies the owning team on the server.
	TeamSlug string `yaml:"team_slug,omitempty"`

	// ProjectUUID is the server-side project identity. Events emitted
	// without it never leave the local store.
	ProjectUUID string `yaml:"project_uuid,omitempty"`

	// ProjectSlug is the human-readable project name.
	ProjectSlug string `yaml:"project_slug,omitempty"`

	// RepoSlug names the repository (e.g. "chutedev/chute").
	RepoSlug string `yaml:"repo_slug,omitempty"`

	// Root is the directory containing .chute/. Not read from YAML.
	Root string `yaml:"-"`
}

// Load reads and parses a project file. Unknown fields are rejected to
// catch typos; a present project_uuid must parse as a UUID.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse project file %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", path, err)
	}

	cfg.Root = filepath.Dir(filepath.Dir(path))
	return &cfg, nil
}

// Find walks up from startDir looking for .chute/project.yaml, the way
// git discovers its repository root. Returns ErrNotFound when no
// ancestor carries one.
func Find(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, ConfigFile)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNotFound
		}
		dir = parent
	}
}

// validate checks field formats. The file may be sparse; only what is
// present must be well-formed.
func validate(cfg *Config) error {
	if cfg.ProjectUUID != "" {
		if _, err := uuid.Parse(cfg.ProjectUUID); err != nil {
			return fmt.Errorf("project_uuid %q is not a valid UUID", cfg.ProjectUUID)
		}
	}
	return nil
}

// Routing combines the project identity with git state into the routing
// block the event factory stamps onto envelopes.
func (c *Config) Routing(git GitInfo) envelope.Routing {
	return envelope.Routing{
		TeamSlug:      c.TeamSlug,
		ProjectUUID:   c.ProjectUUID,
		ProjectSlug:   c.ProjectSlug,
		GitBranch:     git.Branch,
		HeadCommitSHA: git.CommitSHA,
		RepoSlug:      c.RepoSlug,
	}
}
