// Package profile loads agent profiles: markdown bundles with a yaml
// frontmatter header describing prompt, model and tool configuration.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agent-conductor/conductord/internal/config"
)

// ErrProfileNotFound reports that no profile file exists for the name in
// any search directory.
var ErrProfileNotFound = errors.New("agent profile not found")

type MCPServer struct {
	Type    string            `yaml:"type" json:"type"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

type Profile struct {
	Name            string               `yaml:"name"`
	Description     string               `yaml:"description"`
	DefaultProvider string               `yaml:"default_provider"`
	Model           string               `yaml:"model"`
	Tools           []string             `yaml:"tools"`
	MCPServers      map[string]MCPServer `yaml:"mcpServers"`
	Variables       map[string]string    `yaml:"variables"`
	Prompt          string               `yaml:"prompt"`
	Notes           string               `yaml:"notes"`

	// Body is the markdown content below the frontmatter block.
	Body string `yaml:"-"`
}

// SystemPrompt joins the frontmatter prompt and the markdown body into
// the text handed to the agent process.
func (p *Profile) SystemPrompt() string {
	var sections []string
	if s := strings.TrimSpace(p.Prompt); s != "" {
		sections = append(sections, s)
	}
	if s := strings.TrimSpace(p.Body); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n")
}

// Loader resolves profile names against project, user and bundled
// directories, in that order.
type Loader struct {
	dirs []string
}

func NewLoader(cfg *config.ProfilesConfig) *Loader {
	return &Loader{dirs: []string{cfg.ProjectDir, cfg.UserDir, cfg.BundledDir}}
}

// NewLoaderFromDirs builds a loader over explicit directories, used by tests.
func NewLoaderFromDirs(dirs ...string) *Loader {
	return &Loader{dirs: dirs}
}

func (l *Loader) Load(name string) (*Profile, error) {
	for _, dir := range l.dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, name+".md")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read agent profile %q: %w", name, err)
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse agent profile %q: %w", name, err)
		}
		if p.Name == "" {
			p.Name = name
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
}

// Parse splits a profile file into frontmatter and body. A file without
// a frontmatter block is treated as pure body text.
func Parse(data []byte) (*Profile, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	var p Profile
	if rest, ok := strings.CutPrefix(text, "---\n"); ok {
		meta, body, found := strings.Cut(rest, "\n---")
		if !found {
			return nil, fmt.Errorf("unterminated frontmatter block")
		}
		if err := yaml.Unmarshal([]byte(meta), &p); err != nil {
			return nil, err
		}
		p.Body = strings.TrimSpace(strings.TrimPrefix(body, "\n"))
		return &p, nil
	}

	p.Body = strings.TrimSpace(text)
	return &p, nil
}
