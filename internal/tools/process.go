package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/registry"
	"gopkg.in/yaml.v3"
)

// ArgEnvPrefix prefixes the environment variables carrying tool arguments.
const ArgEnvPrefix = "ERRAND_ARG_"

// ProcessConfig declares an external command exposed as a tool.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Parameters  map[string]any    `yaml:"parameters" json:"parameters"`
	// Scopes lists the task types allowed to plan with this tool.
	Scopes []string `yaml:"scopes" json:"scopes"`
}

// Catalog is the structure of a tools file.
type Catalog struct {
	Tools []ProcessConfig `yaml:"tools" json:"tools"`
}

// LoadCatalog reads a YAML or JSON tools file. A missing file is an empty
// catalog.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("read tool catalog: %w", err)
	}

	var cat Catalog
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cat)
	} else {
		err = yaml.Unmarshal(data, &cat)
	}
	if err != nil {
		return Catalog{}, fmt.Errorf("parse tool catalog %s: %w", path, err)
	}

	kept := cat.Tools[:0]
	for _, t := range cat.Tools {
		if t.Name == "" || t.Command == "" {
			continue
		}
		kept = append(kept, t)
	}
	cat.Tools = kept
	return cat, nil
}

// Process runs catalog commands. Arguments are never placed on the command
// line; each one becomes an ERRAND_ARG_<KEY> environment variable.
type Process struct {
	baseDir string
}

// ProcessOption configures Process.
type ProcessOption func(*Process)

// WithBaseDir sets the working directory for executed commands.
func WithBaseDir(dir string) ProcessOption {
	return func(p *Process) {
		p.baseDir = dir
	}
}

// NewProcess creates a process tool runner.
func NewProcess(opts ...ProcessOption) *Process {
	p := &Process{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds every catalog entry to reg and applies its scopes.
func (p *Process) Register(reg *registry.Registry, cat Catalog) error {
	for _, cfg := range cat.Tools {
		spec := domain.Tool{Name: cfg.Name, Description: cfg.Description, Parameters: cfg.Parameters}
		if err := reg.Register(spec, p.Tool(cfg)); err != nil {
			return fmt.Errorf("register %s: %w", cfg.Name, err)
		}
		for _, scope := range cfg.Scopes {
			tt, ok := domain.ParseTaskType(scope)
			if !ok {
				return fmt.Errorf("tool %s: unknown scope %q", cfg.Name, scope)
			}
			reg.Scope(tt, cfg.Name)
		}
	}
	return nil
}

// Tool adapts one catalog entry into a ToolFunction. A non-zero exit is a
// tool error carrying stderr; stdout that parses as JSON is returned
// decoded, anything else as a trimmed string.
func (p *Process) Tool(cfg ProcessConfig) registry.ToolFunction {
	return func(ctx context.Context, args map[string]any) (any, error) {
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		cmd.Dir = p.baseDir
		cmd.Env = append(cmd.Environ(), argEnv(cfg.Environment, args)...)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%s failed: %w: %s", cfg.Name, err, strings.TrimSpace(stderr.String()))
		}
		return decodeOutput(stdout.String()), nil
	}
}

var argKeyRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

func argEnv(static map[string]string, args map[string]any) []string {
	env := make([]string, 0, len(static)+len(args))
	for k, v := range static {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		key := ArgEnvPrefix + strings.ToUpper(argKeyRe.ReplaceAllString(k, "_"))
		env = append(env, key+"="+argValue(v))
	}
	return env
}

func argValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}

func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
