// Package manifest loads and validates plugin manifests.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/dorcha-inc/hookhost/internal/core"
)

const (
	// FileName is the native plugin manifest.
	FileName = "plugin.yaml"
	// JSONFileName holds the native manifest fields as JSON.
	JSONFileName = "plugin.json"
	// LegacyFileName is read when neither native manifest exists. Only name,
	// version, description and main are honoured.
	LegacyFileName = "package.json"
	// DefaultEntrypoint is used when the manifest names none.
	DefaultEntrypoint = "bin/plugin"
)

// Manifest describes one installed plugin.
type Manifest struct {
	Name        string            `yaml:"name" validate:"required,excludesall=/\\"`
	Version     string            `yaml:"version,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Entrypoint  string            `yaml:"entrypoint,omitempty"`
	Interpreter string            `yaml:"interpreter,omitempty"`
	Args        []string          `yaml:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	HostVersion string            `yaml:"host_version,omitempty"`

	// Dir is the absolute plugin directory. Set by Load.
	Dir string `yaml:"-"`
	// InterpreterArgs come from the entrypoint shebang when no interpreter is declared.
	InterpreterArgs []string `yaml:"-"`
}

type packageJSON struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Main        string `json:"main"`
}

// Load reads the manifest from pluginDir. plugin.yaml wins over plugin.json,
// which wins over package.json.
func Load(pluginDir string) (*Manifest, error) {
	absDir, err := filepath.Abs(pluginDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugin directory: %w", err)
	}

	// Open root directory for secure file access
	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin directory: %w", err)
	}
	defer core.LogDeferredError(root.Close)

	m, err := readManifest(root)
	if err != nil {
		return nil, err
	}

	if m.Entrypoint == "" {
		m.Entrypoint = DefaultEntrypoint
	}
	m.Dir = absDir
	return m, nil
}

func readManifest(root *os.Root) (*Manifest, error) {
	for _, name := range []string{FileName, JSONFileName} {
		data, err := root.ReadFile(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		// JSON documents are valid YAML, so one decoder serves both.
		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return &m, nil
	}

	data, err := root.ReadFile(LegacyFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s, %s or %s: %w", FileName, JSONFileName, LegacyFileName, err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", LegacyFileName, err)
	}
	return &Manifest{Name: pkg.Name, Version: pkg.Version, Description: pkg.Description, Entrypoint: pkg.Main}, nil
}

var validate = validator.New()

// Validate checks required fields, version compatibility and the entrypoint.
// A non-executable entrypoint without a declared interpreter gets one from its shebang.
func Validate(m *Manifest) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}

	if m.Version != "" && !semver.IsValid(canonical(m.Version)) {
		return fmt.Errorf("invalid version %q: must be semantic version", m.Version)
	}

	if m.HostVersion != "" {
		want := canonical(m.HostVersion)
		if !semver.IsValid(want) {
			return fmt.Errorf("invalid host_version %q: must be semantic version", m.HostVersion)
		}
		if semver.Compare(core.HostVersion, want) < 0 {
			return fmt.Errorf("plugin %s requires hookhost %s or newer (running %s)", m.Name, want, core.HostVersion)
		}
	}

	root, err := os.OpenRoot(m.Dir)
	if err != nil {
		return fmt.Errorf("failed to open plugin directory: %w", err)
	}
	defer core.LogDeferredError(root.Close)

	// os.Root rejects entrypoints that escape the plugin directory
	info, err := root.Stat(m.Entrypoint)
	if err != nil {
		return fmt.Errorf("failed to validate entrypoint: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("entrypoint %s is a directory", m.Entrypoint)
	}

	if m.Interpreter == "" && !core.IsExecutable(info) {
		interpreter, args, err := ReadInterpreter(root, m.Entrypoint)
		if err != nil {
			return fmt.Errorf("entrypoint %s is not executable and declares no interpreter: %w", m.Entrypoint, err)
		}
		zap.L().Debug("Entrypoint is not executable, using shebang interpreter",
			zap.String("plugin", m.Name),
			zap.String("interpreter", interpreter))
		m.Interpreter = interpreter
		m.InterpreterArgs = args
	}

	return nil
}

// LoadAndValidate is Load followed by Validate.
func LoadAndValidate(pluginDir string) (*Manifest, error) {
	m, err := Load(pluginDir)
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// EntrypointPath returns the absolute entrypoint path.
func (m *Manifest) EntrypointPath() string {
	return filepath.Join(m.Dir, filepath.FromSlash(m.Entrypoint))
}

// Command returns the program and arguments that start the plugin.
func (m *Manifest) Command() (string, []string) {
	if m.Interpreter == "" {
		return m.EntrypointPath(), append([]string(nil), m.Args...)
	}
	args := make([]string, 0, len(m.InterpreterArgs)+1+len(m.Args))
	args = append(args, m.InterpreterArgs...)
	args = append(args, m.EntrypointPath())
	args = append(args, m.Args...)
	return m.Interpreter, args
}

func canonical(version string) string {
	if len(version) > 0 && version[0] == 'v' {
		return version
	}
	return "v" + version
}
