// Package config resolves migrator settings from flags, the environment,
// a config file and a .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// Key describes one configuration setting.
type Key struct {
	Name        string // canonical name, used in error messages
	File        string // dotted key in the config file
	EnvVar      string
	Flag        string // CLI flag name (empty = no flag)
	Description string
	Secret      bool
	Default     string
}

// Keys defines every setting the migrator reads.
var Keys = []Key{
	{Name: "source_token", File: "github.source_token", EnvVar: "GITHUB_SOURCE_TOKEN", Flag: "source-token", Description: "token for the source account", Secret: true},
	{Name: "target_token", File: "github.target_token", EnvVar: "GITHUB_TARGET_TOKEN", Flag: "target-token", Description: "token for the target account", Secret: true},
	{Name: "source_org", File: "source.org", EnvVar: "GITHUB_SOURCE_ORG", Flag: "source-org", Description: "owner of the source repository"},
	{Name: "source_repo", File: "source.repo", EnvVar: "GITHUB_SOURCE_REPO", Flag: "source-repo", Description: "name of the source repository"},
	{Name: "target_org", File: "target.org", EnvVar: "GITHUB_TARGET_ORG", Flag: "target-org", Description: "owner of the target repository"},
	{Name: "target_repo", File: "target.repo", EnvVar: "GITHUB_TARGET_REPO", Flag: "target-repo", Description: "name of the target repository"},
	{Name: "source_project_name", File: "project.source_project_name", EnvVar: "GITHUB_SOURCE_PROJECT_NAME", Flag: "source-project", Description: "title of the source project"},
	{Name: "target_project_name", File: "project.target_project_name", EnvVar: "GITHUB_TARGET_PROJECT_NAME", Flag: "target-project", Description: "title of the target project"},
	{Name: "api_url", File: "api_url", EnvVar: "GITHUB_API_URL", Flag: "api-url", Description: "GraphQL endpoint", Default: "https://api.github.com/graphql"},
	{Name: "git_host", File: "git_host", EnvVar: "GITHUB_GIT_HOST", Flag: "git-host", Description: "host of the git remotes", Default: "github.com"},
	{Name: "mirror_dir", File: "mirror_dir", EnvVar: "GITHUB_MIRROR_DIR", Flag: "mirror-dir", Description: "directory for bare mirror clones"},
}

var keyByName map[string]*Key

func init() {
	keyByName = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyByName[Keys[i].Name] = &Keys[i]
	}
}

// LookupKey returns the definition of a named key, or nil.
func LookupKey(name string) *Key {
	return keyByName[name]
}

// DefaultConfigPath returns ~/.config/github-migrator/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "github-migrator", "config.yaml")
}

// Action is something the migrator is asked to do; each needs its own
// settings.
type Action string

const (
	ActionRepo    Action = "repo"
	ActionMirror  Action = "mirror"
	ActionProject Action = "project"
)

var required = map[Action][]string{
	ActionRepo:    {"source_token", "target_token", "source_org", "source_repo", "target_org", "target_repo"},
	ActionMirror:  {"source_token", "target_token", "source_org", "source_repo", "target_org", "target_repo"},
	ActionProject: {"source_token", "target_token", "source_org", "target_org", "source_project_name", "target_project_name"},
}

// Error reports settings that are missing for the requested actions.
type Error struct {
	Missing []string // key names, sorted
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Missing))
	for i, name := range e.Missing {
		parts[i] = name
		if k := keyByName[name]; k != nil {
			parts[i] = fmt.Sprintf("%s (%s or %s)", name, k.EnvVar, k.File)
		}
	}
	return "missing required configuration: " + strings.Join(parts, ", ")
}

// Config is the resolved configuration.
type Config struct {
	SourceToken   string
	TargetToken   string
	Source        types.RepoRef
	Target        types.RepoRef
	SourceProject string
	TargetProject string
	APIURL        string
	GitHost       string
	MirrorDir     string

	// File is the config file that was read, if any.
	File string

	values map[string]string
}

// Get returns the resolved value of a named key.
func (c *Config) Get(name string) string {
	return c.values[name]
}

// Validate checks that every setting needed by actions is present.
func (c *Config) Validate(actions ...Action) error {
	seen := map[string]bool{}
	var missing []string
	for _, a := range actions {
		for _, name := range required[a] {
			if seen[name] {
				continue
			}
			seen[name] = true
			if strings.TrimSpace(c.values[name]) == "" {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &Error{Missing: missing}
}

// Loader accumulates configuration sources and resolves them.
type Loader struct {
	v *viper.Viper

	// ConfigFile is an explicit config file; it must exist. When empty
	// the default path is read if present.
	ConfigFile string
	// EnvFile is the dotenv file read at the lowest precedence.
	EnvFile string
}

// NewLoader returns a loader with environment bindings in place.
func NewLoader() *Loader {
	v := viper.New()
	for _, k := range Keys {
		if k.Default != "" {
			v.SetDefault(k.File, k.Default)
		}
		_ = v.BindEnv(k.File, k.EnvVar)
	}
	return &Loader{v: v, EnvFile: ".env"}
}

// BindFlags binds every key flag present in fs. Flags override all
// other sources when set.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for _, k := range Keys {
		if k.Flag == "" {
			continue
		}
		f := fs.Lookup(k.Flag)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(k.File, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", k.Flag, err)
		}
	}
	return nil
}

// AddFlags registers a string flag for every key on fs.
func AddFlags(fs *pflag.FlagSet) {
	for _, k := range Keys {
		if k.Flag != "" && fs.Lookup(k.Flag) == nil {
			fs.String(k.Flag, "", k.Description)
		}
	}
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.readEnvFile(); err != nil {
		return nil, err
	}
	file, err := l.readConfigFile()
	if err != nil {
		return nil, err
	}

	cfg := &Config{File: file, values: make(map[string]string, len(Keys))}
	for _, k := range Keys {
		cfg.values[k.Name] = strings.TrimSpace(l.v.GetString(k.File))
	}
	cfg.SourceToken = cfg.values["source_token"]
	cfg.TargetToken = cfg.values["target_token"]
	cfg.Source = types.RepoRef{Owner: cfg.values["source_org"], Name: cfg.values["source_repo"]}
	cfg.Target = types.RepoRef{Owner: cfg.values["target_org"], Name: cfg.values["target_repo"]}
	cfg.SourceProject = cfg.values["source_project_name"]
	cfg.TargetProject = cfg.values["target_project_name"]
	cfg.APIURL = cfg.values["api_url"]
	cfg.GitHost = cfg.values["git_host"]
	cfg.MirrorDir = cfg.values["mirror_dir"]
	return cfg, nil
}

// readEnvFile installs .env values as defaults, below every other source.
func (l *Loader) readEnvFile() error {
	if l.EnvFile == "" {
		return nil
	}
	env, err := godotenv.Read(l.EnvFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", l.EnvFile, err)
	}
	for _, k := range Keys {
		if val, ok := env[k.EnvVar]; ok {
			l.v.SetDefault(k.File, val)
		}
	}
	return nil
}

func (l *Loader) readConfigFile() (string, error) {
	path := l.ConfigFile
	if path == "" {
		path = DefaultConfigPath()
		if path == "" {
			return "", nil
		}
		if _, err := os.Stat(path); err != nil {
			return "", nil
		}
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %s: %w", path, err)
	}
	return path, nil
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}
