// Package git transfers branches and tags between two remotes by way of
// a local bare clone.
package git

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// DefaultHost is the git host used when none is configured.
const DefaultHost = "github.com"

// refspecs lists what a transfer copies. GitHub also serves refs/pull/*,
// which it refuses to accept on push, so only branches and tags move.
var refspecs = []string{
	"+refs/heads/*:refs/heads/*",
	"+refs/tags/*:refs/tags/*",
}

// Runner runs git with args in dir, with env added to the process
// environment, and returns its combined output.
type Runner func(ctx context.Context, dir string, env []string, args ...string) ([]byte, error)

// ExecRunner runs the git binary found on PATH. Hooks and templates are
// disabled and git never prompts for credentials.
func ExecRunner(ctx context.Context, dir string, env []string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_HOOKS_PATH=",
		"GIT_TEMPLATE_DIR=",
	)
	cmd.Env = append(cmd.Env, env...)
	return cmd.CombinedOutput()
}

// Remote is one end of a transfer. Login and Token, when both set,
// authenticate the single git invocation that talks to URL; they are
// never written to the clone's config.
type Remote struct {
	URL   string
	Login string
	Token string
}

// env passes the credentials as command-scoped git config, which keeps
// them out of argv and off disk.
func (r Remote) env() []string {
	if r.Login == "" || r.Token == "" {
		return nil
	}
	basic := base64.StdEncoding.EncodeToString([]byte(r.Login + ":" + r.Token))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraHeader",
		"GIT_CONFIG_VALUE_0=Authorization: Basic " + basic,
	}
}

// RemoteURL returns the HTTPS URL of repo on host.
func RemoteURL(host string, repo types.RepoRef) string {
	if host == "" {
		host = DefaultHost
	}
	u := url.URL{
		Scheme: "https",
		Host:   host,
		Path:   "/" + repo.Owner + "/" + repo.Name + ".git",
	}
	return u.String()
}

var credentials = regexp.MustCompile(`(://[^/:@\s]+:)[^@\s]+@`)

// Redact replaces the password of every URL in s.
func Redact(s string) string {
	return credentials.ReplaceAllString(s, "${1}***@")
}

// CommandError is a failed git invocation. Args and Output are redacted.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Mirror keeps bare clones under Dir and pushes them on.
type Mirror struct {
	Dir    string
	Run    Runner
	logger *slog.Logger
}

// NewMirror returns a mirror working in dir. An empty dir selects a
// directory under the user cache directory.
func NewMirror(dir string, logger *slog.Logger) *Mirror {
	if dir == "" {
		if cache, err := os.UserCacheDir(); err == nil {
			dir = filepath.Join(cache, "github-migrator", "mirrors")
		} else {
			dir = filepath.Join(os.TempDir(), "github-migrator-mirrors")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{Dir: dir, Run: ExecRunner, logger: logger}
}

// Path returns the location of the bare clone for name.
func (m *Mirror) Path(name string) string {
	return filepath.Join(m.Dir, name+".git")
}

// Transfer copies every branch and tag of source to target. The first
// transfer of name creates the bare clone; later ones fetch into it.
// Branches and tags on the target that the source lacks are deleted.
func (m *Mirror) Transfer(ctx context.Context, name string, source, target Remote) error {
	path := m.Path(name)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		m.logger.Info("updating mirror clone", "path", path, "source", Redact(source.URL))
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(m.Dir, 0o750); err != nil {
			return fmt.Errorf("create mirror directory: %w", err)
		}
		m.logger.Info("creating mirror clone", "path", path, "source", Redact(source.URL))
		if err := m.git(ctx, m.Dir, nil, "init", "--bare", "--quiet", path); err != nil {
			return err
		}
	default:
		return fmt.Errorf("stat mirror clone: %w", err)
	}

	fetch := append([]string{"fetch", "--prune", "--no-tags", source.URL}, refspecs...)
	if err := m.git(ctx, path, source.env(), fetch...); err != nil {
		return err
	}

	m.logger.Info("pushing branches and tags", "target", Redact(target.URL))
	push := append([]string{"push", "--prune", target.URL}, refspecs...)
	if err := m.git(ctx, path, target.env(), push...); err != nil {
		return err
	}
	m.logger.Info("mirror transfer done", "repo", name)
	return nil
}

func (m *Mirror) git(ctx context.Context, dir string, env []string, args ...string) error {
	redacted := make([]string, len(args))
	for i, a := range args {
		redacted[i] = Redact(a)
	}
	m.logger.Debug("running git", "dir", dir, "args", strings.Join(redacted, " "))
	out, err := m.Run(ctx, dir, env, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &CommandError{
			Args:   redacted,
			Output: strings.TrimSpace(Redact(string(out))),
			Err:    err,
		}
	}
	return nil
}
