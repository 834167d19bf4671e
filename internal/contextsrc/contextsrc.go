// Package contextsrc is the filesystem/git-backed context source consumed by
// the compiler. Context is polled through the ContextSource interface, never
// pushed into the pipeline.
package contextsrc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Source resolves file and diff context references relative to a root
// directory.
type Source struct {
	root string
}

// New builds a source rooted at dir.
func New(root string) *Source {
	return &Source{root: root}
}

// ReadFile returns at most limit characters of the file at path. Relative
// paths resolve under the source root.
func (s *Source) ReadFile(_ context.Context, path string, limit int) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.root, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read context file: %w", err)
	}
	content := string(data)
	if limit > 0 && len(content) > limit {
		content = content[:limit] + "\n[truncated]"
	}
	return content, nil
}

// Diff resolves a diff ref via git. Refs are whatever `git diff` accepts
// (commit, range, branch). The context bounds the git invocation.
func (s *Source) Diff(ctx context.Context, ref string) (string, error) {
	out, err := runGit(ctx, s.root, "diff", ref)
	if err != nil {
		return "", fmt.Errorf("resolve diff ref %q: %w", ref, err)
	}
	return out, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	log.Debug().Str("dir", dir).Strs("args", args).Msg("running git command")
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
