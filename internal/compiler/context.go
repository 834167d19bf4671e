package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/metalagman/forma/internal/ir"
)

// ContextSource resolves file and diff references for the compiler. The
// concrete collection of filesystem/git context lives outside this package.
type ContextSource interface {
	// ReadFile returns at most limit characters of the file at path.
	ReadFile(ctx context.Context, path string, limit int) (string, error)
	// Diff returns the diff content for an external ref.
	Diff(ctx context.Context, ref string) (string, error)
}

// contextBlock is one resolved context reference. Blocks keep the ref order
// of the IR; later blocks are lower priority for budget pruning.
type contextBlock struct {
	Ref     string
	Content string
}

// resolveContext resolves every context_ref through the prefix grammar:
// file:<path>, diff:<ref>, memory:<key>, the digest sentinel, and an
// unprefixed raw file path. References that resolve to nothing are dropped
// and counted.
func resolveContext(ctx context.Context, p *ir.PromptIR, source ContextSource, fileCap int) (blocks []contextBlock, dropped int) {
	for _, ref := range p.ContextRefs {
		content, ok := resolveRef(ctx, p, source, ref, fileCap)
		if !ok || strings.TrimSpace(content) == "" {
			dropped++
			continue
		}
		blocks = append(blocks, contextBlock{Ref: ref, Content: content})
	}
	return blocks, dropped
}

func resolveRef(ctx context.Context, p *ir.PromptIR, source ContextSource, ref string, fileCap int) (string, bool) {
	switch {
	case ref == ir.ContextDigestSentinel:
		digest, ok := p.Metadata[ir.MetaContextDigest].(string)
		return digest, ok
	case strings.HasPrefix(ref, "memory:"):
		key := strings.TrimPrefix(ref, "memory:")
		return stringify(p.Metadata[key])
	case strings.HasPrefix(ref, "file:"):
		return readFile(ctx, source, strings.TrimPrefix(ref, "file:"), fileCap)
	case strings.HasPrefix(ref, "diff:"):
		if source == nil {
			return "", false
		}
		diff, err := source.Diff(ctx, strings.TrimPrefix(ref, "diff:"))
		if err != nil {
			return "", false
		}
		return diff, true
	default:
		// Unprefixed refs are raw file path references.
		return readFile(ctx, source, ref, fileCap)
	}
}

func readFile(ctx context.Context, source ContextSource, path string, fileCap int) (string, bool) {
	if source == nil {
		return "", false
	}
	content, err := source.ReadFile(ctx, path, fileCap)
	if err != nil {
		return "", false
	}
	return content, true
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	default:
		return fmt.Sprintf("%v", t), true
	}
}
