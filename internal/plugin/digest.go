package plugin

import (
	"fmt"
	"strings"

	"github.com/metalagman/forma/internal/ir"
)

// DefaultDigestThreshold is the context_refs length above which digesting
// triggers.
const DefaultDigestThreshold = 10

// ContextDigest folds an oversized context_refs list into a single sentinel
// reference plus a metadata digest. Below the threshold it is a no-op that
// returns the identical input object.
type ContextDigest struct {
	threshold int
}

// NewContextDigest builds the digest plugin. A non-positive threshold falls
// back to the default.
func NewContextDigest(threshold int) *ContextDigest {
	if threshold <= 0 {
		threshold = DefaultDigestThreshold
	}
	return &ContextDigest{threshold: threshold}
}

// Name implements Transformer.
func (d *ContextDigest) Name() string { return "context_digest" }

// Transform implements Transformer.
func (d *ContextDigest) Transform(in *ir.PromptIR) (*ir.PromptIR, string, error) {
	if len(in.ContextRefs) <= d.threshold {
		return in, "", nil
	}

	out := in.Clone()
	original := append([]string(nil), in.ContextRefs...)
	out.ContextRefs = []string{ir.ContextDigestSentinel}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	out.Metadata[ir.MetaOriginalContextRefs] = original
	out.Metadata[ir.MetaContextDigest] = summarizeRefs(original)

	desc := fmt.Sprintf("digested %d context refs into sentinel", len(original))
	return out, desc, nil
}

// summarizeRefs produces a deterministic digest string for the folded refs.
func summarizeRefs(refs []string) string {
	const sample = 5
	head := refs
	if len(head) > sample {
		head = head[:sample]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d context references", len(refs))
	b.WriteString(": ")
	b.WriteString(strings.Join(head, ", "))
	if len(refs) > sample {
		fmt.Fprintf(&b, ", and %d more", len(refs)-sample)
	}
	return b.String()
}
