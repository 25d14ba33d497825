package chain

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a BLAKE3 digest of everything registered so far. Two
// builders with the same steps, annotations, initial and final items yield
// the same fingerprint regardless of registration order. Step functions are
// not part of the digest; callers that bind behaviour through arguments
// should annotate the step with them.
func (b *Builder) Fingerprint() string {
	h := blake3.New()

	names := b.Steps()
	sort.Strings(names)
	for _, name := range names {
		writeStepDigest(h, &b.byName[name].info)
	}
	for _, id := range sortedIDs(b.initial) {
		fmt.Fprintf(h, "initial %s\n", id)
	}
	for _, id := range sortedIDs(b.finals) {
		fmt.Fprintf(h, "final %s\n", id)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeStepDigest(w io.Writer, s *StepInfo) {
	fmt.Fprintf(w, "step %q essential=%t\n", s.Name, !s.NonEssential)
	for _, c := range s.Consumes {
		fmt.Fprintf(w, "  consumes %s optional=%t\n", c.Item, c.Optional)
	}
	for _, p := range s.Produces {
		fmt.Fprintf(w, "  produces %s %s\n", p.Item, p.Kind)
	}
	keys := make([]string, 0, len(s.Annotations))
	for k := range s.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s=%q\n", k, s.Annotations[k])
	}
}
