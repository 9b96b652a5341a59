// Package slug derives URL-safe unique identifiers from display names.
package slug

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

const DefaultMaxAttempts = 1000

// Normalize lower-cases name, folds accents and replaces every run of
// non-alphanumeric characters with a single hyphen.
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		folded = strings.TrimSpace(name)
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

type Allocator struct {
	lookup      ports.SlugLookup
	maxAttempts int
}

func NewAllocator(lookup ports.SlugLookup, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{lookup: lookup, maxAttempts: maxAttempts}
}

// Allocate returns the normalized name, or the first "<base>-N" (N >= 1) that
// no other entity of the same kind holds. excludeID lets an entity keep its
// own slug on update. Nothing is persisted.
func (a *Allocator) Allocate(ctx context.Context, name string, kind domain.EntityKind, excludeID string) (string, error) {
	base := Normalize(name)
	if base == "" {
		return "", domain.NewValidationError("name", "name must contain at least one letter or digit")
	}

	candidate := base
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		taken, err := a.lookup.SlugTaken(ctx, kind, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("slug lookup %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q after %d attempts", domain.ErrSlugExhausted, kind, base, a.maxAttempts)
}
