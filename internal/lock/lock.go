// Package lock serializes writers that contend for the same provider or resource.
// The database exclusion constraints remain the authority; these locks only keep
// contending requests from racing into it at the same moment.
package lock

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
)

var ErrLockNotAcquired = errors.New("booking lock not acquired")

// Locker runs fn while holding every key. Keys are acquired in sorted order.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

func ProviderKey(id uuid.UUID) string {
	return "provider:" + id.String()
}

func ResourceKey(id uuid.UUID) string {
	return "resource:" + id.String()
}

// normalize sorts and de-duplicates keys so two writers never wait on each other in
// opposite order.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
