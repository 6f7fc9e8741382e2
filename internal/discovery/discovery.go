// Package discovery keeps, per visitor session, the rolling list of titles
// already suggested so the next round can exclude them.
package discovery

import (
	"context"
	"strings"
)

// DefaultHistoryMax is how many titles a session remembers.
const DefaultHistoryMax = 20

// Store records suggestion history per session.
type Store interface {
	// Exclusions returns the session's history, oldest first.
	Exclusions(ctx context.Context, sessionID string) ([]string, error)
	// RecordShown appends the titles not already present and reports how
	// many were added. A round adding nothing performs no write.
	RecordShown(ctx context.Context, sessionID string, titles []string) (int, error)
}

func key(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// merge appends titles unseen in history (case-insensitive, trimmed) and
// evicts from the front down to max. history is never modified.
func merge(history, titles []string, max int) ([]string, int) {
	seen := make(map[string]struct{}, len(history)+len(titles))
	for _, h := range history {
		seen[key(h)] = struct{}{}
	}

	merged := append([]string(nil), history...)
	added := 0
	for _, t := range titles {
		k := key(t)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, strings.TrimSpace(t))
		added++
	}
	if added == 0 {
		return history, 0
	}
	if max > 0 && len(merged) > max {
		merged = merged[len(merged)-max:]
	}
	return merged, added
}
