package fulfillment

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// BundleKey derives the stable key of a bundle from its buyer and members.
// Member order does not matter and duplicates are ignored.
func BundleKey(buyerRef string, memberIDs []uuid.UUID) string {
	seen := make(map[uuid.UUID]struct{}, len(memberIDs))
	ids := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id.String())
	}
	sort.Strings(ids)

	sum := sha256.Sum256([]byte(strings.TrimSpace(buyerRef) + "|" + strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}

// UniqueItemIDs returns ids without duplicates, keeping first-seen order
func UniqueItemIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
