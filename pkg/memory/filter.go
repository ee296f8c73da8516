package memory

import (
	"encoding/json"

	"github.com/dotsetgreg/memvault/pkg/vecstore"
)

// BuildAttributeFilter composes equality predicates over the supplied
// attributes into a conjunctive filter tree. Leaves are emitted in a fixed
// order (user_id, session_id, type, tags_json). Zero inputs yield nil (an
// unconstrained search); one input yields the bare leaf.
//
// Tags are matched against the canonical JSON serialization of the whole
// list, so multi-tag filters are exact and order-sensitive: callers must
// supply tags in the order they were stored. Deliberately coarse; partial
// or set-based matching would change observable filtering behavior.
func BuildAttributeFilter(userID, sessionID, memoryType string, tags []string) *vecstore.Filter {
	var leaves []*vecstore.Filter

	if userID != "" {
		leaves = append(leaves, vecstore.Eq("user_id", userID))
	}
	if sessionID != "" {
		leaves = append(leaves, vecstore.Eq("session_id", sessionID))
	}
	if memoryType != "" {
		leaves = append(leaves, vecstore.Eq("type", memoryType))
	}
	if len(tags) > 0 {
		leaves = append(leaves, vecstore.Eq("tags_json", canonicalTags(tags)))
	}

	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	default:
		return vecstore.And(leaves...)
	}
}

// canonicalTags serializes a tag list the same way at save and filter time
// so equality filtering is exact.
func canonicalTags(tags []string) string {
	data, err := json.Marshal(tags)
	if err != nil {
		// []string cannot fail to marshal.
		return "[]"
	}
	return string(data)
}
