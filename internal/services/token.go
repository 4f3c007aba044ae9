package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tokenPrefixLen = 8

// NewCorrelationToken builds the token that groups a payment with the
// transfers it funds: tg_<seller prefixes>_<unix millis>_<random>. Seller ids
// are deduplicated and sorted so the same cart always yields the same prefix.
func NewCorrelationToken(sellerIDs []string, now time.Time) string {
	seen := make(map[string]struct{}, len(sellerIDs))
	prefixes := make([]string, 0, len(sellerIDs))
	for _, id := range sellerIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		prefixes = append(prefixes, id)
	}
	sort.Strings(prefixes)
	for i, id := range prefixes {
		if len(id) > tokenPrefixLen {
			prefixes[i] = id[:tokenPrefixLen]
		}
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("tg_%s_%d_%s", strings.Join(prefixes, "-"), now.UnixMilli(), random)
}
