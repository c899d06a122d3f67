package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Filter is the tagged query-filter descriptor. Explicit fields cover the
// common cases; Extra carries anything operation-specific. Using a fixed
// shape instead of a free-form map keeps key generation exhaustive and
// deterministic.
type Filter struct {
	Status   string
	Search   string
	DateFrom time.Time
	DateTo   time.Time
	Extra    map[string]string
}

// Page describes pagination for list/search operations.
type Page struct {
	Limit  int
	Offset int
}

// Key builds the deterministic cache key for one logical query. The same
// operation with the same pagination, filters, and extra params always
// produces the same key, regardless of map insertion order. The
// "<table>-<op>:" prefix keeps keys invalidatable per table or per
// operation via DeletePattern.
func Key(table, op string, page Page, filter Filter, extra map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "limit=%d;offset=%d;", page.Limit, page.Offset)

	if filter.Status != "" {
		fmt.Fprintf(&b, "status=%s;", filter.Status)
	}
	if filter.Search != "" {
		fmt.Fprintf(&b, "search=%s;", filter.Search)
	}
	if !filter.DateFrom.IsZero() {
		fmt.Fprintf(&b, "from=%d;", filter.DateFrom.UnixNano())
	}
	if !filter.DateTo.IsZero() {
		fmt.Fprintf(&b, "to=%d;", filter.DateTo.UnixNano())
	}
	writeSorted(&b, filter.Extra)
	writeSorted(&b, extra)

	digest := xxhash.Sum64String(b.String())
	return fmt.Sprintf("%s-%s:%016x", table, op, digest)
}

// TablePattern returns the DeletePattern argument that clears every cached
// query for a table.
func TablePattern(table string) string {
	return table + "-*"
}

// writeSorted appends map entries in sorted key order so object shape never
// influences the digest.
func writeSorted(b *strings.Builder, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s=%s;", k, m[k])
	}
}
