package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/openbioscience/finch/internal/domain"
)

// Fingerprint derives the cache identity of a query from its database,
// method, endpoint, parameters, and body. Parameter order does not
// matter. The requested shape is deliberately excluded: it is stored
// on the cached entry and compared at lookup time instead.
func Fingerprint(q *domain.Query) string {
	var b strings.Builder

	b.WriteString(string(q.Database))
	b.WriteByte('|')
	b.WriteString(q.HTTPMethod())
	b.WriteByte('|')
	b.WriteString(q.Endpoint)
	b.WriteByte('|')

	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Params[k])
		b.WriteByte('&')
	}
	b.WriteByte('|')

	if len(q.Body) > 0 {
		// Map keys marshal in sorted order, so this is canonical.
		raw, err := json.Marshal(q.Body)
		if err == nil {
			b.Write(raw)
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
