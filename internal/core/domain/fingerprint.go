package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"
)

// QueryFingerprint derives the cache key from the normalized query text and
// the routing-relevant parameters. The provider list is order-independent;
// request-scoped fields never contribute, so semantically identical queries
// collide.
func QueryFingerprint(q SearchQuery) string {
	h := sha256.New()
	io.WriteString(h, normalizeQueryText(q.Text))
	io.WriteString(h, "\x00")
	io.WriteString(h, strconv.Itoa(q.MaxResults))
	io.WriteString(h, "\x00")
	io.WriteString(h, string(q.ContentType))
	io.WriteString(h, "\x00")
	if len(q.Providers) > 0 {
		providers := append([]string(nil), q.Providers...)
		sort.Strings(providers)
		io.WriteString(h, strings.Join(providers, ","))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQueryText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
