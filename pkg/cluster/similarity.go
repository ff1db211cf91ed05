package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped before URL comparison
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"}

// similarity component weights
const (
	titleWeight       = 0.4
	urlWeight         = 0.3
	fingerprintWeight = 0.3
)

// Similarity blends title, URL and fingerprint similarity into a single
// [0,1] score used for cluster assignment
func Similarity(titleA, titleB, urlA, urlB string, fpA, fpB uint64) float64 {
	titleSim := jaccard(Tokens(titleA), Tokens(titleB))

	urlSim := 0.0
	if ca, cb := CanonicalURL(urlA), CanonicalURL(urlB); ca != "" && ca == cb {
		urlSim = 1.0
	}

	fpSim := HammingSimilarity(fpA, fpB)
	if fpSim < 0 {
		fpSim = 0
	}

	return titleWeight*titleSim + urlWeight*urlSim + fingerprintWeight*fpSim
}

// jaccard computes the Jaccard index of two token sets
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// CanonicalURL normalizes a URL for comparison: tracking query parameters
// and the fragment are dropped, host is lowercased, remaining query
// parameters are sorted. Returns the input unchanged if it does not parse.
func CanonicalURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	// rebuild with deterministic parameter order
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		for _, v := range q[k] {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")

	return strings.TrimSuffix(u.String(), "?")
}

// URLHash returns a stable hex digest of the canonical URL, used as the
// dedup key for incoming articles
func URLHash(raw string) string {
	sum := sha256.Sum256([]byte(CanonicalURL(raw)))
	return hex.EncodeToString(sum[:])
}
