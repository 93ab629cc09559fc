package usecase

import (
	"hash/fnv"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

type MergerConfig struct {
	FuzzyThreshold   float64
	ContentThreshold float64
	ConsensusBoost   float64
	RecencyPenalty   float64
	RecencyWindow    time.Duration
}

func (c MergerConfig) normalized() MergerConfig {
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		c.FuzzyThreshold = 0.92
	}
	if c.ContentThreshold <= 0 || c.ContentThreshold > 1 {
		c.ContentThreshold = 0.85
	}
	if c.ConsensusBoost < 0 {
		c.ConsensusBoost = 0
	}
	if c.RecencyPenalty < 0 {
		c.RecencyPenalty = 0
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = 168 * time.Hour
	}
	return c
}

// Merger folds per-provider result sets into one deduplicated, ranked
// list. Output order is deterministic for identical unordered inputs.
type Merger struct {
	cfg     MergerConfig
	weights map[string]float64
	now     func() time.Time
}

func NewMerger(cfg MergerConfig, profiles []domain.ProviderProfile) *Merger {
	weights := make(map[string]float64, len(profiles))
	for _, profile := range profiles {
		weights[profile.ID] = profile.QualityWeight
	}
	return &Merger{cfg: cfg.normalized(), weights: weights, now: time.Now}
}

type mergeItem struct {
	result    domain.SearchResult
	canonical string
	titleKey  string
	sources   map[string]struct{}
	vector    map[uint32]float64
}

func (m *Merger) Merge(results []domain.SearchResult, contentType domain.ContentType, maxResults int) []domain.MergedResult {
	items := make([]*mergeItem, 0, len(results))
	for _, result := range results {
		if result.URL == "" {
			continue
		}
		items = append(items, newMergeItem(result))
	}
	if len(items) == 0 {
		return []domain.MergedResult{}
	}

	// Arrival order depends on provider completion timing; impose a total
	// order first so "first occurrence wins" is stable.
	sort.SliceStable(items, func(i, j int) bool {
		wi, wj := m.qualityOf(items[i].result.Provider), m.qualityOf(items[j].result.Provider)
		if wi != wj {
			return wi > wj
		}
		if items[i].result.Score != items[j].result.Score {
			return items[i].result.Score > items[j].result.Score
		}
		if items[i].result.Provider != items[j].result.Provider {
			return items[i].result.Provider < items[j].result.Provider
		}
		if items[i].canonical != items[j].canonical {
			return items[i].canonical < items[j].canonical
		}
		return items[i].titleKey < items[j].titleKey
	})

	survivors := m.mergeExactURLs(items)
	merged := m.mergeNearDuplicates(survivors)

	type ranked struct {
		entry   domain.MergedResult
		quality float64
	}
	out := make([]ranked, 0, len(merged))
	for _, item := range merged {
		enrichMetadata(&item.result, item.canonical)
		quality := m.bestQuality(item.sources)
		final := quality*item.result.Score +
			m.cfg.ConsensusBoost*float64(len(item.sources)-1) -
			m.recencyPenalty(item, contentType)
		out = append(out, ranked{
			entry: domain.MergedResult{
				SearchResult: item.result,
				Consensus:    len(item.sources),
				FinalScore:   final,
				Sources:      sortedKeys(item.sources),
			},
			quality: quality,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].entry.FinalScore != out[j].entry.FinalScore {
			return out[i].entry.FinalScore > out[j].entry.FinalScore
		}
		if out[i].quality != out[j].quality {
			return out[i].quality > out[j].quality
		}
		if out[i].entry.Score != out[j].entry.Score {
			return out[i].entry.Score > out[j].entry.Score
		}
		return out[i].entry.URL < out[j].entry.URL
	})

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	final := make([]domain.MergedResult, len(out))
	for i, r := range out {
		r.entry.Rank = i + 1
		final[i] = r.entry
	}
	return final
}

// mergeExactURLs is the cheap first pass: identical canonical URLs
// collapse into the first occurrence.
func (m *Merger) mergeExactURLs(items []*mergeItem) []*mergeItem {
	byCanonical := make(map[string]*mergeItem, len(items))
	survivors := make([]*mergeItem, 0, len(items))
	for _, item := range items {
		if first, ok := byCanonical[item.canonical]; ok {
			absorb(first, item)
			continue
		}
		byCanonical[item.canonical] = item
		survivors = append(survivors, item)
	}
	return survivors
}

// mergeNearDuplicates is the second pass: pairwise fuzzy URL/title and
// content-vector similarity, with union-find making merges transitive
// within the pass.
func (m *Merger) mergeNearDuplicates(items []*mergeItem) []*mergeItem {
	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if m.nearDuplicate(items[i], items[j]) {
				union(i, j)
			}
		}
	}

	bases := make(map[int]*mergeItem, len(items))
	out := make([]*mergeItem, 0, len(items))
	for i, item := range items {
		root := find(i)
		if base, ok := bases[root]; ok {
			absorb(base, item)
			continue
		}
		bases[root] = item
		out = append(out, item)
	}
	return out
}

func (m *Merger) nearDuplicate(a, b *mergeItem) bool {
	if stringSimilarity(a.canonical, b.canonical) >= m.cfg.FuzzyThreshold {
		return true
	}
	if a.titleKey != "" && b.titleKey != "" &&
		stringSimilarity(a.titleKey, b.titleKey) >= m.cfg.FuzzyThreshold {
		return true
	}
	return cosineSimilarity(a.vector, b.vector) >= m.cfg.ContentThreshold
}

// absorb merges dup into base: union of sources, max of scores, missing
// fields filled in. Base keeps its identity (URL, title, provider).
func absorb(base, dup *mergeItem) {
	for source := range dup.sources {
		base.sources[source] = struct{}{}
	}
	if dup.result.Score > base.result.Score {
		base.result.Score = dup.result.Score
	}
	if base.result.Snippet == "" {
		base.result.Snippet = dup.result.Snippet
	}
	if base.result.Content == "" {
		base.result.Content = dup.result.Content
	}
	if base.result.PublishedAt == nil {
		base.result.PublishedAt = dup.result.PublishedAt
	}
	for key, value := range dup.result.Metadata {
		if _, exists := base.result.Metadata[key]; !exists {
			if base.result.Metadata == nil {
				base.result.Metadata = make(map[string]string, len(dup.result.Metadata))
			}
			base.result.Metadata[key] = value
		}
	}
}

// enrichMetadata stamps derived fields providers rarely send: the result
// host and, when full content is present, an estimated reading time at
// roughly 200 words per minute. Provider-sent values are never overwritten.
func enrichMetadata(result *domain.SearchResult, canonical string) {
	host := ""
	if parsed, err := url.Parse(canonical); err == nil {
		host = parsed.Host
	}
	words := len(strings.Fields(result.Content))
	if host == "" && words == 0 {
		return
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string, 2)
	}
	if _, ok := result.Metadata["domain"]; !ok && host != "" {
		result.Metadata["domain"] = host
	}
	if _, ok := result.Metadata["reading_time_min"]; !ok && words > 0 {
		result.Metadata["reading_time_min"] = strconv.Itoa((words + 199) / 200)
	}
}

func newMergeItem(result domain.SearchResult) *mergeItem {
	if result.Metadata != nil {
		metadata := make(map[string]string, len(result.Metadata))
		for key, value := range result.Metadata {
			metadata[key] = value
		}
		result.Metadata = metadata
	}
	return &mergeItem{
		result:    result,
		canonical: canonicalURL(result.URL),
		titleKey:  strings.Join(strings.Fields(strings.ToLower(result.Title)), " "),
		sources:   map[string]struct{}{result.Provider: {}},
		vector:    hashedTermVector(result.Snippet + " " + result.Content),
	}
}

func (m *Merger) qualityOf(providerID string) float64 {
	if weight, ok := m.weights[providerID]; ok {
		return weight
	}
	return 0.5
}

func (m *Merger) bestQuality(sources map[string]struct{}) float64 {
	best := 0.0
	for source := range sources {
		if weight := m.qualityOf(source); weight > best {
			best = weight
		}
	}
	return best
}

func (m *Merger) recencyPenalty(item *mergeItem, contentType domain.ContentType) float64 {
	if m.cfg.RecencyPenalty <= 0 {
		return 0
	}
	if contentType != domain.ContentNews && contentType != domain.ContentCommercial {
		return 0
	}
	if item.result.PublishedAt == nil {
		return 0
	}
	if m.now().Sub(*item.result.PublishedAt) > m.cfg.RecencyWindow {
		return m.cfg.RecencyPenalty
	}
	return 0
}

func canonicalURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if parsed.Scheme == "http" {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	}
	if parsed.Scheme == "https" {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.Fragment = ""

	query := parsed.Query()
	for key := range query {
		if trackingParam(key) {
			query.Del(key)
		}
	}
	if len(query) == 0 {
		parsed.RawQuery = ""
	} else {
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func trackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	switch key {
	case "fbclid", "gclid", "msclkid", "ref", "ref_src", "mc_cid", "mc_eid":
		return true
	default:
		return false
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func stringSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(values ...int) int {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

const vectorBM25K = 1.2

// hashedTermVector builds a sparse term vector over unigrams and bigrams
// of the snippet/content text, FNV-hashed, with saturating term-frequency
// weights.
func hashedTermVector(text string) map[uint32]float64 {
	tokens := tokenizeQuery(strings.ToLower(text))
	if len(tokens) == 0 {
		return nil
	}
	tf := make(map[uint32]float64, len(tokens)*2)
	for i, token := range tokens {
		tf[hashTerm(token)]++
		if i+1 < len(tokens) {
			tf[hashTerm(token+" "+tokens[i+1])]++
		}
	}
	for idx, freq := range tf {
		tf[idx] = (freq * (vectorBM25K + 1.0)) / (freq + vectorBM25K)
	}
	return tf
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum32()
	if sum == 0 {
		return 1
	}
	return sum
}

func cosineSimilarity(a, b map[uint32]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	dot := 0.0
	for idx, va := range a {
		if vb, ok := b[idx]; ok {
			dot += va * vb
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (vectorNorm(a) * vectorNorm(b))
}

func vectorNorm(v map[uint32]float64) float64 {
	sum := 0.0
	for _, value := range v {
		sum += value * value
	}
	return math.Sqrt(sum)
}
