package usecase

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

func testMerger(cfg MergerConfig) *Merger {
	m := NewMerger(cfg, []domain.ProviderProfile{
		{ID: "brave", QualityWeight: 0.9},
		{ID: "duck", QualityWeight: 0.7},
		{ID: "serp", QualityWeight: 0.5},
	})
	m.now = func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestMergeCollapsesSameURLAcrossProviders(t *testing.T) {
	results := []domain.SearchResult{
		{Title: "Go scheduler", URL: "https://Example.COM/blog/scheduler?utm_source=news", Score: 0.8, Provider: "duck"},
		{Title: "Go scheduler", URL: "https://example.com/blog/scheduler/", Score: 0.6, Provider: "brave"},
	}

	merged := testMerger(MergerConfig{}).Merge(results, domain.ContentTechnical, 10)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged result, got %d", len(merged))
	}
	if merged[0].Consensus != 2 {
		t.Fatalf("expected consensus 2, got %d", merged[0].Consensus)
	}
	if !reflect.DeepEqual(merged[0].Sources, []string{"brave", "duck"}) {
		t.Fatalf("unexpected sources: %v", merged[0].Sources)
	}
	if merged[0].Score != 0.8 {
		t.Fatalf("expected max provider score 0.8 kept, got %f", merged[0].Score)
	}
	if merged[0].Rank != 1 {
		t.Fatalf("expected rank 1, got %d", merged[0].Rank)
	}
}

func TestMergeRespectsMaxResults(t *testing.T) {
	results := []domain.SearchResult{
		{Title: "one", URL: "https://example.com/intro-to-go", Score: 0.9, Provider: "brave"},
		{Title: "two", URL: "https://example.com/rust-ownership", Score: 0.8, Provider: "brave"},
		{Title: "three", URL: "https://example.com/python-asyncio", Score: 0.7, Provider: "brave"},
		{Title: "four", URL: "https://example.com/java-streams", Score: 0.6, Provider: "brave"},
		{Title: "five", URL: "https://example.com/kotlin-coroutines", Score: 0.5, Provider: "brave"},
	}

	merged := testMerger(MergerConfig{}).Merge(results, domain.ContentMixed, 3)
	if len(merged) != 3 {
		t.Fatalf("expected 3 results after truncation, got %d", len(merged))
	}
	for i, m := range merged {
		if m.Rank != i+1 {
			t.Fatalf("expected rank %d at position %d, got %d", i+1, i, m.Rank)
		}
	}
	if merged[0].URL != "https://example.com/intro-to-go" {
		t.Fatalf("expected highest scored result first, got %s", merged[0].URL)
	}
}

func TestMergeDeterministicAcrossInputOrder(t *testing.T) {
	build := func() []domain.SearchResult {
		return []domain.SearchResult{
			{Title: "alpha", URL: "https://example.com/alpha", Score: 0.9, Provider: "duck"},
			{Title: "beta", URL: "https://example.com/beta", Score: 0.7, Provider: "brave"},
			{Title: "alpha", URL: "https://example.com/alpha?utm_source=x", Score: 0.5, Provider: "serp"},
			{Title: "gamma", URL: "https://example.com/gamma", Score: 0.8, Provider: "serp"},
		}
	}
	forward := build()
	reversed := build()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	merger := testMerger(MergerConfig{ConsensusBoost: 0.1})
	a := merger.Merge(forward, domain.ContentMixed, 10)
	b := merger.Merge(reversed, domain.ContentMixed, 10)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("merge output depends on input order:\n%v\nvs\n%v", a, b)
	}
}

func TestMergeIdempotent(t *testing.T) {
	merger := testMerger(MergerConfig{ConsensusBoost: 0.1})
	first := merger.Merge([]domain.SearchResult{
		{Title: "Go scheduler", URL: "https://example.com/post", Score: 0.8, Provider: "brave"},
		{Title: "Go scheduler", URL: "https://example.com/post/", Score: 0.7, Provider: "duck"},
		{Title: "Unrelated page", URL: "https://other.example/else", Score: 0.6, Provider: "serp", Snippet: "completely different topic"},
	}, domain.ContentMixed, 10)

	flat := make([]domain.SearchResult, len(first))
	for i, m := range first {
		flat[i] = m.SearchResult
	}
	second := merger.Merge(flat, domain.ContentMixed, 10)

	if len(second) != len(first) {
		t.Fatalf("re-merging merged output changed result count: %d vs %d", len(second), len(first))
	}
	for i := range second {
		if second[i].URL != first[i].URL {
			t.Fatalf("re-merging changed order at %d: %s vs %s", i, second[i].URL, first[i].URL)
		}
		if second[i].Consensus != 1 {
			t.Fatalf("expected no further collapses, got consensus %d for %s", second[i].Consensus, second[i].URL)
		}
	}
}

func TestMergeTransitiveTitleGroups(t *testing.T) {
	// a~b and b~c clear the fuzzy threshold, a~c alone does not; union-find
	// must still collapse all three.
	results := []domain.SearchResult{
		{Title: "golang scheduler aa", URL: "https://a.example/x1", Score: 0.9, Provider: "brave", Snippet: "goroutine preemption details"},
		{Title: "golang scheduler ab", URL: "https://b.example/y2", Score: 0.8, Provider: "duck", Snippet: "network poller internals"},
		{Title: "golang scheduler bb", URL: "https://c.example/z3", Score: 0.7, Provider: "serp", Snippet: "garbage collector pacing"},
	}

	merged := testMerger(MergerConfig{}).Merge(results, domain.ContentMixed, 10)
	if len(merged) != 1 {
		t.Fatalf("expected transitive collapse into 1 result, got %d", len(merged))
	}
	if merged[0].Consensus != 3 {
		t.Fatalf("expected consensus 3, got %d", merged[0].Consensus)
	}
	if merged[0].URL != "https://a.example/x1" {
		t.Fatalf("expected best-quality occurrence kept, got %s", merged[0].URL)
	}
}

func TestMergeContentSimilarityCollapsesMirrors(t *testing.T) {
	snippet := "The Go runtime multiplexes goroutines onto operating system threads using a work stealing scheduler"
	results := []domain.SearchResult{
		{Title: "Original post title here", URL: "https://origin.example/post", Score: 0.8, Provider: "brave", Snippet: snippet},
		{Title: "Mirrored by aggregator", URL: "https://mirror.example/copy", Score: 0.6, Provider: "duck", Snippet: snippet},
	}

	merged := testMerger(MergerConfig{}).Merge(results, domain.ContentMixed, 10)
	if len(merged) != 1 {
		t.Fatalf("expected content mirror collapse, got %d results", len(merged))
	}
	if merged[0].URL != "https://origin.example/post" {
		t.Fatalf("expected original kept as base, got %s", merged[0].URL)
	}
}

func TestMergeConsensusOutranksSingleSource(t *testing.T) {
	results := []domain.SearchResult{
		{Title: "corroborated", URL: "https://example.com/both", Score: 0.7, Provider: "brave"},
		{Title: "corroborated", URL: "https://example.com/both", Score: 0.7, Provider: "duck"},
		{Title: "single source", URL: "https://example.com/single", Score: 0.7, Provider: "brave", Snippet: "different text entirely"},
	}

	merged := testMerger(MergerConfig{ConsensusBoost: 0.1}).Merge(results, domain.ContentMixed, 10)
	if len(merged) != 2 {
		t.Fatalf("expected 2 results, got %d", len(merged))
	}
	if merged[0].URL != "https://example.com/both" {
		t.Fatalf("expected corroborated result first, got %s", merged[0].URL)
	}
	if merged[0].Consensus != 2 {
		t.Fatalf("expected consensus 2, got %d", merged[0].Consensus)
	}
	if merged[0].FinalScore <= merged[1].FinalScore {
		t.Fatalf("expected consensus boost to rank higher: %f vs %f", merged[0].FinalScore, merged[1].FinalScore)
	}
}

func TestMergeRecencyPenaltyOnlyForTimeSensitiveTypes(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-30 * 24 * time.Hour)
	fresh := now.Add(-24 * time.Hour)
	results := []domain.SearchResult{
		{Title: "stale report", URL: "https://news.example/stale", Score: 0.8, Provider: "brave", PublishedAt: &stale, Snippet: "quarterly earnings summary"},
		{Title: "fresh report", URL: "https://news.example/fresh", Score: 0.8, Provider: "brave", PublishedAt: &fresh, Snippet: "breaking merger announcement"},
		{Title: "undated page", URL: "https://news.example/undated", Score: 0.8, Provider: "brave", Snippet: "company background overview"},
	}

	merger := testMerger(MergerConfig{RecencyPenalty: 0.2})
	asNews := merger.Merge(results, domain.ContentNews, 10)
	if asNews[2].URL != "https://news.example/stale" {
		t.Fatalf("expected stale news ranked last, got %s", asNews[2].URL)
	}
	if asNews[2].FinalScore >= asNews[0].FinalScore {
		t.Fatalf("expected recency penalty applied: %f vs %f", asNews[2].FinalScore, asNews[0].FinalScore)
	}

	asTechnical := merger.Merge(results, domain.ContentTechnical, 10)
	if asTechnical[0].FinalScore != asTechnical[2].FinalScore {
		t.Fatalf("expected no penalty outside news/commercial, got %f vs %f",
			asTechnical[0].FinalScore, asTechnical[2].FinalScore)
	}
}

func TestMergeTieBreakPrefersQualityWeight(t *testing.T) {
	// 0.9*0.7 == 0.7*0.9: identical final scores, the higher-quality
	// provider wins the tie.
	results := []domain.SearchResult{
		{Title: "from duck", URL: "https://example.com/duck-page", Score: 0.9, Provider: "duck", Snippet: "duck page text"},
		{Title: "from brave", URL: "https://example.com/brave-page", Score: 0.7, Provider: "brave", Snippet: "brave page text"},
	}

	merged := testMerger(MergerConfig{}).Merge(results, domain.ContentMixed, 10)
	if len(merged) != 2 {
		t.Fatalf("expected 2 results, got %d", len(merged))
	}
	if merged[0].Provider != "brave" {
		t.Fatalf("expected quality-weight tie-break to prefer brave, got %s", merged[0].Provider)
	}
}

func TestMergeEnrichesDerivedMetadata(t *testing.T) {
	content := strings.Repeat("word ", 450)
	merged := testMerger(MergerConfig{}).Merge([]domain.SearchResult{
		{Title: "long read", URL: "https://Example.com/deep-dive/", Score: 0.8, Provider: "brave", Content: content},
		{Title: "short brief", URL: "https://other.example/brief", Score: 0.7, Provider: "duck", Snippet: "short blurb",
			Metadata: map[string]string{"domain": "cdn.example"}},
	}, domain.ContentMixed, 10)

	if len(merged) != 2 {
		t.Fatalf("expected 2 results, got %d", len(merged))
	}
	if got := merged[0].Metadata["domain"]; got != "example.com" {
		t.Fatalf("expected derived domain example.com, got %q", got)
	}
	if got := merged[0].Metadata["reading_time_min"]; got != "3" {
		t.Fatalf("expected 450 words to read in 3 minutes, got %q", got)
	}
	if got := merged[1].Metadata["domain"]; got != "cdn.example" {
		t.Fatalf("expected provider-set domain kept, got %q", got)
	}
	if _, ok := merged[1].Metadata["reading_time_min"]; ok {
		t.Fatal("expected no reading time without content")
	}
}

func TestMergeDropsEmptyURLs(t *testing.T) {
	merged := testMerger(MergerConfig{}).Merge([]domain.SearchResult{
		{Title: "no url", Score: 0.9, Provider: "brave"},
	}, domain.ContentMixed, 10)
	if len(merged) != 0 {
		t.Fatalf("expected url-less results dropped, got %d", len(merged))
	}
}

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM:443/Path/", "https://example.com/Path"},
		{"http://example.com:80/a?utm_campaign=x&q=1", "http://example.com/a?q=1"},
		{"https://example.com/a?gclid=z&fbclid=y", "https://example.com/a"},
		{"https://example.com/a#section", "https://example.com/a"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
	}
	for _, tc := range cases {
		if got := canonicalURL(tc.in); got != tc.want {
			t.Fatalf("canonicalURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
