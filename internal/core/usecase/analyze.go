package usecase

import (
	"strings"
	"unicode"

	"github.com/kirillkom/meta-search/internal/core/domain"
)

type contentSignal struct {
	term   string
	weight float64
}

// Phrases (terms with spaces) are matched as substrings of the normalized
// text and weigh more than single keywords matched against the token set.
var contentSignals = map[domain.ContentType][]contentSignal{
	domain.ContentFactual: {
		{"who", 1}, {"when", 1}, {"where", 1}, {"population", 1.5}, {"capital", 1},
		{"definition", 1.5}, {"meaning", 1}, {"distance", 1}, {"height", 1},
		{"what year", 2}, {"how many", 2}, {"how old", 2},
	},
	domain.ContentAcademic: {
		{"research", 1.5}, {"paper", 1}, {"study", 1}, {"journal", 1.5}, {"thesis", 1.5},
		{"citation", 1.5}, {"arxiv", 2}, {"doi", 2}, {"dataset", 1}, {"hypothesis", 1.5},
		{"peer reviewed", 2}, {"literature review", 2},
	},
	domain.ContentTechnical: {
		{"code", 1}, {"api", 1.5}, {"error", 1}, {"bug", 1}, {"install", 1}, {"debug", 1.5},
		{"compile", 1.5}, {"programming", 1.5}, {"function", 1}, {"library", 1}, {"framework", 1},
		{"server", 1}, {"database", 1}, {"golang", 1.5}, {"python", 1.5}, {"javascript", 1.5},
		{"docker", 1.5}, {"kubernetes", 1.5}, {"stack trace", 2}, {"segmentation fault", 2},
	},
	domain.ContentNews: {
		{"news", 1.5}, {"latest", 1.5}, {"today", 1.5}, {"breaking", 2}, {"announcement", 1.5},
		{"update", 1}, {"recent", 1}, {"yesterday", 1.5}, {"headline", 1.5}, {"this week", 2},
	},
	domain.ContentCommercial: {
		{"buy", 1.5}, {"price", 1.5}, {"cheap", 1.5}, {"deal", 1}, {"review", 1}, {"best", 1},
		{"compare", 1}, {"discount", 1.5}, {"shop", 1.5}, {"sale", 1}, {"pricing", 1.5},
		{"subscription", 1}, {"vs", 1},
	},
	domain.ContentEducational: {
		{"tutorial", 1.5}, {"learn", 1.5}, {"guide", 1}, {"explain", 1}, {"course", 1},
		{"lesson", 1}, {"beginner", 1.5}, {"example", 1}, {"introduction", 1},
		{"how to", 2}, {"step by step", 2}, {"what is", 2},
	},
}

var multiIntentMarkers = []string{"and", "or", "vs", "versus", "plus", "also"}

var questionWords = map[string]struct{}{
	"what": {}, "how": {}, "why": {}, "who": {}, "when": {}, "where": {}, "which": {},
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "for": {}, "to": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "with": {}, "at": {}, "by": {},
	"and": {}, "or": {}, "it": {}, "this": {}, "that": {}, "do": {}, "does": {}, "i": {},
	"my": {}, "me": {}, "can": {}, "about": {},
}

// AnalyzeQuery derives routing features from the raw query text. It is
// total and deterministic: any input, including empty text, yields a valid
// feature set rather than an error.
func AnalyzeQuery(text string) domain.QueryFeatures {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	tokens := tokenizeQuery(normalized)
	if len(tokens) == 0 {
		return domain.QueryFeatures{ContentType: domain.ContentMixed}
	}

	tokenSet := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		tokenSet[token] = struct{}{}
	}

	scores := scoreContentTypes(normalized, tokenSet)
	contentType, topScore, runnerUp := pickContentType(scores)

	intentMarkers := countIntentMarkers(tokenSet, normalized)
	questionForms := countQuestionWords(tokens)
	activeDomains := 0
	for _, score := range scores {
		if score > 0 {
			activeDomains++
		}
	}

	lengthScore := clamp01(float64(len(tokens)) / 16.0)
	intentScore := clamp01(float64(intentMarkers) * 0.5)
	crossScore := 0.0
	if activeDomains > 1 {
		crossScore = clamp01(float64(activeDomains-1) * 0.5)
	}
	questionScore := 0.0
	if questionForms > 1 {
		questionScore = clamp01(float64(questionForms-1) * 0.5)
	}
	complexity := clamp01(0.35*lengthScore + 0.25*intentScore + 0.25*crossScore + 0.15*questionScore)

	ambiguous := questionForms > 1 || (topScore > 0 && runnerUp > 0 && topScore-runnerUp < 1)

	return domain.QueryFeatures{
		ContentType: contentType,
		Complexity:  complexity,
		Keywords:    keywordList(tokens),
		TokenCount:  len(tokens),
		MultiIntent: intentMarkers > 0,
		Ambiguous:   ambiguous,
	}
}

func scoreContentTypes(normalized string, tokenSet map[string]struct{}) map[domain.ContentType]float64 {
	scores := make(map[domain.ContentType]float64, len(contentSignals))
	for contentType, signals := range contentSignals {
		total := 0.0
		for _, signal := range signals {
			if strings.Contains(signal.term, " ") {
				if strings.Contains(normalized, signal.term) {
					total += signal.weight
				}
				continue
			}
			if _, ok := tokenSet[signal.term]; ok {
				total += signal.weight
			}
		}
		scores[contentType] = total
	}
	return scores
}

// pickContentType returns the winning label plus the top two scores.
// A tie at the top, or no signal at all, resolves to "mixed".
func pickContentType(scores map[domain.ContentType]float64) (domain.ContentType, float64, float64) {
	winner := domain.ContentMixed
	top, second := 0.0, 0.0
	tied := false
	for _, contentType := range orderedContentTypes {
		score := scores[contentType]
		switch {
		case score > top:
			second = top
			top = score
			winner = contentType
			tied = false
		case score == top && score > 0:
			tied = true
			if score > second {
				second = score
			}
		case score > second:
			second = score
		}
	}
	if top == 0 || tied {
		return domain.ContentMixed, top, second
	}
	return winner, top, second
}

// Fixed iteration order keeps classification deterministic.
var orderedContentTypes = []domain.ContentType{
	domain.ContentFactual,
	domain.ContentAcademic,
	domain.ContentTechnical,
	domain.ContentNews,
	domain.ContentCommercial,
	domain.ContentEducational,
}

func countIntentMarkers(tokenSet map[string]struct{}, normalized string) int {
	count := 0
	for _, marker := range multiIntentMarkers {
		if _, ok := tokenSet[marker]; ok {
			count++
		}
	}
	count += strings.Count(normalized, ";")
	return count
}

func countQuestionWords(tokens []string) int {
	count := 0
	for _, token := range tokens {
		if _, ok := questionWords[token]; ok {
			count++
		}
	}
	return count
}

func keywordList(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, skip := stopwords[token]; skip {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

func tokenizeQuery(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
