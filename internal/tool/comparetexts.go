package tool

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// CompareTexts computes similarity metrics between two texts. Pure function:
// no I/O and no gate.
type CompareTexts struct{}

func (CompareTexts) Schema() Schema {
	return Schema{
		Name: NameCompareTexts,
		Description: "Compare two texts and return similarity scores. " +
			"Returns sequence_ratio (edit-distance based), token_overlap " +
			"(Jaccard word overlap), and combined (average of both). " +
			"All scores range from 0.0 (completely different) to 1.0 (identical).",
		Fields: []Field{
			{Name: "text_a", Type: "string", Description: "First text to compare.", Required: true},
			{Name: "text_b", Type: "string", Description: "Second text to compare.", Required: true},
		},
	}
}

type similarityScores struct {
	SequenceRatio float64 `json:"sequence_ratio"`
	TokenOverlap  float64 `json:"token_overlap"`
	Combined      float64 `json:"combined"`
}

func (c CompareTexts) Execute(ctx context.Context, input map[string]interface{}, ec *ExecContext) (string, error) {
	if err := ValidateInput(c.Schema(), input); err != nil {
		return "", err
	}

	textA, _ := input["text_a"].(string)
	textB, _ := input["text_b"].(string)

	aNorm := normalizeText(textA)
	bNorm := normalizeText(textB)

	ratio := sequenceRatio(aNorm, bNorm)
	overlap := tokenOverlap(aNorm, bNorm)

	scores := similarityScores{
		SequenceRatio: round4(ratio),
		TokenOverlap:  round4(overlap),
		Combined:      round4((ratio + overlap) / 2.0),
	}

	out, err := json.Marshal(scores)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)
var whitespace = regexp.MustCompile(`\s+`)

func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = nonAlnum.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// sequenceRatio is a normalized Levenshtein similarity over the normalized
// strings: 1 - distance/maxLen. Identical strings score 1.0.
func sequenceRatio(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// tokenOverlap is the Jaccard overlap of word token sets. Empty token sets
// on either side yield 0.0.
func tokenOverlap(a, b string) float64 {
	aTokens := tokenSet(a)
	bTokens := tokenSet(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0.0
	}

	intersection := 0
	union := len(bTokens)
	for tok := range aTokens {
		if _, ok := bTokens[tok]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		set[tok] = struct{}{}
	}
	return set
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
