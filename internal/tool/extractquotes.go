package tool

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

const (
	maxQuotes         = 5
	minRelevanceScore = 0.2
)

// ExtractQuotes extracts verbatim sentences relevant to a query using a
// lightweight token-overlap heuristic. No model call involved.
type ExtractQuotes struct{}

func (ExtractQuotes) Schema() Schema {
	return Schema{
		Name: NameExtractQuote,
		Description: "Extract verbatim quotes from a text that are relevant to a query. " +
			"Returns a JSON array of extracted quote strings. Uses heuristic " +
			"sentence-level matching. For LLM-based extraction, use call_model instead.",
		Fields: []Field{
			{Name: "text", Type: "string", Description: "The source text to extract quotes from.", Required: true},
			{Name: "query", Type: "string", Description: "The query/question to find relevant quotes for.", Required: true},
		},
	}
}

type quoteResult struct {
	Quotes []string `json:"quotes"`
	Found  bool     `json:"found"`
}

func (e ExtractQuotes) Execute(ctx context.Context, input map[string]interface{}, ec *ExecContext) (string, error) {
	if err := ValidateInput(e.Schema(), input); err != nil {
		return "", err
	}

	text, _ := input["text"].(string)
	query, _ := input["query"].(string)

	sentences := splitSentences(text)
	relevant := lo.Filter(sentences, func(s string, _ int) bool {
		return relevanceScore(s, query) >= minRelevanceScore
	})
	if len(relevant) > maxQuotes {
		relevant = relevant[:maxQuotes]
	}

	result := quoteResult{Quotes: relevant, Found: len(relevant) > 0}
	if result.Quotes == nil {
		result.Quotes = []string{}
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// splitSentences cuts text at terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(b.String()); s != "" {
					sentences = append(sentences, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// relevanceScore is the fraction of query tokens longer than two characters
// that appear in the sentence.
func relevanceScore(sentence, query string) float64 {
	sentWords := tokenSet(strings.ToLower(sentence))

	var qWords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) > 2 {
			qWords = append(qWords, w)
		}
	}
	if len(qWords) == 0 {
		return 0.0
	}

	hits := 0
	for _, w := range qWords {
		if _, ok := sentWords[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(qWords))
}
