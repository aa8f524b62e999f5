package report

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/idna"
)

var (
	tokenPattern   = regexp.MustCompile(`[\p{L}\p{N}_']+`)
	urlPattern     = regexp.MustCompile(`(?i)https?://([^/\s]+)[^\s]*`)
	mentionPattern = regexp.MustCompile(`<@!?([0-9]{5,})>`)
)

var positiveWords = wordSet(
	"love", "great", "fantastic", "awesome", "good", "amazing", "nice",
	"cool", "happy", "yay", "best", "wonderful", "thanks", "thank",
	"excellent", "enjoy", "enjoyed", "fun", "pleased",
)

var negativeWords = wordSet(
	"bad", "terrible", "awful", "sad", "angry", "mad", "hate", "hated",
	"upset", "annoyed", "worst", "pain", "frustrated", "boring", "bored",
	"tired", "ugh", "sucks",
)

// Stop words are excluded from topic clusters only; they still count
// toward word totals and lexical diversity.
var stopWords = wordSet(
	"the", "and", "for", "that", "with", "have", "this", "from", "they",
	"what", "your", "about", "would", "there", "could", "should", "their",
	"https", "http", "discord", "like", "been", "because", "where", "which",
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func tokenize(content string) []string {
	raw := tokenPattern.FindAllString(content, -1)
	if len(raw) == 0 {
		return nil
	}
	tokens := make([]string, len(raw))
	for i, tok := range raw {
		tokens[i] = strings.ToLower(tok)
	}
	return tokens
}

// sentimentScore is (#positive - #negative) / max(#tokens, 1), a cheap
// lexicon heuristic rather than calibrated sentiment analysis.
func sentimentScore(tokens []string) float64 {
	score := 0
	for _, tok := range tokens {
		if _, ok := positiveWords[tok]; ok {
			score++
		} else if _, ok := negativeWords[tok]; ok {
			score--
		}
	}
	denom := len(tokens)
	if denom < 1 {
		denom = 1
	}
	return float64(score) / float64(denom)
}

func extractMentions(content string) []int64 {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		if id := parseID(m[1]); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseID(value string) int64 {
	var id int64
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0
		}
		id = id*10 + int64(r-'0')
	}
	return id
}

// extractDomains returns the lower-cased host of every URL in content,
// punycode-normalized where possible.
func extractDomains(content string) []string {
	matches := urlPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	domains := make([]string, 0, len(matches))
	for _, m := range matches {
		host := strings.ToLower(m[1])
		if ascii, err := idna.ToASCII(host); err == nil {
			host = ascii
		}
		domains = append(domains, host)
	}
	return domains
}

// parseReactions decodes the archived reaction blob. Malformed or
// non-array payloads count as zero reactions, never an error.
func parseReactions(raw string) (total int, emojis []string) {
	if raw == "" {
		return 0, nil
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return 0, nil
	}
	parsed.ForEach(func(_, entry gjson.Result) bool {
		total += int(entry.Get("count").Int())
		emoji := entry.Get("emoji").String()
		if emoji == "" {
			emoji = entry.Get("emoji_name").String()
		}
		if emoji != "" {
			emojis = append(emojis, emoji)
		}
		return true
	})
	return total, emojis
}

// topicClusters chunks the most frequent non-stopword tokens into
// groups of wordsPerTopic. Ties break lexically so output is stable.
func topicClusters(tokenCounts map[string]int, topics, wordsPerTopic int) [][]string {
	type tokenCount struct {
		token string
		count int
	}
	ranked := make([]tokenCount, 0, len(tokenCounts))
	for tok, cnt := range tokenCounts {
		ranked = append(ranked, tokenCount{token: tok, count: cnt})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})

	limit := topics * wordsPerTopic
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	var clusters [][]string
	for start := 0; start < len(ranked); start += wordsPerTopic {
		end := start + wordsPerTopic
		if end > len(ranked) {
			end = len(ranked)
		}
		chunk := make([]string, 0, end-start)
		for _, tc := range ranked[start:end] {
			chunk = append(chunk, tc.token)
		}
		clusters = append(clusters, chunk)
	}
	return clusters
}
