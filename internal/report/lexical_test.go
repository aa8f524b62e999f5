package report

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tokens := tokenize("Hello WORLD, it's ça va 42!")
	want := []string{"hello", "world", "it's", "ça", "va", "42"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	if tokens := tokenize("   "); tokens != nil {
		t.Fatalf("expected no tokens for whitespace, got %v", tokens)
	}
}

func TestSentimentScore(t *testing.T) {
	if got := sentimentScore(nil); got != 0 {
		t.Fatalf("expected 0 for no tokens, got %f", got)
	}
	tokens := tokenize("this is great great bad")
	// (+2 -1) / 5 tokens
	if !almostEqual(sentimentScore(tokens), 0.2) {
		t.Fatalf("expected 0.2, got %f", sentimentScore(tokens))
	}
}

func TestExtractMentions(t *testing.T) {
	ids := extractMentions("hey <@100001> and <@!200002>, not <@12>")
	want := []int64{100001, 200002}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
}

func TestExtractDomains(t *testing.T) {
	domains := extractDomains("see https://Example.COM/page and http://other.net")
	want := []string{"example.com", "other.net"}
	if !reflect.DeepEqual(domains, want) {
		t.Fatalf("expected %v, got %v", want, domains)
	}
	if domains := extractDomains("no links here"); domains != nil {
		t.Fatalf("expected no domains, got %v", domains)
	}
}

func TestParseReactions(t *testing.T) {
	total, emojis := parseReactions(`[{"emoji":"👍","count":3},{"emoji_name":"wave","count":2}]`)
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(emojis) != 2 {
		t.Fatalf("expected 2 emojis, got %v", emojis)
	}

	// Malformed blobs count as zero reactions, never an error.
	for _, raw := range []string{"", "not json", `{"emoji":"x"}`, `[{`} {
		if total, _ := parseReactions(raw); total != 0 {
			t.Fatalf("expected 0 for %q, got %d", raw, total)
		}
	}
}

func TestTopicClusters(t *testing.T) {
	counts := map[string]int{}
	for i := 0; i < 12; i++ {
		counts[string(rune('a'+i))] = 100 - i
	}
	clusters := topicClusters(counts, 5, 5)
	if len(clusters) != 3 {
		t.Fatalf("expected 3 clusters from 12 tokens, got %d", len(clusters))
	}
	if clusters[0][0] != "a" || len(clusters[2]) != 2 {
		t.Fatalf("unexpected clustering: %v", clusters)
	}
}
