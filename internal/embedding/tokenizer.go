package embedding

import (
	"hash/fnv"
	"strings"
)

// BERT special token ids used by the exported model.
const (
	tokenCLS = 101
	tokenSEP = 102
)

// Tokenizer produces the three input tensors a BERT-style encoder expects.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// WordTokenizer is a whitespace tokenizer with hashed token ids. It is not
// vocabulary-accurate but is deterministic, which is what the bundled
// sentence-embedding model tolerates for short note and chapter text.
type WordTokenizer struct{}

// Tokenize lowercases and splits text on whitespace, hashing each word into
// the id space and padding out to maxTokens.
func (WordTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = hashToken(word)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = tokenSEP
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// hashToken maps a word into the model's vocabulary id range, avoiding the
// reserved special-token ids.
func hashToken(word string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	id := int64(h.Sum32() % 30000)
	if id == tokenCLS || id == tokenSEP || id == 0 {
		id += 200
	}
	return id
}
