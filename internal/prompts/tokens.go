package prompts

import (
	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens for budget enforcement. It uses the cl100k BPE
// vocabulary; when the codec is unavailable it falls back to a words*1.3
// approximation, which overshoots slightly rather than undercounting badly.
type Estimator struct {
	codec tokenizer.Codec
}

// NewEstimator creates an Estimator. Codec initialization failure is not
// fatal; the approximation path takes over.
func NewEstimator() *Estimator {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{codec: codec}
}

// Count returns the token count of content.
func (e *Estimator) Count(content string) int {
	if e.codec != nil {
		if ids, _, err := e.codec.Encode(content); err == nil {
			return len(ids)
		}
	}
	return simpleEstimate(content)
}

// simpleEstimate approximates tokens as words * 1.3, the usual subword ratio.
func simpleEstimate(content string) int {
	if len(content) == 0 {
		return 0
	}
	words := 0
	inWord := false
	for _, r := range content {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
		} else if !inWord {
			words++
			inWord = true
		}
	}
	return int(float64(words) * 1.3)
}
