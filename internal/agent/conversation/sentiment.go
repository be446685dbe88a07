package conversation

import "support-agent/internal/common/text"

var positiveTerms = map[string]bool{
	"thanks": true, "thank": true, "great": true, "good": true, "perfect": true,
	"appreciate": true, "helpful": true, "resolved": true, "works": true, "working": true,
	"excellent": true, "love": true, "happy": true, "awesome": true, "fixed": true,
	"glad": true, "nice": true,
}

var negativeTerms = map[string]bool{
	"bad": true, "terrible": true, "awful": true, "angry": true, "frustrated": true,
	"frustrating": true, "unacceptable": true, "worst": true, "hate": true, "useless": true,
	"disappointed": true, "ridiculous": true, "annoyed": true, "broken": true, "upset": true,
	"horrible": true, "furious": true, "waste": true, "scam": true, "never": true,
	"still": true, "again": true,
}

var negators = map[string]bool{
	"not": true, "no": true, "dont": true, "doesnt": true, "didnt": true, "isnt": true,
	"wasnt": true, "cant": true, "cannot": true, "wont": true, "never": true,
}

// Score rates one message in [-1, 1]. A negator flips the polarity of the
// next sentiment term. Messages without sentiment terms score 0.
func Score(message string) float64 {
	var pos, neg float64
	negate := false
	for _, tok := range text.Tokenize(message) {
		polarity := 0.0
		switch {
		case positiveTerms[tok]:
			polarity = 1
		case negativeTerms[tok]:
			polarity = -1
		}
		if polarity == 0 {
			if negators[tok] {
				negate = true
			}
			continue
		}
		if negate {
			polarity = -polarity
			negate = false
		}
		if polarity > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return (pos - neg) / (pos + neg)
}

// Trend folds per-message scores into an exponentially weighted moving
// average: trend = alpha*score + (1-alpha)*trend, starting at 0.
func Trend(scores []float64, alpha float64) float64 {
	var trend float64
	for _, s := range scores {
		trend = alpha*s + (1-alpha)*trend
	}
	return trend
}
