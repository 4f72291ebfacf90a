package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"repo-leaderboard/internal/model"
)

var bugLabelWords = map[string]bool{
	"bug": true, "bugs": true, "crash": true, "regression": true, "defect": true, "broken": true,
}

var featureLabelWords = map[string]bool{
	"enhancement": true, "enhancements": true, "feature": true, "features": true, "proposal": true,
}

// ClassifyOpportunity derives the opportunity type from issue labels.
// Bug labels are checked across all labels before feature labels.
func ClassifyOpportunity(labels []string) model.OpportunityType {
	if anyLabelWord(labels, bugLabelWords) {
		return model.OpportunityBug
	}
	if anyLabelWord(labels, featureLabelWords) {
		return model.OpportunityFeature
	}
	return model.OpportunityImprovement
}

// anyLabelWord matches whole words so "kind/bug" matches and "debug" does not.
func anyLabelWord(labels []string, words map[string]bool) bool {
	for _, label := range labels {
		fields := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, f := range fields {
			if words[f] {
				return true
			}
		}
	}
	return false
}

// ContentHash digests the title and body of an issue.
func ContentHash(title, body string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
