// Package planner maps a query to the human readable steps the answer
// pipeline will follow.
package planner

import "strings"

const (
	StepRetrieve       = "Retrieve relevant documents from the active persona's index."
	StepTroubleshoot   = "Extract troubleshooting steps from the docs."
	StepResolution     = "Compose step-by-step resolution and suggested checks."
	StepPricing        = "Extract product/pricing info and confirm current offers."
	StepSummarizeFacts = "Extract concise facts from the most relevant docs and summarize with citations."
)

var (
	troubleshootingKeywords = []string{"error", "fail", "issue", "trouble", "bug", "exception"}
	commerceKeywords        = []string{"price", "cost", "buy", "purchase", "coupon", "discount", "offer"}
)

// Plan returns the ordered plan steps for query. Keywords match as
// substrings of the lowercased query, so "failed" or "offers" also count.
// Troubleshooting wins over commerce.
func Plan(query string) []string {
	steps := []string{StepRetrieve}
	q := strings.ToLower(query)
	switch {
	case containsAny(q, troubleshootingKeywords):
		steps = append(steps, StepTroubleshoot, StepResolution)
	case containsAny(q, commerceKeywords):
		steps = append(steps, StepPricing)
	default:
		steps = append(steps, StepSummarizeFacts)
	}
	return steps
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
