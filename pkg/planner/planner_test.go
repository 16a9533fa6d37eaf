package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "troubleshooting",
			query: "I have an error with login",
			want:  []string{StepRetrieve, StepTroubleshoot, StepResolution},
		},
		{
			name:  "commerce",
			query: "what's the price of this plan",
			want:  []string{StepRetrieve, StepPricing},
		},
		{
			name:  "default",
			query: "tell me about your company",
			want:  []string{StepRetrieve, StepSummarizeFacts},
		},
		{
			name:  "troubleshooting wins over commerce",
			query: "Got an ERROR applying my discount",
			want:  []string{StepRetrieve, StepTroubleshoot, StepResolution},
		},
		{
			name:  "substring match",
			query: "Payment Failed twice",
			want:  []string{StepRetrieve, StepTroubleshoot, StepResolution},
		},
		{
			name:  "empty query",
			query: "",
			want:  []string{StepRetrieve, StepSummarizeFacts},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Plan(tt.query))
		})
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	assert.Equal(t, Plan("bug in checkout"), Plan("bug in checkout"))
}
