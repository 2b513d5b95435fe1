package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thrivecoach/safegate/internal/triage"
)

const cleanAnswer = "Gentle walks and a regular sleep schedule are a good place to start. Please consult your doctor if symptoms persist."

func TestReviewer_LocalOnlyWithoutJudge(t *testing.T) {
	reviewer := NewReviewer()
	verdict := reviewer.Review(context.Background(), "q", cleanAnswer, triage.CategoryMedicalNonUrgent)
	if verdict.Outcome != OutcomeSafe {
		t.Fatalf("outcome = %s (reasons %v)", verdict.Outcome, verdict.Reasons)
	}
}

func TestReviewer_LocalBlockSkipsJudge(t *testing.T) {
	calls := 0
	judge := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
		calls++
		return `{"outcome": "SAFE"}`, nil
	}
	reviewer := NewReviewer(WithJudge(judge, time.Second))
	verdict := reviewer.Review(context.Background(), "q", "Take 500mg of ibuprofen twice daily.", triage.CategoryMedicalNonUrgent)
	if verdict.Outcome != OutcomeBlock {
		t.Fatalf("outcome = %s, want BLOCK", verdict.Outcome)
	}
	if calls != 0 {
		t.Errorf("judge called %d times after a local block", calls)
	}
}

func TestReviewer_GeneralWellnessSkipsJudge(t *testing.T) {
	calls := 0
	judge := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
		calls++
		return `{"outcome": "WARN"}`, nil
	}
	reviewer := NewReviewer(WithJudge(judge, time.Second))
	verdict := reviewer.Review(context.Background(), "q", "Start with ten minutes of stretching.", triage.CategoryGeneralWellness)
	if verdict.Outcome != OutcomeSafe {
		t.Fatalf("outcome = %s", verdict.Outcome)
	}
	if calls != 0 {
		t.Errorf("judge called %d times for general wellness", calls)
	}
}

func TestReviewer_JudgeVerdictApplied(t *testing.T) {
	tests := []struct {
		name        string
		judgeOutput string
		wantOutcome Outcome
		wantRewrite bool
	}{
		{
			name:        "judge safe",
			judgeOutput: `{"outcome": "SAFE", "reasons": [], "needs_rewrite": false}`,
			wantOutcome: OutcomeSafe,
		},
		{
			name:        "judge warn with rewrite",
			judgeOutput: `{"outcome": "WARN", "reasons": ["implicit prescriptive tone"], "needs_rewrite": true}`,
			wantOutcome: OutcomeWarn,
			wantRewrite: true,
		},
		{
			name:        "judge block",
			judgeOutput: `{"outcome": "BLOCK", "reasons": ["unsafe protocol detail"]}`,
			wantOutcome: OutcomeBlock,
		},
		{
			name:        "judge output wrapped in chatter",
			judgeOutput: "Here is my review:\n{\"outcome\": \"WARN\", \"needs_rewrite\": true}\nThanks!",
			wantOutcome: OutcomeWarn,
			wantRewrite: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
				return tt.judgeOutput, nil
			}
			reviewer := NewReviewer(WithJudge(judge, time.Second))
			verdict := reviewer.Review(context.Background(), "q", cleanAnswer, triage.CategoryMedicalNonUrgent)
			if verdict.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", verdict.Outcome, tt.wantOutcome)
			}
			if verdict.NeedsRewrite != tt.wantRewrite {
				t.Errorf("needsRewrite = %v, want %v", verdict.NeedsRewrite, tt.wantRewrite)
			}
		})
	}
}

func TestReviewer_JudgeFailureBlocksEveryTime(t *testing.T) {
	judge := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
		return "", errors.New("connection refused")
	}
	reviewer := NewReviewer(WithJudge(judge, time.Second))
	for i := 0; i < 3; i++ {
		verdict := reviewer.Review(context.Background(), "q", cleanAnswer, triage.CategoryMedicalNonUrgent)
		if verdict.Outcome != OutcomeBlock {
			t.Fatalf("iteration %d: outcome = %s, want BLOCK", i, verdict.Outcome)
		}
	}
}

func TestReviewer_InvalidJudgeOutputBlocks(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"not json", "looks fine to me"},
		{"unknown outcome", `{"outcome": "PROBABLY_FINE"}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
				return tt.output, nil
			}
			reviewer := NewReviewer(WithJudge(judge, time.Second))
			verdict := reviewer.Review(context.Background(), "q", cleanAnswer, triage.CategoryMedicalNonUrgent)
			if verdict.Outcome != OutcomeBlock {
				t.Errorf("outcome = %s, want BLOCK", verdict.Outcome)
			}
		})
	}
}

func TestWorse_OutcomeOrdering(t *testing.T) {
	if !worse(OutcomeBlock, OutcomeWarn) || !worse(OutcomeWarn, OutcomeSafe) || !worse(OutcomeBlock, OutcomeSafe) {
		t.Error("severity ordering broken")
	}
	if worse(OutcomeSafe, OutcomeWarn) || worse(OutcomeWarn, OutcomeBlock) || worse(OutcomeSafe, OutcomeSafe) {
		t.Error("inverse ordering should not hold")
	}
}
