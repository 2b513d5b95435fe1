package triage

import (
	"context"
	"testing"
	"time"
)

func TestClassifier_DeterministicRules(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCategory Category
	}{
		{
			name:         "explicit suicidal intent",
			text:         "I want to kill myself",
			wantCategory: CategoryMentalHealthCrisis,
		},
		{
			name:         "self harm language",
			text:         "lately I've been cutting myself",
			wantCategory: CategoryMentalHealthCrisis,
		},
		{
			name:         "emergency symptoms",
			text:         "I have chest pain and can't breathe",
			wantCategory: CategoryMedicalEmergency,
		},
		{
			name:         "overdose",
			text:         "my friend overdosed what do I do",
			wantCategory: CategoryMedicalEmergency,
		},
		{
			name:         "dry fast",
			text:         "How long can I dry fast safely?",
			wantCategory: CategoryExtremeRiskProtocol,
		},
		{
			name:         "week long fast",
			text:         "thinking about a 10 day water fast",
			wantCategory: CategoryExtremeRiskProtocol,
		},
		{
			name:         "moderate fast",
			text:         "Can I try a 3-day water fast?",
			wantCategory: CategoryModerateRiskProtocol,
		},
		{
			name:         "cold plunge",
			text:         "is a daily cold plunge good for recovery",
			wantCategory: CategoryModerateRiskProtocol,
		},
		{
			name:         "anxiety",
			text:         "my anxiety has been bad this week",
			wantCategory: CategoryMentalHealthNonCrisis,
		},
		{
			name:         "blood pressure",
			text:         "what does my blood pressure reading mean",
			wantCategory: CategoryMedicalNonUrgent,
		},
		{
			name:         "general coaching",
			text:         "how do I build a morning routine",
			wantCategory: CategoryGeneralWellness,
		},
	}

	classifier := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(context.Background(), tt.text)
			if got.Category != tt.wantCategory {
				t.Errorf("Classify(%q) = %s, want %s (reason %q)", tt.text, got.Category, tt.wantCategory, got.Reason)
			}
			if got.Reason == "" {
				t.Errorf("Classify(%q) returned empty reason", tt.text)
			}
		})
	}
}

func TestClassifier_CrisisBeatsLowerSeverity(t *testing.T) {
	// A message matching both crisis and mental-health vocabulary must land
	// in the crisis bucket.
	classifier := NewClassifier()
	got := classifier.Classify(context.Background(), "my anxiety is so bad I want to kill myself")
	if got.Category != CategoryMentalHealthCrisis {
		t.Fatalf("got %s, want %s", got.Category, CategoryMentalHealthCrisis)
	}
}

func TestClassifier_RepeatedClassificationIsStable(t *testing.T) {
	classifier := NewClassifier()
	inputs := []string{
		"I want to kill myself",
		"Can I try a 3-day water fast?",
		"how do I build a morning routine",
		"what does my blood pressure reading mean",
	}
	for _, text := range inputs {
		first := classifier.Classify(context.Background(), text)
		second := classifier.Classify(context.Background(), text)
		if first.Category != second.Category || first.Reason != second.Reason {
			t.Errorf("classification of %q not stable: %+v vs %+v", text, first, second)
		}
	}
}

func TestClassifier_RemoteFallback(t *testing.T) {
	tests := []struct {
		name         string
		remoteOutput string
		remoteErr    error
		wantCategory Category
		wantRemote   bool
	}{
		{
			name:         "valid remote category",
			remoteOutput: `{"category": "medical_non_urgent", "reason": "asks about lab results"}`,
			wantCategory: CategoryMedicalNonUrgent,
			wantRemote:   true,
		},
		{
			name:         "remote output with chatter",
			remoteOutput: "Sure! Here is the classification:\n{\"category\": \"mental_health_non_crisis\", \"reason\": \"mood\"}",
			wantCategory: CategoryMentalHealthNonCrisis,
			wantRemote:   true,
		},
		{
			name:         "invalid remote category falls back",
			remoteOutput: `{"category": "not_a_category"}`,
			wantCategory: CategoryGeneralWellness,
		},
		{
			name:         "remote error falls back",
			remoteErr:    context.DeadlineExceeded,
			wantCategory: CategoryGeneralWellness,
		},
	}

	// Long enough to trip the remote-call word threshold without matching
	// any deterministic rule.
	const ambiguous = "I have been wondering lately about some numbers my gym coach mentioned during our last longer conversation together"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
				return tt.remoteOutput, tt.remoteErr
			}
			classifier := NewClassifier(WithRemoteFallback(remote, time.Second))
			got := classifier.Classify(context.Background(), ambiguous)
			if got.Category != tt.wantCategory {
				t.Errorf("got %s, want %s", got.Category, tt.wantCategory)
			}
			if got.Remote != tt.wantRemote {
				t.Errorf("got Remote=%v, want %v", got.Remote, tt.wantRemote)
			}
		})
	}
}

func TestClassifier_NoRemoteCallWhenRuleFires(t *testing.T) {
	calls := 0
	remote := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
		calls++
		return `{"category": "general_wellness"}`, nil
	}
	classifier := NewClassifier(WithRemoteFallback(remote, time.Second))
	got := classifier.Classify(context.Background(), "I want to kill myself and I cannot see any way forward from here anymore at all")
	if got.Category != CategoryMentalHealthCrisis {
		t.Fatalf("got %s, want %s", got.Category, CategoryMentalHealthCrisis)
	}
	if calls != 0 {
		t.Fatalf("remote classifier called %d times for a deterministic match", calls)
	}
}

func TestClassifier_ShortBenignMessageSkipsRemote(t *testing.T) {
	calls := 0
	remote := func(ctx context.Context, system, user string, maxTokens int) (string, error) {
		calls++
		return `{"category": "general_wellness"}`, nil
	}
	classifier := NewClassifier(WithRemoteFallback(remote, time.Second))
	got := classifier.Classify(context.Background(), "good morning")
	if got.Category != CategoryGeneralWellness {
		t.Fatalf("got %s, want %s", got.Category, CategoryGeneralWellness)
	}
	if calls != 0 {
		t.Fatalf("remote classifier called %d times for a short benign message", calls)
	}
}

func TestCategory_Terminal(t *testing.T) {
	for _, c := range []Category{CategoryMentalHealthCrisis, CategoryMedicalEmergency} {
		if !c.Terminal() {
			t.Errorf("%s should be terminal", c)
		}
	}
	for _, c := range []Category{CategoryGeneralWellness, CategoryMentalHealthNonCrisis, CategoryMedicalNonUrgent, CategoryModerateRiskProtocol, CategoryExtremeRiskProtocol} {
		if c.Terminal() {
			t.Errorf("%s should not be terminal", c)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	ordered := []Category{
		CategoryGeneralWellness,
		CategoryMedicalNonUrgent,
		CategoryMentalHealthNonCrisis,
		CategoryModerateRiskProtocol,
		CategoryExtremeRiskProtocol,
		CategoryMedicalEmergency,
		CategoryMentalHealthCrisis,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Severity() <= ordered[i-1].Severity() {
			t.Errorf("%s (rank %d) should outrank %s (rank %d)", ordered[i], ordered[i].Severity(), ordered[i-1], ordered[i-1].Severity())
		}
	}
}
