package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/thrivecoach/safegate/internal/prompts"
	"github.com/thrivecoach/safegate/internal/provider"
	"github.com/thrivecoach/safegate/internal/router"
	"github.com/thrivecoach/safegate/internal/safety"
	"github.com/thrivecoach/safegate/internal/triage"
)

// fakeAdapter replays scripted answers and records every request it receives.
type fakeAdapter struct {
	name     string
	replies  []fakeReply
	requests []provider.Request
}

type fakeReply struct {
	text string
	err  error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Generate(ctx context.Context, req provider.Request) (string, error) {
	reply := a.take(req)
	return reply.text, reply.err
}

func (a *fakeAdapter) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.Fragment, error) {
	reply := a.take(req)
	if reply.err != nil {
		return nil, reply.err
	}
	out := make(chan provider.Fragment, len(reply.text))
	for _, word := range strings.SplitAfter(reply.text, " ") {
		out <- provider.Fragment{Text: word}
	}
	close(out)
	return out, nil
}

func (a *fakeAdapter) take(req provider.Request) fakeReply {
	idx := len(a.requests)
	a.requests = append(a.requests, req)
	if idx >= len(a.replies) {
		return a.replies[len(a.replies)-1]
	}
	return a.replies[idx]
}

var testBudgets = map[triage.Category]int{
	triage.CategoryGeneralWellness:       1024,
	triage.CategoryMentalHealthNonCrisis: 1024,
	triage.CategoryMedicalNonUrgent:      1024,
	triage.CategoryModerateRiskProtocol:  2000,
	triage.CategoryExtremeRiskProtocol:   512,
}

func budgetFor(category triage.Category) int { return testBudgets[category] }

func newTestGateway(adapter *fakeAdapter, opts ...router.Option) *Gateway {
	opts = append([]router.Option{
		router.WithRetries(0),
		router.WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	}, opts...)
	return New(
		triage.NewClassifier(),
		router.New(adapter, opts...),
		safety.NewReviewer(),
		prompts.NewBuilder(6000),
		budgetFor,
	)
}

const safeModerateAnswer = "A three day water fast is a significant undertaking. Ease in with shorter fasts first, stay hydrated with electrolytes, and stop if you feel faint. Please consult your doctor before attempting it."

func TestGateway_CrisisServedWithoutGeneration(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{{text: "never used"}}}
	gw := newTestGateway(adapter)

	reply, err := gw.Handle(context.Background(), "I want to kill myself", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !reply.Fixed {
		t.Error("crisis reply should be fixed")
	}
	if reply.Category != triage.CategoryMentalHealthCrisis {
		t.Errorf("category = %s", reply.Category)
	}
	if !strings.Contains(reply.Text, "988") {
		t.Error("crisis reply should reference the 988 lifeline")
	}
	if len(adapter.requests) != 0 {
		t.Errorf("provider called %d times for a crisis message", len(adapter.requests))
	}
}

func TestGateway_EmergencyServedWithoutGeneration(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{{text: "never used"}}}
	gw := newTestGateway(adapter)

	reply, err := gw.Handle(context.Background(), "I have chest pain and can't breathe", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !reply.Fixed || reply.Category != triage.CategoryMedicalEmergency {
		t.Errorf("reply = %+v", reply)
	}
	if len(adapter.requests) != 0 {
		t.Errorf("provider called %d times for an emergency message", len(adapter.requests))
	}
}

func TestGateway_ModerateRiskUsesCategoryBudget(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{{text: safeModerateAnswer}}}
	gw := newTestGateway(adapter)

	reply, err := gw.Handle(context.Background(), "Can I try a 3-day water fast?", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Category != triage.CategoryModerateRiskProtocol {
		t.Fatalf("category = %s", reply.Category)
	}
	if reply.Verdict != safety.OutcomeSafe {
		t.Errorf("verdict = %s", reply.Verdict)
	}
	if len(adapter.requests) != 1 {
		t.Fatalf("provider called %d times", len(adapter.requests))
	}
	if adapter.requests[0].MaxTokens != 2000 {
		t.Errorf("max tokens = %d, want the moderate-risk budget", adapter.requests[0].MaxTokens)
	}
	if adapter.requests[0].System == "" {
		t.Error("system prompt missing")
	}
}

func TestGateway_DosageAnswerIsBlocked(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{
		{text: "Sure, take 500mg of ibuprofen twice daily and you'll be fine."},
	}}
	gw := newTestGateway(adapter)

	reply, err := gw.Handle(context.Background(), "what helps with a headache", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Verdict != safety.OutcomeBlock {
		t.Errorf("verdict = %s, want BLOCK", reply.Verdict)
	}
	if reply.Text != BlockedMessage {
		t.Errorf("blocked reply should carry the compliant fallback, got %q", reply.Text)
	}
	if strings.Contains(reply.Text, "500mg") {
		t.Error("blocked reply leaked the original answer")
	}
}

func TestGateway_WarnTriggersSingleRewrite(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{
		{text: "You have iron deficiency. Please consult your doctor about it."},
		{text: "Low energy can have many causes, including diet and sleep. Please consult your doctor to look into it properly."},
	}}
	gw := newTestGateway(adapter)

	reply, err := gw.Handle(context.Background(), "what does my blood pressure reading mean", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !reply.Rewritten {
		t.Error("reply should be marked rewritten")
	}
	if strings.Contains(reply.Text, "You have iron deficiency") {
		t.Error("rewritten reply still contains the flagged phrasing")
	}
	// Original generation plus one rewrite call.
	if len(adapter.requests) != 2 {
		t.Fatalf("provider called %d times, want 2", len(adapter.requests))
	}
}

func TestGateway_FailedRewriteFallsBackToBlocked(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{
		{text: "You have iron deficiency. Please consult your doctor about it."},
		{text: "You are suffering from anemia, you should take supplements. Please consult your doctor."},
	}}
	gw := newTestGateway(adapter)

	reply, err := gw.Handle(context.Background(), "what does my blood pressure reading mean", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Verdict != safety.OutcomeBlock {
		t.Errorf("verdict = %s, want BLOCK after failed rewrite", reply.Verdict)
	}
	if reply.Text != BlockedMessage {
		t.Errorf("reply text = %q", reply.Text)
	}
}

func TestGateway_ProviderExhaustionSurfacesError(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{
		{err: &provider.Error{Provider: "primary", Class: provider.ErrClassTransient, Status: 502}},
	}}
	gw := newTestGateway(adapter)

	_, err := gw.Handle(context.Background(), "how do I build a morning routine", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var exhausted *router.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error %T is not ExhaustedError", err)
	}
}

func TestGateway_FallbackProviderServesReply(t *testing.T) {
	primary := &fakeAdapter{name: "primary", replies: []fakeReply{
		{err: &provider.Error{Provider: "primary", Class: provider.ErrClassTransient, Status: 503}},
	}}
	fallback := &fakeAdapter{name: "fallback", replies: []fakeReply{
		{text: "Start small: a fixed wake time and ten minutes of movement."},
	}}
	gw := newTestGateway(primary, router.WithFallback(fallback))

	reply, err := gw.Handle(context.Background(), "how do I build a morning routine", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Provider != "fallback" {
		t.Errorf("provider = %s", reply.Provider)
	}
	if reply.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", reply.Attempts)
	}
}

func TestGateway_HandleStreamForwardsTokensThenReply(t *testing.T) {
	const answer = "A fixed wake time helps more than anything else."
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{{text: answer}}}
	gw := newTestGateway(adapter)

	events, err := gw.HandleStream(context.Background(), "how do I build a morning routine", nil)
	if err != nil {
		t.Fatalf("HandleStream: %v", err)
	}

	var tokens strings.Builder
	var final *Reply
	for event := range events {
		switch event.Type {
		case "token":
			if final != nil {
				t.Fatal("token event after terminal reply")
			}
			tokens.WriteString(event.Value)
		case "reply":
			if final != nil {
				t.Fatal("more than one terminal reply")
			}
			final = event.Reply
		default:
			t.Fatalf("unknown event type %q", event.Type)
		}
	}
	if final == nil {
		t.Fatal("stream ended without a terminal reply")
	}
	if tokens.String() != answer {
		t.Errorf("streamed tokens = %q", tokens.String())
	}
	if final.Text != answer || final.Verdict != safety.OutcomeSafe {
		t.Errorf("final reply = %+v", final)
	}
}

func TestGateway_HandleStreamExtremeRiskIsNotStreamed(t *testing.T) {
	const refusal = "I can't walk you through that protocol because extended dry fasting is dangerous. Please consult your doctor about safer approaches."
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{{text: refusal}}}
	gw := newTestGateway(adapter)

	events, err := gw.HandleStream(context.Background(), "How long can I dry fast safely?", nil)
	if err != nil {
		t.Fatalf("HandleStream: %v", err)
	}

	var tokenCount int
	var final *Reply
	for event := range events {
		if event.Type == "token" {
			tokenCount++
		}
		if event.Type == "reply" {
			final = event.Reply
		}
	}
	if tokenCount != 0 {
		t.Errorf("extreme-risk stream forwarded %d token events, want 0", tokenCount)
	}
	if final == nil || final.Category != triage.CategoryExtremeRiskProtocol {
		t.Fatalf("final reply = %+v", final)
	}
	if final.Text != refusal {
		t.Errorf("final text = %q", final.Text)
	}
}

func TestGateway_HandleStreamBlockedAnswerSupersedesTokens(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{
		{text: "Take 500mg of ibuprofen twice daily, that fixes it."},
	}}
	gw := newTestGateway(adapter)

	events, err := gw.HandleStream(context.Background(), "what helps with a headache", nil)
	if err != nil {
		t.Fatalf("HandleStream: %v", err)
	}

	var final *Reply
	for event := range events {
		if event.Type == "reply" {
			final = event.Reply
		}
	}
	if final == nil {
		t.Fatal("no terminal reply")
	}
	if final.Verdict != safety.OutcomeBlock || final.Text != BlockedMessage {
		t.Errorf("final reply = %+v", final)
	}
}

func TestGateway_HandleStreamCrisisEmitsOnlyFixedReply(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{{text: "never used"}}}
	gw := newTestGateway(adapter)

	events, err := gw.HandleStream(context.Background(), "I want to kill myself", nil)
	if err != nil {
		t.Fatalf("HandleStream: %v", err)
	}
	var got []Event
	for event := range events {
		got = append(got, event)
	}
	if len(got) != 1 || got[0].Type != "reply" || !got[0].Reply.Fixed {
		t.Fatalf("events = %+v", got)
	}
	if len(adapter.requests) != 0 {
		t.Errorf("provider called %d times", len(adapter.requests))
	}
}

func TestGateway_HistoryIncludedInRequest(t *testing.T) {
	adapter := &fakeAdapter{name: "primary", replies: []fakeReply{
		{text: "Keep the same wake time on weekends too."},
	}}
	gw := newTestGateway(adapter)

	history := []provider.Turn{
		{Role: "user", Content: "how do I build a morning routine"},
		{Role: "assistant", Content: "Start with a fixed wake time."},
	}
	_, err := gw.Handle(context.Background(), "what about weekends?", history)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	turns := adapter.requests[0].Turns
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want history plus current message", len(turns))
	}
	if turns[2].Content != "what about weekends?" {
		t.Errorf("last turn = %+v", turns[2])
	}
}
