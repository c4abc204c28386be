package realtime

import (
	"testing"
	"time"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
)

func TestDetectLatestOutcome(t *testing.T) {
	tests := []struct {
		name string
		text string
		want callstore.Outcome
		ok   bool
	}{
		{
			name: "plain confirmation",
			text: "Great, thank you for confirming. See you on Monday!",
			want: callstore.OutcomeConfirmed,
			ok:   true,
		},
		{
			name: "plain reschedule",
			text: "No problem, I've moved your appointment to a different time.",
			want: callstore.OutcomeRescheduled,
			ok:   true,
		},
		{
			name: "confirmation then reschedule resolves to reschedule",
			text: "Your appointment is confirmed. Oh, you can't make it? Let me reschedule that for you.",
			want: callstore.OutcomeRescheduled,
			ok:   true,
		},
		{
			name: "reschedule talk then final confirmation",
			text: "Did you want to reschedule? No? Wonderful, glad you can make it, see you on Tuesday.",
			want: callstore.OutcomeConfirmed,
			ok:   true,
		},
		{
			name: "no keywords",
			text: "Hi, this is Samantha from the clinic. How are you today?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectLatestOutcome(tt.text)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("outcome = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutcomeScannerIncremental(t *testing.T) {
	var sc outcomeScanner

	if _, found := sc.feed("Hi, this is Samantha from the clinic."); found {
		t.Fatal("neutral delta must not detect an outcome")
	}

	// A phrase split across two deltas is still caught.
	sc.feed(" We look forward to se")
	outcome, found := sc.feed("eing you on Monday.")
	if !found || outcome != callstore.OutcomeConfirmed {
		t.Fatalf("outcome = %q %v, want confirmed", outcome, found)
	}

	// Later reschedule talk overrides the earlier confirmation.
	outcome, found = sc.feed(" Oh, you can't make it? I've moved your appointment.")
	if !found || outcome != callstore.OutcomeRescheduled {
		t.Fatalf("outcome = %q %v, want rescheduled", outcome, found)
	}

	// A neutral delta keeps the latest detection.
	outcome, found = sc.feed(" Goodbye!")
	if !found || outcome != callstore.OutcomeRescheduled {
		t.Fatalf("outcome = %q %v, want rescheduled to stick", outcome, found)
	}
}

func TestOutcomeScannerBoundedTail(t *testing.T) {
	var sc outcomeScanner

	for i := 0; i < 200; i++ {
		sc.feed("and then we talked about the weather for a while, ")
	}
	if len(sc.tail) >= maxAssistantPhraseLen {
		t.Fatalf("tail grew to %d bytes, want under %d", len(sc.tail), maxAssistantPhraseLen)
	}

	outcome, found := sc.feed("anyway, thank you for confirming.")
	if !found || outcome != callstore.OutcomeConfirmed {
		t.Fatalf("outcome = %q %v, want confirmed", outcome, found)
	}
}

func TestClassifyUserUtterance(t *testing.T) {
	if got, ok := ClassifyUserUtterance("Yes, that works"); !ok || got != callstore.OutcomeConfirmed {
		t.Fatalf("got %q %v, want confirmed", got, ok)
	}
	if got, ok := ClassifyUserUtterance("I need to reschedule"); !ok || got != callstore.OutcomeRescheduled {
		t.Fatalf("got %q %v, want rescheduled", got, ok)
	}
	if _, ok := ClassifyUserUtterance("hello there"); ok {
		t.Fatalf("neutral utterance should not classify")
	}
}

func TestResolverStateMachineWins(t *testing.T) {
	r := NewResolver()

	if !r.Propose(SourceHeuristic, callstore.OutcomeConfirmed, nil) {
		t.Fatal("first heuristic proposal rejected")
	}

	newTime := time.Date(2026, time.May, 5, 14, 0, 0, 0, time.UTC)
	if !r.Propose(SourceStateMachine, callstore.OutcomeRescheduled, &newTime) {
		t.Fatal("state-machine proposal rejected")
	}

	// A later heuristic must not override the state machine.
	if r.Propose(SourceHeuristic, callstore.OutcomeConfirmed, nil) {
		t.Fatal("heuristic overrode state-machine outcome")
	}

	outcome, got, ok := r.Outcome()
	if !ok || outcome != callstore.OutcomeRescheduled {
		t.Fatalf("outcome = %q %v, want rescheduled", outcome, ok)
	}
	if got == nil || !got.Equal(newTime) {
		t.Fatalf("new datetime = %v, want %v", got, newTime)
	}
}

func TestResolverLastWriteWinsWithinSource(t *testing.T) {
	r := NewResolver()

	r.Propose(SourceHeuristic, callstore.OutcomeConfirmed, nil)
	r.Propose(SourceHeuristic, callstore.OutcomeRescheduled, nil)

	outcome, _, ok := r.Outcome()
	if !ok || outcome != callstore.OutcomeRescheduled {
		t.Fatalf("outcome = %q, want rescheduled (last write wins)", outcome)
	}

	r.Propose(SourceStateMachine, callstore.OutcomeConfirmed, nil)
	r.Propose(SourceStateMachine, callstore.OutcomeRescheduled, nil)

	outcome, _, _ = r.Outcome()
	if outcome != callstore.OutcomeRescheduled {
		t.Fatalf("outcome = %q, want rescheduled", outcome)
	}
}

func TestResolverEmpty(t *testing.T) {
	r := NewResolver()
	if _, _, ok := r.Outcome(); ok {
		t.Fatal("empty resolver reported an outcome")
	}
}
