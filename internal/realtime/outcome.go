package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/Foundasion/appointment-confirmation-bot/internal/callstore"
)

// Source identifies who proposed an outcome. The state machine is
// authoritative; keyword detection over speech is a redundant fallback
// signal.
type Source int

const (
	SourceHeuristic Source = iota
	SourceStateMachine
)

// Resolver is the single authority for a call's outcome. Both the
// conversation state machine and the speech-keyword detector submit
// proposals; a state-machine outcome always beats a heuristic one, and
// within the same source the last write wins.
type Resolver struct {
	mu          sync.Mutex
	outcome     callstore.Outcome
	newDateTime *time.Time
	source      Source
	set         bool
}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Propose submits an outcome. It reports whether the proposal was accepted.
func (r *Resolver) Propose(src Source, outcome callstore.Outcome, newDateTime *time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set && r.source == SourceStateMachine && src == SourceHeuristic {
		return false
	}

	r.outcome = outcome
	r.newDateTime = newDateTime
	r.source = src
	r.set = true
	return true
}

// Outcome returns the resolved outcome, or false when nothing was proposed.
func (r *Resolver) Outcome() (callstore.Outcome, *time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.newDateTime, r.set
}

// Keyword tables for the heuristic detector. Assistant speech uses the
// longer phrase lists; user utterances surfaced via transcript marks use the
// shorter word lists.
var (
	assistantConfirmPhrases = []string{
		"confirm", "confirmed", "appointment is confirmed",
		"appointment is set", "see you on", "look forward to seeing you",
		"thank you for confirming", "glad you can make it",
	}
	assistantReschedulePhrases = []string{
		"reschedule", "rescheduled", "new appointment",
		"different time", "another time", "alternative time",
		"moved your appointment", "changed your appointment",
	}
	userConfirmWords    = []string{"yes", "confirm", "good", "fine", "okay", "sure", "correct"}
	userRescheduleWords = []string{"no", "reschedule", "change", "different", "can't make", "unable"}
)

// DetectLatestOutcome scans accumulated assistant speech and returns the
// outcome whose keyword occurs last in the text. Last match wins, so a
// confirmation followed by a rescheduling discussion resolves to
// rescheduled.
func DetectLatestOutcome(text string) (callstore.Outcome, bool) {
	text = strings.ToLower(text)

	best := -1
	var outcome callstore.Outcome
	for _, p := range assistantConfirmPhrases {
		if i := strings.LastIndex(text, p); i > best {
			best = i
			outcome = callstore.OutcomeConfirmed
		}
	}
	for _, p := range assistantReschedulePhrases {
		if i := strings.LastIndex(text, p); i > best {
			best = i
			outcome = callstore.OutcomeRescheduled
		}
	}
	return outcome, best >= 0
}

// maxAssistantPhraseLen bounds the overlap an incremental scan needs to
// catch a phrase split across two deltas.
var maxAssistantPhraseLen = func() int {
	n := 0
	for _, p := range assistantConfirmPhrases {
		if len(p) > n {
			n = len(p)
		}
	}
	for _, p := range assistantReschedulePhrases {
		if len(p) > n {
			n = len(p)
		}
	}
	return n
}()

// outcomeScanner applies DetectLatestOutcome incrementally to streamed
// assistant speech. It retains only enough tail text to catch phrases split
// across delta boundaries, so each feed scans a bounded window no matter how
// long the call runs.
type outcomeScanner struct {
	tail    string
	outcome callstore.Outcome
	found   bool
}

// feed scans one new delta and returns the latest outcome detected so far.
func (sc *outcomeScanner) feed(delta string) (callstore.Outcome, bool) {
	window := sc.tail + delta
	if outcome, ok := DetectLatestOutcome(window); ok {
		sc.outcome = outcome
		sc.found = true
	}
	if keep := maxAssistantPhraseLen - 1; len(window) > keep {
		window = window[len(window)-keep:]
	}
	sc.tail = window
	return sc.outcome, sc.found
}

// ClassifyUserUtterance detects outcome keywords in a single transcribed
// user utterance. Confirmation words are checked first.
func ClassifyUserUtterance(text string) (callstore.Outcome, bool) {
	text = strings.ToLower(text)
	for _, w := range userConfirmWords {
		if strings.Contains(text, w) {
			return callstore.OutcomeConfirmed, true
		}
	}
	for _, w := range userRescheduleWords {
		if strings.Contains(text, w) {
			return callstore.OutcomeRescheduled, true
		}
	}
	return "", false
}
