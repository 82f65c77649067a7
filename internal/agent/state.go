package agent

// MaxAttempts bounds the number of model round trips (the question plus
// corrections) for a single question.
const MaxAttempts = 3

// noQueryPlaceholder is reported when no query was ever extracted.
const noQueryPlaceholder = "Could not extract query"

// State is a step of the question answering loop.
//
//	AskQuestion -> Inspect -> {Execute, NotAQuery}
//	Execute -> {Success, AutoFix}
//	AutoFix -> {Fixed, CorrectAndRetry}
//	CorrectAndRetry -> {AskQuestion, Exhausted}
type State int

const (
	StateAskQuestion State = iota
	StateInspect
	StateExecute
	StateAutoFix
	StateCorrectAndRetry
	StateSuccess
	StateFixed
	StateNotAQuery
	StateExhausted
)

var stateNames = [...]string{
	StateAskQuestion:     "ask_question",
	StateInspect:         "inspect",
	StateExecute:         "execute",
	StateAutoFix:         "auto_fix",
	StateCorrectAndRetry: "correct_and_retry",
	StateSuccess:         "success",
	StateFixed:           "fixed",
	StateNotAQuery:       "not_a_query",
	StateExhausted:       "exhausted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the loop stops in this state.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFixed, StateNotAQuery, StateExhausted:
		return true
	}
	return false
}
