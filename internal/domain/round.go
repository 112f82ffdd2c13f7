package domain

import (
	"fmt"
	"strings"
)

// Round identifies a competition phase.
type Round string

const (
	// RoundLobby is the waiting phase between rounds.
	RoundLobby Round = "lobby"
	// RoundText is the first round: participants recover the prompt behind a
	// displayed result text.
	RoundText Round = "round1"
	// RoundImage is the second round: participants recover the prompt behind
	// a displayed image.
	RoundImage Round = "round2"
)

// Rounds lists every round in display order.
var Rounds = []Round{RoundLobby, RoundText, RoundImage}

// ParseRound converts a wire name into a Round.
func ParseRound(s string) (Round, error) {
	switch Round(strings.ToLower(strings.TrimSpace(s))) {
	case RoundLobby:
		return RoundLobby, nil
	case RoundText:
		return RoundText, nil
	case RoundImage:
		return RoundImage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRound, s)
	}
}

// String returns the wire name of the round.
func (r Round) String() string { return string(r) }

// Scored reports whether submissions are accepted in this round.
func (r Round) Scored() bool { return r == RoundText || r == RoundImage }

// RoundFlags holds the active flag of every round. At most one flag is set.
type RoundFlags struct {
	Lobby  bool `json:"lobby"`
	Round1 bool `json:"round1"`
	Round2 bool `json:"round2"`
}

// Activate returns flags with only r set.
func Activate(r Round) RoundFlags {
	return RoundFlags{
		Lobby:  r == RoundLobby,
		Round1: r == RoundText,
		Round2: r == RoundImage,
	}
}

// IsActive reports whether r is the active round.
func (f RoundFlags) IsActive(r Round) bool {
	switch r {
	case RoundLobby:
		return f.Lobby
	case RoundText:
		return f.Round1
	case RoundImage:
		return f.Round2
	}
	return false
}

// Active returns the active round, or false when every flag is cleared.
func (f RoundFlags) Active() (Round, bool) {
	for _, r := range Rounds {
		if f.IsActive(r) {
			return r, true
		}
	}
	return "", false
}

// Count returns the number of set flags.
func (f RoundFlags) Count() int {
	n := 0
	for _, r := range Rounds {
		if f.IsActive(r) {
			n++
		}
	}
	return n
}

// clear unsets the flag of r.
func (f *RoundFlags) clear(r Round) {
	switch r {
	case RoundLobby:
		f.Lobby = false
	case RoundText:
		f.Round1 = false
	case RoundImage:
		f.Round2 = false
	}
}

// QuestionID is one of q1, q2, q3.
type QuestionID string

const (
	Q1 QuestionID = "q1"
	Q2 QuestionID = "q2"
	Q3 QuestionID = "q3"
)

// Questions lists the question slots of a round in order.
var Questions = []QuestionID{Q1, Q2, Q3}

// ParseQuestionID accepts "q1".."q3" and the bare "1".."3" used by the image
// round and by the questionId filter.
func ParseQuestionID(s string) (QuestionID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "q") {
		s = "q" + s
	}
	switch QuestionID(s) {
	case Q1, Q2, Q3:
		return QuestionID(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidQuestion, s)
}
