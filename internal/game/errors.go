package game

import "errors"

// Client input errors. Rejected at the boundary before any state mutation.
var (
	ErrInvalidName     = errors.New("name must be 1-15 letters, digits, spaces, hyphens or underscores")
	ErrInvalidRoomCode = errors.New("room code must be 6 characters A-Z or 0-9")
)

// Lifecycle errors.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrGameAlreadyStarted  = errors.New("game has already started")
	ErrNameTaken           = errors.New("name is already taken in this room")
	ErrNotHost             = errors.New("only the host can do that")
	ErrInsufficientPlayers = errors.New("at least 2 players are required to start")
	ErrPlayerNotFound      = errors.New("player not found")
)

// Rule violations. These answer a syntactically valid action with "no, not
// now / not that card"; the dispatch boundary reports them as invalidMove so
// the client can render specific guidance instead of a generic error.
var (
	ErrNotYourTurn        = errors.New("it is not your turn")
	ErrGameNotPlaying     = errors.New("the game is not in progress")
	ErrInvalidCardIndex   = errors.New("card index out of range")
	ErrCardNotPlayable    = errors.New("that card cannot be played on the current card")
	ErrMissingColorChoice = errors.New("a wild card requires a color choice")
	ErrInvalidColor       = errors.New("chosen color must be red, green, blue or yellow")
	ErrNoChallenge        = errors.New("there is no wild-draw4 play to challenge")
	ErrNotChallenger      = errors.New("only the player who drew the penalty may challenge")
)

var ruleViolations = []error{
	ErrNotYourTurn,
	ErrGameNotPlaying,
	ErrInvalidCardIndex,
	ErrCardNotPlayable,
	ErrMissingColorChoice,
	ErrInvalidColor,
	ErrNoChallenge,
	ErrNotChallenger,
}

// IsRuleViolation distinguishes in-game rule violations from lifecycle and
// input errors.
func IsRuleViolation(err error) bool {
	for _, rv := range ruleViolations {
		if errors.Is(err, rv) {
			return true
		}
	}
	return false
}
