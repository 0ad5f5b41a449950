package markup

import (
	"strconv"
	"strings"
)

// Verb is the intent carried by an inline button.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbLike
	VerbUnlike
)

func (v Verb) String() string {
	switch v {
	case VerbLike:
		return "like"
	case VerbUnlike:
		return "unlike"
	default:
		return "unknown"
	}
}

// Action is a parsed callback token of the form "<verb>:<post_id>".
type Action struct {
	Verb   Verb
	PostID int64
}

// Like returns the action liking postID.
func Like(postID int64) Action { return Action{Verb: VerbLike, PostID: postID} }

// Unlike returns the action removing the like from postID.
func Unlike(postID int64) Action { return Action{Verb: VerbUnlike, PostID: postID} }

// Data encodes the action as callback data.
func (a Action) Data() string {
	return a.Verb.String() + ":" + strconv.FormatInt(a.PostID, 10)
}

// ParseAction decodes callback data. Anything that is not a well formed like
// or unlike token yields VerbUnknown; a parsable post ID is kept so the
// controls of that post can still be refreshed.
func ParseAction(data string) Action {
	verb, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return Action{Verb: VerbUnknown}
	}
	postID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || postID <= 0 {
		return Action{Verb: VerbUnknown}
	}
	switch verb {
	case "like":
		return Action{Verb: VerbLike, PostID: postID}
	case "unlike":
		return Action{Verb: VerbUnlike, PostID: postID}
	default:
		return Action{Verb: VerbUnknown, PostID: postID}
	}
}
