package forum

// LikeActionType is the forum's post action type id for likes.
const LikeActionType = 2

// User is the part of a forum user the bridge needs.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Locale   string `json:"locale,omitempty"`
}

// ActionSummary describes one post action type from the acting user's point of view.
type ActionSummary struct {
	ID      int  `json:"id"`
	Count   int  `json:"count"`
	Acted   bool `json:"acted"`
	CanAct  bool `json:"can_act"`
	CanUndo bool `json:"can_undo"`
}

// Post is a forum post as returned by the posts API.
type Post struct {
	ID             int64           `json:"id"`
	TopicID        int64           `json:"topic_id"`
	PostNumber     int             `json:"post_number"`
	Username       string          `json:"username"`
	TopicTitle     string          `json:"topic_title,omitempty"`
	Cooked         string          `json:"cooked"`
	ActionsSummary []ActionSummary `json:"actions_summary"`
}

// Like returns the like entry of the actions summary, if present.
func (p *Post) Like() (ActionSummary, bool) {
	for _, a := range p.ActionsSummary {
		if a.ID == LikeActionType {
			return a, true
		}
	}
	return ActionSummary{}, false
}

type createPostRequest struct {
	Raw               string `json:"raw"`
	TopicID           int64  `json:"topic_id"`
	ReplyToPostNumber int    `json:"reply_to_post_number,omitempty"`
}

type postActionRequest struct {
	ID               int64 `json:"id"`
	PostActionTypeID int   `json:"post_action_type_id"`
}

type errorResponse struct {
	Errors    []string `json:"errors"`
	ErrorType string   `json:"error_type"`
}
