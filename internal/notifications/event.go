package notifications

import (
	"fmt"
	"strconv"
)

// Type is the forum's numeric notification type.
type Type int

// Forum notification types.
const (
	TypeMentioned               Type = 1
	TypeReplied                 Type = 2
	TypeQuoted                  Type = 3
	TypeEdited                  Type = 4
	TypeLiked                   Type = 5
	TypePrivateMessage          Type = 6
	TypeInvitedToPrivateMessage Type = 7
	TypeInviteeAccepted         Type = 8
	TypePosted                  Type = 9
	TypeMovedPost               Type = 10
	TypeLinked                  Type = 11
	TypeGrantedBadge            Type = 12
	TypeInvitedToTopic          Type = 13
	TypeCustom                  Type = 14
	TypeGroupMentioned          Type = 15
	TypeGroupMessageSummary     Type = 16
	TypeWatchingFirstPost       Type = 17
	TypeTopicReminder           Type = 18
	TypeLikedConsolidated       Type = 19
	TypePostApproved            Type = 20
	TypeBookmarkReminder        Type = 24
	TypeReaction                Type = 25
)

var typeNames = map[Type]string{
	TypeMentioned:               "mentioned",
	TypeReplied:                 "replied",
	TypeQuoted:                  "quoted",
	TypeEdited:                  "edited",
	TypeLiked:                   "liked",
	TypePrivateMessage:          "private_message",
	TypeInvitedToPrivateMessage: "invited_to_private_message",
	TypeInviteeAccepted:         "invitee_accepted",
	TypePosted:                  "posted",
	TypeMovedPost:               "moved_post",
	TypeLinked:                  "linked",
	TypeGrantedBadge:            "granted_badge",
	TypeInvitedToTopic:          "invited_to_topic",
	TypeCustom:                  "custom",
	TypeGroupMentioned:          "group_mentioned",
	TypeGroupMessageSummary:     "group_message_summary",
	TypeWatchingFirstPost:       "watching_first_post",
	TypeTopicReminder:           "topic_reminder",
	TypeLikedConsolidated:       "liked_consolidated",
	TypePostApproved:            "post_approved",
	TypeBookmarkReminder:        "bookmark_reminder",
	TypeReaction:                "reaction",
}

// Name returns the forum's name for the type, or its number when unknown.
func (t Type) Name() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// Event is a notification pushed by the forum for one recipient.
type Event struct {
	UserID           int64  `json:"user_id"`
	NotificationType Type   `json:"notification_type"`
	TopicID          int64  `json:"topic_id"`
	PostNumber       int    `json:"post_number"`
	PostURL          string `json:"post_url"` // relative to the forum base URL
	Excerpt          string `json:"excerpt"`
	TopicTitle       string `json:"topic_title"`
	Username         string `json:"username"` // acting user
}

// Validate checks the fields the forwarder depends on.
func (e Event) Validate() error {
	if e.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if e.NotificationType <= 0 {
		return fmt.Errorf("notification_type is required")
	}
	if e.TopicID <= 0 || e.PostNumber <= 0 {
		return fmt.Errorf("topic_id and post_number are required")
	}
	return nil
}

// DedupKey identifies the delivery of this event to its recipient. The acting
// user is part of the key, so two people liking the same post are two events.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%d:%d:%d:%s:%s", e.UserID, e.TopicID, e.PostNumber, e.NotificationType.Name(), e.Username)
}
