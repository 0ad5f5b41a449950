package forum

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a user, post or like action does not exist.
	ErrNotFound = errors.New("forum: not found")
	// ErrNotAuthorized is returned when the acting user may not perform the action.
	ErrNotAuthorized = errors.New("forum: not authorized")
	// ErrAlreadyActed is returned when the user already liked the post.
	ErrAlreadyActed = errors.New("forum: already acted")
)

// ValidationError carries the forum's reasons for rejecting new content.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "forum: validation failed: " + e.Joined()
}

// Joined returns the messages separated by newlines.
func (e *ValidationError) Joined() string {
	return strings.Join(e.Messages, "\n")
}

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("forum: %s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, e.Body)
}
