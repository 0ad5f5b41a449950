package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// Client talks to the forum's REST API. Mutating calls are made on behalf of
// the bridged user so that the forum applies that user's permissions.
type Client struct {
	baseURL     string
	apiKey      string
	apiUsername string
	http        *http.Client
}

// NewClient creates a forum API client. apiUsername is used for lookups that
// are not tied to a user.
func NewClient(baseURL, apiKey, apiUsername string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("forum base URL cannot be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid forum base URL: %w", err)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("forum API key cannot be empty")
	}
	if apiUsername == "" {
		apiUsername = "system"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		apiUsername: apiUsername,
		http:        httpClient,
	}, nil
}

// BaseURL returns the forum base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostURL returns the canonical URL of a post.
func (c *Client) PostURL(post Post) string {
	return fmt.Sprintf("%s/t/%d/%d", c.baseURL, post.TopicID, post.PostNumber)
}

// UserURL returns the profile URL of a user.
func (c *Client) UserURL(username string) string {
	return c.baseURL + "/u/" + url.PathEscape(username)
}

// FindUser looks a user up by ID.
func (c *Client) FindUser(ctx context.Context, id int64) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/admin/users/%d.json", id), c.apiUsername, nil, &u); err != nil {
		return User{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return u, nil
}

// FindPost fetches a post by ID as the API user.
func (c *Client) FindPost(ctx context.Context, id int64) (Post, error) {
	return c.findPostAs(ctx, c.apiUsername, id)
}

// FindPostByNumber fetches a post by its position in a topic.
func (c *Client) FindPostByNumber(ctx context.Context, topicID int64, number int) (Post, error) {
	var p Post
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/posts/by_number/%d/%d.json", topicID, number), c.apiUsername, nil, &p); err != nil {
		return Post{}, fmt.Errorf("find post %d#%d: %w", topicID, number, err)
	}
	return p, nil
}

func (c *Client) findPostAs(ctx context.Context, username string, id int64) (Post, error) {
	var p Post
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/posts/%d.json", id), username, nil, &p); err != nil {
		return Post{}, fmt.Errorf("find post %d: %w", id, err)
	}
	return p, nil
}

// CreateReply posts raw as user in topicID, replying to replyToPostNumber.
// Content rejected by the forum yields a *ValidationError.
func (c *Client) CreateReply(ctx context.Context, user User, topicID int64, replyToPostNumber int, raw string) (Post, error) {
	req := createPostRequest{Raw: raw, TopicID: topicID, ReplyToPostNumber: replyToPostNumber}
	var p Post
	if err := c.do(ctx, http.MethodPost, "/posts.json", user.Username, req, &p); err != nil {
		return Post{}, fmt.Errorf("create reply in topic %d: %w", topicID, err)
	}
	return p, nil
}

// HasLiked reports whether user currently likes the post.
func (c *Client) HasLiked(ctx context.Context, user User, postID int64) (bool, error) {
	p, err := c.findPostAs(ctx, user.Username, postID)
	if err != nil {
		return false, err
	}
	like, ok := p.Like()
	return ok && like.Acted, nil
}

// Like registers a like by user on the post.
func (c *Client) Like(ctx context.Context, user User, postID int64) error {
	req := postActionRequest{ID: postID, PostActionTypeID: LikeActionType}
	err := c.do(ctx, http.MethodPost, "/post_actions.json", user.Username, req, nil)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && mentionsAlready(verr.Messages) {
			return ErrAlreadyActed
		}
		return fmt.Errorf("like post %d: %w", postID, err)
	}
	return nil
}

// Unlike removes user's like from the post. The like must exist and the forum
// must allow undoing it.
func (c *Client) Unlike(ctx context.Context, user User, postID int64) error {
	p, err := c.findPostAs(ctx, user.Username, postID)
	if err != nil {
		return err
	}
	like, ok := p.Like()
	if !ok || !like.Acted {
		return fmt.Errorf("unlike post %d: no like action: %w", postID, ErrNotFound)
	}
	if !like.CanUndo {
		return fmt.Errorf("unlike post %d: %w", postID, ErrNotAuthorized)
	}

	path := fmt.Sprintf("/post_actions/%d.json?post_action_type_id=%d", postID, LikeActionType)
	if err := c.do(ctx, http.MethodDelete, path, user.Username, nil, nil); err != nil {
		return fmt.Errorf("unlike post %d: %w", postID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, username string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", username)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er errorResponse
	_ = json.Unmarshal(raw, &er)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		if mentionsAlready(er.Errors) {
			return &ValidationError{Messages: er.Errors}
		}
		return ErrNotAuthorized
	case http.StatusUnprocessableEntity:
		if len(er.Errors) == 0 {
			er.Errors = []string{strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)}
		}
		return &ValidationError{Messages: er.Errors}
	default:
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
	}
}

func mentionsAlready(messages []string) bool {
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m), "already") {
			return true
		}
	}
	return false
}
