// Package reddit reads the public JSON listing endpoints through the
// dispatch core and decodes their envelope format into plain models.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"redscrape/pkg/dispatch"
	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
	"redscrape/pkg/useragent"
)

// DefaultBaseURL is the public JSON API host.
const DefaultBaseURL = "https://www.reddit.com"

// pageSize is the per-request item cap the listing API honors.
const pageSize = 100

// Valid sort sets per endpoint.
var (
	SubredditSorts = []string{"hot", "new", "top", "rising"}
	CommentSorts   = []string{"best", "top", "new", "controversial", "old", "qa"}
	UserSorts      = []string{"new", "hot", "top"}
	SearchSorts    = []string{"relevance", "hot", "top", "new", "comments"}
)

// Dispatcher is the slice of the dispatch core the client consumes.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *dispatch.Request) dispatch.Outcome
}

// Client reads the public JSON listing endpoints through the dispatch
// core. It owns endpoint construction and payload decoding; resilience
// lives entirely behind the Dispatcher.
type Client struct {
	dispatcher Dispatcher
	agents     *useragent.Rotator
	baseURL    string
	log        logger.Logger
}

// NewClient creates a client over the given dispatcher.
func NewClient(d Dispatcher, agents *useragent.Rotator, log logger.Logger) *Client {
	if agents == nil {
		agents = useragent.NewRotator()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		dispatcher: d,
		agents:     agents,
		baseURL:    DefaultBaseURL,
		log:        log,
	}
}

// SetBaseURL points the client at a different host. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// Page is one page of posts plus the cursor for the next one. An empty
// After means the listing is exhausted.
type Page struct {
	Posts []Post
	After string
}

// SubredditPage fetches one page of a subreddit listing.
func (c *Client) SubredditPage(ctx context.Context, subreddit, sort string, limit int, after string) (*Page, error) {
	params := url.Values{
		"limit":    {strconv.Itoa(min(limit, pageSize))},
		"raw_json": {"1"},
	}
	if after != "" {
		params.Set("after", after)
	}
	target := fmt.Sprintf("%s/r/%s/%s.json?%s", c.baseURL, subreddit, sort, params.Encode())

	var env Envelope
	if err := c.fetch(ctx, target, &env); err != nil {
		return nil, err
	}
	return &Page{Posts: parsePosts(env.Data.Children), After: env.Data.After}, nil
}

// Thread is one post plus its full comment tree.
type Thread struct {
	Post     Post
	Comments []Comment
}

// PostComments fetches a post and its comment tree. The endpoint
// returns a two-element array: the post listing, then the comments.
func (c *Client) PostComments(ctx context.Context, subreddit, postID, sort string) (*Thread, error) {
	params := url.Values{
		"sort":     {sort},
		"raw_json": {"1"},
	}
	target := fmt.Sprintf("%s/r/%s/comments/%s.json?%s", c.baseURL, subreddit, postID, params.Encode())

	var envs []Envelope
	if err := c.fetch(ctx, target, &envs); err != nil {
		return nil, err
	}
	if len(envs) < 2 {
		return nil, errs.New(errs.ErrorTypeParsing, "comments endpoint returned an unexpected shape", 0)
	}

	posts := parsePosts(envs[0].Data.Children)
	if len(posts) == 0 {
		return nil, errs.Newf(errs.ErrorTypeNotFound, 404, "post %s not found in r/%s", postID, subreddit)
	}

	return &Thread{
		Post:     posts[0],
		Comments: parseComments(envs[1].Data.Children),
	}, nil
}

// UserSubmitted fetches one page of a user's submitted posts.
func (c *Client) UserSubmitted(ctx context.Context, username, sort string, limit int, after string) (*Page, error) {
	params := url.Values{
		"sort":     {sort},
		"limit":    {strconv.Itoa(min(limit, pageSize))},
		"raw_json": {"1"},
	}
	if after != "" {
		params.Set("after", after)
	}
	target := fmt.Sprintf("%s/user/%s/submitted.json?%s", c.baseURL, username, params.Encode())

	var env Envelope
	if err := c.fetch(ctx, target, &env); err != nil {
		return nil, err
	}
	return &Page{Posts: parsePosts(env.Data.Children), After: env.Data.After}, nil
}

// Search runs a search restricted to one subreddit.
func (c *Client) Search(ctx context.Context, subreddit, query, sort, timeFilter string, limit int) ([]Post, error) {
	params := url.Values{
		"q":           {query},
		"restrict_sr": {"on"},
		"sort":        {sort},
		"t":           {timeFilter},
		"limit":       {strconv.Itoa(min(limit, pageSize))},
		"raw_json":    {"1"},
	}
	target := fmt.Sprintf("%s/r/%s/search.json?%s", c.baseURL, subreddit, params.Encode())

	var env Envelope
	if err := c.fetch(ctx, target, &env); err != nil {
		return nil, err
	}
	return parsePosts(env.Data.Children), nil
}

// fetch dispatches one GET and decodes the JSON payload into out.
func (c *Client) fetch(ctx context.Context, target string, out interface{}) error {
	req := dispatch.NewRequest(target)
	req.Header = http.Header{
		"User-Agent": {c.agents.Next()},
		"Accept":     {"application/json"},
	}

	outcome := c.dispatcher.Dispatch(ctx, req)
	if !outcome.OK() {
		return outcomeError(outcome)
	}

	if err := json.Unmarshal(outcome.Body, out); err != nil {
		return errs.Newf(errs.ErrorTypeParsing, outcome.Status, "decode response from %s: %v", target, err)
	}
	return nil
}

// outcomeError converts a non-success outcome into the typed error the
// scraping layer reports upward.
func outcomeError(o dispatch.Outcome) error {
	if o.Err != nil {
		return o.Err
	}
	return errs.Newf(errs.ErrorTypeUnknown, o.Status, "dispatch ended with %s", o.Kind)
}

func parsePosts(children []Child) []Post {
	var out []Post
	for _, child := range children {
		if child.Kind != KindPost {
			continue
		}
		var p Post
		if err := json.Unmarshal(child.Data, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
