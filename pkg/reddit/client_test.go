package reddit

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"redscrape/pkg/dispatch"
	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
	"redscrape/pkg/useragent"
)

// fakeDispatcher returns canned bodies keyed by URL path.
type fakeDispatcher struct {
	responses map[string]string
	requests  []*dispatch.Request
	outcome   *dispatch.Outcome
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req *dispatch.Request) dispatch.Outcome {
	f.requests = append(f.requests, req)
	if f.outcome != nil {
		return *f.outcome
	}
	u, _ := url.Parse(req.URL)
	body, ok := f.responses[u.Path]
	if !ok {
		return dispatch.Outcome{
			Kind:   dispatch.OutcomeFatalFailure,
			Status: 404,
			Err:    errs.New(errs.ErrorTypeNotFound, "no canned response", 404),
		}
	}
	return dispatch.Outcome{
		Kind:   dispatch.OutcomeSuccess,
		Status: http.StatusOK,
		Body:   []byte(body),
	}
}

const listingPage = `{
	"kind": "Listing",
	"data": {
		"after": "t3_next",
		"children": [
			{"kind": "t3", "data": {
				"id": "abc123", "title": "First post", "author": "alice",
				"score": 42, "upvote_ratio": 0.97, "num_comments": 7,
				"created_utc": 1700000000, "subreddit": "golang",
				"permalink": "/r/golang/comments/abc123/first_post/",
				"url": "https://www.reddit.com/r/golang/comments/abc123/first_post/",
				"is_self": true, "edited": false
			}},
			{"kind": "t3", "data": {
				"id": "def456", "title": "Second post", "author": "bob",
				"score": 10, "created_utc": 1700000100, "subreddit": "golang",
				"edited": 1700000500, "domain": "example.com"
			}}
		]
	}
}`

const commentsThread = `[
	{"kind": "Listing", "data": {"children": [
		{"kind": "t3", "data": {"id": "abc123", "title": "First post", "author": "alice", "subreddit": "golang"}}
	]}},
	{"kind": "Listing", "data": {"children": [
		{"kind": "t1", "data": {
			"id": "c1", "author": "carol", "body": "top level", "score": 5,
			"created_utc": 1700000200, "parent_id": "t3_abc123",
			"replies": {"kind": "Listing", "data": {"children": [
				{"kind": "t1", "data": {
					"id": "c2", "author": "dave", "body": "nested reply",
					"score": 2, "created_utc": 1700000300,
					"parent_id": "t1_c1", "replies": ""
				}}
			]}}
		}},
		{"kind": "more", "data": {"count": 12}}
	]}}
]`

func newTestClient(responses map[string]string) (*Client, *fakeDispatcher) {
	fd := &fakeDispatcher{responses: responses}
	c := NewClient(fd, useragent.NewRotator("test-agent"), logger.NewTestLogger())
	return c, fd
}

func TestSubredditPage(t *testing.T) {
	c, fd := newTestClient(map[string]string{"/r/golang/hot.json": listingPage})

	page, err := c.SubredditPage(context.Background(), "golang", "hot", 25, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(page.Posts))
	}
	if page.After != "t3_next" {
		t.Errorf("expected cursor %q, got %q", "t3_next", page.After)
	}

	first := page.Posts[0]
	if first.ID != "abc123" || first.Title != "First post" || first.Author != "alice" {
		t.Errorf("first post decoded wrong: %+v", first)
	}
	if !first.IsSelf || first.Edited != 0 {
		t.Errorf("boolean and edited fields decoded wrong: %+v", first)
	}
	if page.Posts[1].Edited == 0 {
		t.Error("edited timestamp should survive decoding")
	}

	req := fd.requests[0]
	u, _ := url.Parse(req.URL)
	if u.Query().Get("raw_json") != "1" {
		t.Error("raw_json=1 must be requested")
	}
	if req.Header.Get("User-Agent") != "test-agent" {
		t.Error("rotated user agent must be attached")
	}
}

func TestSubredditPageCursorForwarded(t *testing.T) {
	c, fd := newTestClient(map[string]string{"/r/golang/new.json": listingPage})

	if _, err := c.SubredditPage(context.Background(), "golang", "new", 25, "t3_prev"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ := url.Parse(fd.requests[0].URL)
	if u.Query().Get("after") != "t3_prev" {
		t.Error("after cursor must be forwarded to the listing endpoint")
	}
}

func TestPostComments(t *testing.T) {
	c, _ := newTestClient(map[string]string{"/r/golang/comments/abc123.json": commentsThread})

	thread, err := c.PostComments(context.Background(), "golang", "abc123", "best")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if thread.Post.ID != "abc123" {
		t.Errorf("post decoded wrong: %+v", thread.Post)
	}
	if len(thread.Comments) != 1 {
		t.Fatalf("expected 1 top-level comment, got %d", len(thread.Comments))
	}

	top := thread.Comments[0]
	if top.ID != "c1" || top.Body != "top level" {
		t.Errorf("comment decoded wrong: %+v", top)
	}
	if len(top.Replies.Comments) != 1 || top.Replies.Comments[0].ID != "c2" {
		t.Errorf("nested replies lost: %+v", top.Replies)
	}
	// the empty-string replies form must parse as no replies
	if len(top.Replies.Comments[0].Replies.Comments) != 0 {
		t.Error("leaf comment should have no replies")
	}
}

func TestSearchParams(t *testing.T) {
	c, fd := newTestClient(map[string]string{"/r/golang/search.json": listingPage})

	if _, err := c.Search(context.Background(), "golang", "generics", "relevance", "all", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ := url.Parse(fd.requests[0].URL)
	q := u.Query()
	if q.Get("q") != "generics" || q.Get("restrict_sr") != "on" || q.Get("sort") != "relevance" {
		t.Errorf("search params wrong: %v", q)
	}
}

func TestUserSubmitted(t *testing.T) {
	c, fd := newTestClient(map[string]string{"/user/alice/submitted.json": listingPage})

	page, err := c.UserSubmitted(context.Background(), "alice", "new", 25, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Errorf("expected 2 posts, got %d", len(page.Posts))
	}
	if !strings.Contains(fd.requests[0].URL, "/user/alice/submitted.json") {
		t.Errorf("wrong endpoint: %s", fd.requests[0].URL)
	}
}

func TestFetchSurfacesDispatchErrors(t *testing.T) {
	fd := &fakeDispatcher{outcome: &dispatch.Outcome{
		Kind: dispatch.OutcomeFatalFailure,
		Err:  errs.New(errs.ErrorTypeNoHealthyProxy, "pool is empty", 0),
	}}
	c := NewClient(fd, useragent.NewRotator("ua"), logger.NewTestLogger())

	_, err := c.SubredditPage(context.Background(), "golang", "hot", 25, "")
	if !errs.IsType(err, errs.ErrorTypeNoHealthyProxy) {
		t.Errorf("expected the dispatch cause to surface, got %v", err)
	}
}

func TestFetchMalformedPayload(t *testing.T) {
	c, _ := newTestClient(map[string]string{"/r/golang/hot.json": "<html>not json</html>"})

	_, err := c.SubredditPage(context.Background(), "golang", "hot", 25, "")
	if !errs.IsType(err, errs.ErrorTypeParsing) {
		t.Errorf("expected parsing error, got %v", err)
	}
}
