package reddit

import (
	"bytes"
	"encoding/json"
)

// Thing kinds used by the listing API.
const (
	KindComment = "t1"
	KindPost    = "t3"
	KindListing = "Listing"
)

// Envelope is the outer wrapper every listing endpoint returns.
type Envelope struct {
	Kind string  `json:"kind"`
	Data Listing `json:"data"`
}

// Listing is one page of children plus the cursor to the next page.
type Listing struct {
	After    string  `json:"after"`
	Children []Child `json:"children"`
}

// Child is one typed item inside a listing. Data stays raw until the
// kind is known.
type Child struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Edited is false in the API when a post was never edited and a unix
// timestamp otherwise.
type Edited float64

func (e *Edited) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("false")) || bytes.Equal(data, []byte("true")) {
		*e = 0
		return nil
	}
	var ts float64
	if err := json.Unmarshal(data, &ts); err != nil {
		return err
	}
	*e = Edited(ts)
	return nil
}

// Post is the trimmed-down post record kept from the raw API payload.
type Post struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Selftext      string  `json:"selftext,omitempty"`
	Score         int     `json:"score"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	NumComments   int     `json:"num_comments"`
	CreatedUTC    float64 `json:"created_utc"`
	Subreddit     string  `json:"subreddit"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	LinkFlairText string  `json:"link_flair_text,omitempty"`
	Edited        Edited  `json:"edited,omitempty"`
	Over18        bool    `json:"over_18,omitempty"`
	IsSelf        bool    `json:"is_self,omitempty"`
	Domain        string  `json:"domain,omitempty"`
}

// Comment is one comment with its nested replies.
type Comment struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	ParentID   string  `json:"parent_id"`
	Depth      int     `json:"depth,omitempty"`
	Permalink  string  `json:"permalink,omitempty"`
	Replies    Replies `json:"replies,omitempty"`
}

// Replies wraps a nested comment listing. The API returns an empty
// string instead of an object when a comment has no replies, so this
// needs its own decoder.
type Replies struct {
	Comments []Comment
}

func (r *Replies) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || bytes.Equal(data, []byte(`""`)) || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	r.Comments = parseComments(env.Data.Children)
	return nil
}

// MarshalJSON writes replies back out as a plain comment array; the
// listing envelope is an API artifact nobody downstream needs.
func (r Replies) MarshalJSON() ([]byte, error) {
	if len(r.Comments) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(r.Comments)
}

// parseComments decodes the t1 children of a listing, keeping the
// reply tree intact. Non-comment kinds ("more" stubs and the like) are
// skipped.
func parseComments(children []Child) []Comment {
	var out []Comment
	for _, child := range children {
		if child.Kind != KindComment {
			continue
		}
		var c Comment
		if err := json.Unmarshal(child.Data, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FlattenComments walks a comment tree depth first and returns every
// comment in one slice with Depth filled in.
func FlattenComments(comments []Comment) []Comment {
	var out []Comment
	var walk func(cs []Comment, depth int)
	walk = func(cs []Comment, depth int) {
		for _, c := range cs {
			replies := c.Replies
			c.Depth = depth
			c.Replies = Replies{}
			out = append(out, c)
			walk(replies.Comments, depth+1)
		}
	}
	walk(comments, 0)
	return out
}

// CountComments returns the total number of comments in a tree.
func CountComments(comments []Comment) int {
	total := 0
	for _, c := range comments {
		total += 1 + CountComments(c.Replies.Comments)
	}
	return total
}
