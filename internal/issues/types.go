package issues

import "time"

// Issue is a remote issue as reported by the tracker CLI.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Body   string `json:"body,omitempty"`
}

// Entry is one cached issue.
type Entry struct {
	Number    int       `json:"issue_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Issue converts a cache entry back to an Issue without a body.
func (e Entry) Issue() Issue {
	return Issue{Number: e.Number, Title: e.Title, URL: e.URL}
}
