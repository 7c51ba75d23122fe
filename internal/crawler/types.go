package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel is stored in any review field that could not be located.
const Sentinel = "NOT FOUND"

// Review document keys, in the order they are written.
const (
	FieldUsername = "Username"
	FieldLocation = "Location"
	FieldReview   = "Review"
	FieldRating   = "Rating"
	FieldTitle    = "Title"
	FieldError    = "Error"
)

// ErrUnexpectedStatus marks a fetch that completed with a non-200 status.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Record is one review extracted from an organization page.
type Record struct {
	Username string `json:"Username" bson:"Username"`
	Location string `json:"Location" bson:"Location"`
	Review   string `json:"Review" bson:"Review"`
	Rating   string `json:"Rating" bson:"Rating"`
	Title    string `json:"Title" bson:"Title"`
}

// NewRecord returns a Record with every field set to Sentinel.
func NewRecord() Record {
	return Record{
		Username: Sentinel,
		Location: Sentinel,
		Review:   Sentinel,
		Rating:   Sentinel,
		Title:    Sentinel,
	}
}

// Document converts the record into the mapping handed to a Sink.
func (r Record) Document() Document {
	return Document{
		FieldUsername: r.Username,
		FieldLocation: r.Location,
		FieldReview:   r.Review,
		FieldRating:   r.Rating,
		FieldTitle:    r.Title,
	}
}

// Document is a mapping-typed record persisted by a Sink.
type Document map[string]string

// ErrorDocument is the single record stored for a page that could not be scraped.
func ErrorDocument(url string) Document {
	return Document{FieldError: fmt.Sprintf("Could not scrape %s", url)}
}

// IsError reports whether the document is a page failure marker.
func (d Document) IsError() bool {
	_, ok := d[FieldError]
	return ok
}

// WorkItem pairs an organization URL with the number of pages to crawl.
type WorkItem struct {
	URL       string
	PageLimit int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// OK reports whether the response carries a 200 status.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// CheckStatus returns an ErrUnexpectedStatus-wrapped error for non-200 responses.
func (r FetchResponse) CheckStatus() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %d for %s", ErrUnexpectedStatus, r.StatusCode, r.URL)
}

// OrganizationNotice is published once an organization has been crawled.
type OrganizationNotice struct {
	RunID     string    `json:"run_id"`
	URL       string    `json:"url"`
	Pages     int       `json:"pages"`
	Records   int       `json:"records"`
	Errors    int       `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}
