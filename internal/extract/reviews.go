package extract

import (
	"bytes"

	"github.com/antchfx/htmlquery"

	"github.com/JakeFAU/review-crawler/internal/config"
	"github.com/JakeFAU/review-crawler/internal/crawler"
)

// ReviewExtractor builds review records from an organization page.
type ReviewExtractor struct {
	locator Locator
}

// NewReviewExtractor returns an extractor backed by locator.
func NewReviewExtractor(locator Locator) *ReviewExtractor {
	return &ReviewExtractor{locator: locator}
}

// Extract returns one record per review block. Unresolvable fields keep the
// sentinel value; markup that cannot be parsed yields no records.
func (e *ReviewExtractor) Extract(body []byte) []crawler.Record {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	blocks := e.locator.Blocks(doc)
	records := make([]crawler.Record, 0, len(blocks))
	for _, block := range blocks {
		rec := crawler.NewRecord()
		if v, ok := e.locator.Field(block, config.FieldUsername); ok {
			rec.Username = v
		}
		if v, ok := e.locator.Field(block, config.FieldLocation); ok {
			rec.Location = v
		}
		if v, ok := e.locator.Field(block, config.FieldReview); ok {
			rec.Review = v
		}
		if v, ok := e.locator.Field(block, config.FieldRating); ok {
			rec.Rating = v
		}
		if v, ok := e.locator.Field(block, config.FieldTitle); ok {
			rec.Title = v
		}
		records = append(records, rec)
	}
	return records
}
