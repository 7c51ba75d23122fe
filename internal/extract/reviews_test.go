package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-crawler/internal/config"
	"github.com/JakeFAU/review-crawler/internal/crawler"
)

const defaultBlockPath = "/html/body/div[1]/div/div/main/div/div[4]/section/div"

type review struct {
	user, location, rating, title, text string
}

func reviewBlock(r review) string {
	return fmt.Sprintf(`<div><article><div>
<aside><div><a href="/users/x"><span>%s</span><div><div><span>%s</span></div></div></a></div></aside>
<section>
<div><div><img src="stars.svg" alt="%s"></div></div>
<div><a href="/reviews/x"><h2>%s</h2></a><p>%s</p><p>Date of experience</p></div>
</section>
</div></article></div>`, r.user, r.location, r.rating, r.title, r.text)
}

func reviewPage(blocks ...string) []byte {
	return []byte(`<html><head><title>reviews</title></head><body>
<div><div><div><main><div>
<div>header</div><div>summary</div><div>filters</div>
<div><section>` + strings.Join(blocks, "\n") + `</section></div>
</div></main></div></div></div>
</body></html>`)
}

func newTestExtractor(t *testing.T) *ReviewExtractor {
	t.Helper()
	locator, err := NewXPathLocator(defaultBlockPath, config.DefaultFieldSelectors())
	require.NoError(t, err)
	return NewReviewExtractor(locator)
}

func TestExtractReviews(t *testing.T) {
	t.Parallel()

	body := reviewPage(
		reviewBlock(review{"Alice", "US", "Rated 5 out of 5 stars", "Great", "Loved it"}),
		reviewBlock(review{"Bob", "GB", "Rated 1 out of 5 stars", "Awful", "  Broke in a day  "}),
	)
	records := newTestExtractor(t).Extract(body)

	require.Equal(t, []crawler.Record{
		{Username: "Alice", Location: "US", Review: "Loved it", Rating: "Rated 5 out of 5 stars", Title: "Great"},
		{Username: "Bob", Location: "GB", Review: "Broke in a day", Rating: "Rated 1 out of 5 stars", Title: "Awful"},
	}, records)
}

func TestExtractMissingFieldsUseSentinel(t *testing.T) {
	t.Parallel()

	partial := `<div><article><div>
<aside><div><a href="/users/x"><span>Carol</span></a></div></aside>
<section><div><div><img src="stars.svg"></div></div></section>
</div></article></div>`
	records := newTestExtractor(t).Extract(reviewPage(partial, `<div></div>`))

	require.Len(t, records, 2)
	require.Equal(t, crawler.Record{
		Username: "Carol",
		Location: crawler.Sentinel,
		Review:   crawler.Sentinel,
		Rating:   crawler.Sentinel,
		Title:    crawler.Sentinel,
	}, records[0])
	require.Equal(t, crawler.NewRecord(), records[1])
}

func TestExtractNeverPanics(t *testing.T) {
	t.Parallel()

	extractor := newTestExtractor(t)
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("not html at all <<<>>>"),
		[]byte("<html><body><div><div></body>"),
		{0xff, 0xfe, 0x00, 0x3c},
	}
	for _, in := range inputs {
		require.NotPanics(t, func() {
			require.Empty(t, extractor.Extract(in))
		})
	}
}

func TestNewXPathLocatorRejectsBadPaths(t *testing.T) {
	t.Parallel()

	_, err := NewXPathLocator("//div[", nil)
	require.Error(t, err)

	_, err = NewXPathLocator(defaultBlockPath, map[string]config.FieldSelector{
		config.FieldTitle: {Path: "a/h2]["},
	})
	require.ErrorContains(t, err, "title")
}

func TestXPathLocatorUnknownField(t *testing.T) {
	t.Parallel()

	locator, err := NewXPathLocator(defaultBlockPath, config.DefaultFieldSelectors())
	require.NoError(t, err)
	_, ok := locator.Field(nil, config.FieldTitle)
	require.False(t, ok)
	require.Nil(t, locator.Blocks(nil))
}
