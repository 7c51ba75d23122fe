// Package schedule holds the drain work set and the strategies that pick
// which organization is crawled next.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// WorkSet maps organization URLs to page limits and remembers the order in
// which URLs were first inserted. It is not safe for concurrent use.
type WorkSet struct {
	keys   []string
	limits map[string]int
}

// NewWorkSet returns an empty set.
func NewWorkSet() *WorkSet {
	return &WorkSet{limits: make(map[string]int)}
}

// Zip pairs urls with limits. A repeated URL keeps its first position and
// takes its last limit.
func Zip(urls []string, limits []int) (*WorkSet, error) {
	if len(urls) != len(limits) {
		return nil, fmt.Errorf("zip work set: %d urls but %d limits", len(urls), len(limits))
	}
	s := NewWorkSet()
	for i, u := range urls {
		s.Set(u, limits[i])
	}
	return s, nil
}

// Set inserts url or updates its limit in place.
func (s *WorkSet) Set(url string, limit int) {
	if _, ok := s.limits[url]; !ok {
		s.keys = append(s.keys, url)
	}
	s.limits[url] = limit
}

// Get returns the limit stored for url.
func (s *WorkSet) Get(url string) (int, bool) {
	limit, ok := s.limits[url]
	return limit, ok
}

// Delete removes url and reports whether it was present.
func (s *WorkSet) Delete(url string) bool {
	if _, ok := s.limits[url]; !ok {
		return false
	}
	delete(s.limits, url)
	for i, k := range s.keys {
		if k == url {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len is the number of entries.
func (s *WorkSet) Len() int {
	return len(s.keys)
}

// At returns the i-th key in insertion order.
func (s *WorkSet) At(i int) string {
	return s.keys[i]
}

// Keys returns a copy of the keys in insertion order.
func (s *WorkSet) Keys() []string {
	return append([]string(nil), s.keys...)
}

// String renders the set the way a Python dict of str to int prints,
// e.g. {'https://a': 3, 'https://b': 1}. DigestChooser hashes this form.
func (s *WorkSet) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pyQuote(k))
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(s.limits[k]))
	}
	b.WriteByte('}')
	return b.String()
}

// pyQuote quotes s like Python's str repr: single quotes unless s holds a
// single quote and no double quote. Non-printable runes use \xNN, \uNNNN or
// \UNNNNNNNN depending on their width.
func pyQuote(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(quote):
			b.WriteByte('\\')
			b.WriteByte(quote)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteByte(quote)
	return b.String()
}
