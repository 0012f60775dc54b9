package document

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPageOutOfRange is returned for page numbers outside [1, NumPages].
var ErrPageOutOfRange = errors.New("page out of range")

// Metadata is best-effort information from the PDF trailer and info dictionary.
type Metadata struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Producer  string `json:"producer,omitempty"`
	PageCount int    `json:"pageCount"`
	Encrypted bool   `json:"encrypted"`
}

// Document is a loaded PDF reduced to its page texts.
type Document struct {
	ID       string
	Name     string
	Size     int64
	Pages    []string
	Metadata Metadata
	LoadedAt time.Time
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return len(d.Pages)
}

// Page returns the text of the 1-based page n.
func (d *Document) Page(n int) (string, error) {
	if n < 1 || n > len(d.Pages) {
		return "", fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, n, len(d.Pages))
	}
	return d.Pages[n-1], nil
}

// FullText concatenates every page followed by a page marker.
func (d *Document) FullText() string {
	var b strings.Builder
	for i, text := range d.Pages {
		b.WriteString(text)
		fmt.Fprintf(&b, "\n\n--- Page %d ---\n\n", i+1)
	}
	return b.String()
}

// Match is a page containing the searched text.
type Match struct {
	Page int    `json:"pageNumber"`
	Text string `json:"text"`
}

// Search returns the pages containing query, case-insensitively, in page order.
func (d *Document) Search(query string) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var matches []Match
	for i, text := range d.Pages {
		if strings.Contains(strings.ToLower(text), query) {
			matches = append(matches, Match{Page: i + 1, Text: text})
		}
	}
	return matches
}
