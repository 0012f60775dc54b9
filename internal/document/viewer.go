package document

import "math"

// Zoom bounds for the page view.
const (
	MinScale = 0.5
	MaxScale = 2.5
)

// Viewer is the navigation state of one open document.
type Viewer struct {
	numPages   int
	page       int
	scale      float64
	query      string
	matches    []Match
	matchIndex int
}

// ViewState is a read-only snapshot of a Viewer.
type ViewState struct {
	Page       int     `json:"pageNumber"`
	NumPages   int     `json:"numPages"`
	Scale      float64 `json:"scale"`
	Query      string  `json:"query,omitempty"`
	Matches    []Match `json:"matches,omitempty"`
	MatchIndex int     `json:"matchIndex"`
}

// NewViewer starts on page 1 at scale 1.
func NewViewer(numPages int) *Viewer {
	return &Viewer{numPages: numPages, page: 1, scale: 1, matchIndex: -1}
}

// GoTo moves to page n. Out-of-range pages are ignored and false is returned.
func (v *Viewer) GoTo(n int) bool {
	if n < 1 || n > v.numPages {
		return false
	}
	v.page = n
	return true
}

// Zoom adjusts the scale by delta, clamped to [MinScale, MaxScale].
func (v *Viewer) Zoom(delta float64) float64 {
	scale := math.Round((v.scale+delta)*100) / 100
	v.scale = math.Min(math.Max(MinScale, scale), MaxScale)
	return v.scale
}

// SetMatches installs new search results and jumps to the first one.
func (v *Viewer) SetMatches(query string, matches []Match) {
	v.query = query
	v.matches = matches
	v.matchIndex = -1
	if len(matches) > 0 {
		v.matchIndex = 0
		v.page = matches[0].Page
	}
}

// NextMatch advances to the next result, wrapping around.
func (v *Viewer) NextMatch() (Match, bool) {
	return v.stepMatch(1)
}

// PrevMatch moves to the previous result, wrapping around.
func (v *Viewer) PrevMatch() (Match, bool) {
	return v.stepMatch(-1)
}

func (v *Viewer) stepMatch(dir int) (Match, bool) {
	n := len(v.matches)
	if n == 0 {
		return Match{}, false
	}
	v.matchIndex = ((v.matchIndex+dir)%n + n) % n
	m := v.matches[v.matchIndex]
	v.page = m.Page
	return m, true
}

// State returns a snapshot.
func (v *Viewer) State() ViewState {
	matches := make([]Match, len(v.matches))
	copy(matches, v.matches)
	return ViewState{
		Page:       v.page,
		NumPages:   v.numPages,
		Scale:      v.scale,
		Query:      v.query,
		Matches:    matches,
		MatchIndex: v.matchIndex,
	}
}
