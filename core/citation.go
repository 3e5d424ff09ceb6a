package core

// Citation is one source reference attached to generated text. URL and
// Number together identify a citation; Title is informational.
type Citation struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
	Title  string `json:"title,omitempty"`
}

type citationKey struct {
	url    string
	number int
}

// CitationSet holds citations in first-seen order with (url, number)
// uniqueness. The zero value is not usable; construct with NewCitationSet.
type CitationSet struct {
	seen  map[citationKey]struct{}
	order []Citation
}

// NewCitationSet creates an empty set.
func NewCitationSet() *CitationSet {
	return &CitationSet{seen: map[citationKey]struct{}{}}
}

// Merge folds citations into the set. A citation whose (url, number) key was
// already seen is skipped, so repeated merges preserve first-seen order and
// never introduce duplicates.
func (s *CitationSet) Merge(citations ...Citation) {
	for _, c := range citations {
		key := citationKey{url: c.URL, number: c.Number}
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.order = append(s.order, c)
	}
}

// List returns the citations in first-seen order.
func (s *CitationSet) List() []Citation {
	out := make([]Citation, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of distinct citations.
func (s *CitationSet) Len() int { return len(s.order) }
