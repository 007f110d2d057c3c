package chunker

import (
	"strings"
)

// Profile sets the target chunk size and overlap, both in token units.
type Profile struct {
	Size    int
	Overlap int
}

// Default profiles: fine granularity for the lead page, larger chunks for the rest.
var (
	LeadProfile      = Profile{Size: 200, Overlap: 20}
	RemainderProfile = Profile{Size: 480, Overlap: 60}
)

// Splitter recursively splits text on a separator list and merges the pieces
// back into overlapping chunks no larger than the profile size.
type Splitter struct {
	size       int
	overlap    int
	length     func(string) int
	separators []string
}

// NewSplitter creates a splitter for the given profile and length function.
// A nil length function falls back to TokenCount.
func NewSplitter(p Profile, length func(string) int) *Splitter {
	if p.Size <= 0 {
		p.Size = LeadProfile.Size
	}
	if p.Overlap < 0 {
		p.Overlap = 0
	}
	if p.Overlap >= p.Size {
		p.Overlap = p.Size / 4
	}
	if length == nil {
		length = TokenCount
	}
	return &Splitter{
		size:       p.Size,
		overlap:    p.Overlap,
		length:     length,
		separators: []string{" ", ""},
	}
}

// Split returns the chunks of text in order. Empty input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		for _, p := range strings.Split(text, separator) {
			if p != "" {
				pieces = append(pieces, p)
			}
		}
	}

	var out, good []string
	for _, p := range pieces {
		if s.length(p) < s.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, separator)...)
	}
	return out
}

// merge joins pieces into chunks, keeping at most s.overlap units of the
// previous chunk at the start of the next one.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := s.length(separator)
	var chunks, current []string
	total := 0
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, p := range pieces {
		n := s.length(p)
		if total+n+joinLen() > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				chunks = append(chunks, doc)
			}
			for len(current) > 0 && (total > s.overlap || (total > 0 && total+n+joinLen() > s.size)) {
				drop := s.length(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}
