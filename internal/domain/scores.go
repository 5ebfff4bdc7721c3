package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Scores is an insertion-ordered mapping from a label to an accumulated integer score.
//
// A closed vocabulary is created with NewScores and only accepts its declared keys through Add.
// An open vocabulary (warnings, taboos) starts empty and grows through Accumulate. Key order is
// preserved through JSON encoding and decoding.
type Scores[K ~string] struct {
	keys   []K
	values map[K]int
}

// ScoreEntry is a single ranked (key, score) pair.
type ScoreEntry[K ~string] struct {
	Key   K   `json:"name"`
	Score int `json:"score"`
}

// NewScores creates a mapping with every vocabulary key initialized to zero.
func NewScores[K ~string](vocabulary []K) *Scores[K] {
	s := &Scores[K]{
		keys:   make([]K, 0, len(vocabulary)),
		values: make(map[K]int, len(vocabulary)),
	}
	for _, k := range vocabulary {
		if _, ok := s.values[k]; ok {
			continue
		}
		s.keys = append(s.keys, k)
		s.values[k] = 0
	}
	return s
}

// Add increments a known key. Unknown keys are ignored and reported with false.
func (s *Scores[K]) Add(key K, n int) bool {
	if s == nil || s.values == nil {
		return false
	}
	if _, ok := s.values[key]; !ok {
		return false
	}
	s.values[key] += n
	return true
}

// Accumulate increments a key, appending it to the mapping when it is not yet present.
func (s *Scores[K]) Accumulate(key K, n int) {
	if s.values == nil {
		s.values = make(map[K]int)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] += n
}

// Get returns the score for key, zero when absent.
func (s *Scores[K]) Get(key K) int {
	if s == nil {
		return 0
	}
	return s.values[key]
}

// Keys returns the keys in insertion order.
func (s *Scores[K]) Keys() []K {
	if s == nil {
		return nil
	}
	out := make([]K, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *Scores[K]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Sum returns the total of all scores.
func (s *Scores[K]) Sum() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, k := range s.keys {
		total += s.values[k]
	}
	return total
}

// Entries returns the pairs in insertion order.
func (s *Scores[K]) Entries() []ScoreEntry[K] {
	if s == nil {
		return nil
	}
	out := make([]ScoreEntry[K], 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, ScoreEntry[K]{Key: k, Score: s.values[k]})
	}
	return out
}

// Ranked returns the pairs sorted by score descending. Ties keep insertion order.
func (s *Scores[K]) Ranked() []ScoreEntry[K] {
	out := s.Entries()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Top returns at most n ranked pairs.
func (s *Scores[K]) Top(n int) []ScoreEntry[K] {
	ranked := s.Ranked()
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Truncate returns a new mapping holding the n highest pairs in ranked order.
func (s *Scores[K]) Truncate(n int) *Scores[K] {
	out := &Scores[K]{values: make(map[K]int)}
	for _, e := range s.Top(n) {
		out.keys = append(out.keys, e.Key)
		out.values[e.Key] = e.Score
	}
	return out
}

// MarshalJSON encodes the mapping as a JSON object in insertion order.
func (s *Scores[K]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if s != nil {
		for i, k := range s.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(string(k))
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(s.values[k]))
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the order keys appear in.
func (s *Scores[K]) UnmarshalJSON(data []byte) error {
	s.keys = nil
	s.values = make(map[K]int)

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding scores: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decoding scores: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding scores key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decoding scores: unexpected key %v", tok)
		}
		var n int
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("decoding score for %q: %w", key, err)
		}
		s.Accumulate(K(key), n)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decoding scores: %w", err)
	}
	return nil
}
