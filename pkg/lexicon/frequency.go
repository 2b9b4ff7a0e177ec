package lexicon

import (
	"cmp"
	"encoding/json"
	"errors"
	"slices"
)

// Frequency is one ranked entry of a frequency list. It encodes as a
// two-element JSON array: ["corre", 12].
type Frequency struct {
	Key   string
	Count int
}

// MarshalJSON encodes f as [key, count].
func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Key, f.Count})
}

// UnmarshalJSON decodes [key, count].
func (f *Frequency) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return errors.New("frequency entry must be [key, count]")
	}
	if err := json.Unmarshal(pair[0], &f.Key); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &f.Count)
}

// Frequencies ranks the keys of an occurrence table by occurrence count,
// most frequent first. Ties are ordered by key.
func Frequencies(index map[string][]Occurrence) []Frequency {
	out := make([]Frequency, 0, len(index))
	for k, occs := range index {
		out = append(out, Frequency{Key: k, Count: len(occs)})
	}
	slices.SortFunc(out, func(a, b Frequency) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}
