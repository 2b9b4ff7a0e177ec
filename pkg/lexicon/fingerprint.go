package lexicon

import (
	"maps"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the contents of the index. Two indexes built from the
// same tables share a fingerprint; any change to units, mappings, families or
// occurrence counts changes it. It is computed once, on first use.
func (x *Index) Fingerprint() uint64 {
	x.fpOnce.Do(func() {
		d := xxhash.New()
		field := func(s string) {
			_, _ = d.WriteString(s)
			_, _ = d.Write([]byte{0})
		}

		for _, id := range slices.Sorted(maps.Keys(x.units)) {
			u := x.units[id]
			field(id)
			field(u.File)
			field(u.Text)
		}
		_, _ = d.Write([]byte{1})
		for _, w := range slices.Sorted(maps.Keys(x.toLemma)) {
			field(w)
			field(x.toLemma[w])
		}
		_, _ = d.Write([]byte{1})
		for _, l := range slices.Sorted(maps.Keys(x.lemmas)) {
			field(l)
			field(strconv.Itoa(len(x.lemmas[l])))
		}
		_, _ = d.Write([]byte{1})
		for _, w := range slices.Sorted(maps.Keys(x.words)) {
			field(w)
			field(strconv.Itoa(len(x.words[w])))
		}
		_, _ = d.Write([]byte{1})
		for _, l := range slices.Sorted(maps.Keys(x.families)) {
			field(l)
			for _, f := range x.families[l].Forms {
				field(f)
			}
		}
		x.fp = d.Sum64()
	})
	return x.fp
}
