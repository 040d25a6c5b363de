package codec

import "github.com/finnur-hlynsson/bitspec/schema"

// countOptional returns how many of t's fields participate in the
// bit-packed optional-presence vector (SPEC_FULL.md §4, adapted from the
// teacher's MessageField.Optional/OptFlagLength).
func countOptional(t *schema.Type) int {
	n := 0
	for pair := t.Fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Optional {
			n++
		}
	}
	return n
}

func presenceVectorBytes(n int) int { return (n + 7) / 8 }

func getPresenceBit(vec []byte, idx int) bool {
	return vec[idx/8]&(1<<(7-uint(idx%8))) != 0
}

func setPresenceBit(vec []byte, idx int, present bool) {
	if present {
		vec[idx/8] |= 1 << (7 - uint(idx%8))
	}
}
