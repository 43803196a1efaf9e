// Package batch implements the generic chunking, correlation and
// accumulation logic shared by every classifier-backed pipeline stage.
//
// A stage splits its ordered input into fixed-size chunks, submits each
// chunk to a classifier gateway, validates the chunk's results against the
// declared correlation contract, and accumulates results in memory. Storage
// is only touched after the full accumulated result set passes a stage-level
// total-count check, so a stage either commits all of its mutations or none.
package batch

import (
	"github.com/rotisserie/eris"
)

// Chunks splits records into chunks of at most size elements, preserving
// the submitted order within and across chunks. A size of zero or less
// means unbounded: the entire input is returned as a single chunk.
func Chunks[T any](records []T, size int) [][]T {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 || size >= len(records) {
		return [][]T{records}
	}
	out := make([][]T, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

// CheckPositional enforces the positional correlation contract: the output
// array must have exactly one element per input element, paired by index.
func CheckPositional[I, O any](in []I, out []O) error {
	if len(out) != len(in) {
		return eris.Errorf("batch: positional mismatch: %d inputs but %d outputs", len(in), len(out))
	}
	return nil
}

// CorrelateByID enforces the id-keyed correlation contract: every input id
// must appear exactly once among the outputs. The returned map is keyed by
// input id. An output without a matching input, a duplicated id, or an
// input id absent from the output is fatal.
func CorrelateByID[O any](ids []string, out []O, idOf func(O) string) (map[string]O, error) {
	byID := make(map[string]O, len(out))
	for _, o := range out {
		id := idOf(o)
		if id == "" {
			return nil, eris.New("batch: output record missing id")
		}
		if _, dup := byID[id]; dup {
			return nil, eris.Errorf("batch: duplicate output id %s", id)
		}
		byID[id] = o
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, eris.Errorf("batch: no output for input id %s", id)
		}
	}
	if len(byID) != len(ids) {
		return nil, eris.Errorf("batch: %d outputs for %d inputs", len(byID), len(ids))
	}
	return byID, nil
}

// CheckTotal is the stage-level commit gate: the accumulated result count
// must equal the full input count before any storage mutation happens.
func CheckTotal(want, got int) error {
	if got != want {
		return eris.Errorf("batch: accumulated %d results for %d inputs", got, want)
	}
	return nil
}
