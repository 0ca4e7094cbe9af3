// Package pagination serves transcripts newest-first with offsets counted
// backward from the newest turn.
package pagination

const (
	DefaultLimit = 30
	MaxLimit     = 100
)

// Window is the resolved slice of a transcript for one page request.
type Window struct {
	Offset     int
	Limit      int
	Total      int
	Start      int // inclusive index into the ascending transcript
	End        int // exclusive
	HasMore    bool
	NextOffset int
}

func (w Window) Len() int { return w.End - w.Start }

// Compute clamps offset and limit and resolves the page bounds for a
// transcript of total turns.
func Compute(total, offset, limit int) Window {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	if total < 0 {
		total = 0
	}
	end := total - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return Window{
		Offset:     offset,
		Limit:      limit,
		Total:      total,
		Start:      start,
		End:        end,
		HasMore:    start > 0,
		NextOffset: offset + (end - start),
	}
}

// Paginate applies Compute to an in-memory transcript. Messages stay in
// ascending chronological order.
func Paginate[T any](items []T, offset, limit int) ([]T, Window) {
	w := Compute(len(items), offset, limit)
	out := make([]T, w.Len())
	copy(out, items[w.Start:w.End])
	return out, w
}
