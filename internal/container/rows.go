package container

// rowIndex is a growable dataset index. Capacity is reserved up front from
// the expected frame count and extended by a fixed step when it runs out;
// finalize trims it to the exact number of rows written.
type rowIndex struct {
	rows []extent
	grow int
}

func newRowIndex(capacity, grow int) *rowIndex {
	if capacity < 0 {
		capacity = 0
	}
	if grow < 1 {
		grow = 1
	}
	return &rowIndex{rows: make([]extent, 0, capacity), grow: grow}
}

func (r *rowIndex) append(e extent) {
	if len(r.rows) == cap(r.rows) {
		grown := make([]extent, len(r.rows), cap(r.rows)+r.grow)
		copy(grown, r.rows)
		r.rows = grown
	}
	r.rows = append(r.rows, e)
}

func (r *rowIndex) len() int { return len(r.rows) }

func (r *rowIndex) capacity() int { return cap(r.rows) }

// finalize trims the index to exactly n rows. n larger than the number of
// rows written is an error in the caller.
func (r *rowIndex) finalize(n int) {
	r.rows = r.rows[:n:n]
}
