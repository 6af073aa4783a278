package ingest

import "fmt"

// HeightRange is an inclusive run of heights committed by one cursor save.
type HeightRange struct {
	From int64
	To   int64
}

// CursorBatches splits [from, to] into batches whose ends fall on multiples
// of size, so saved cursors land on the same heights across restarts. The
// first batch may be shorter when from is not aligned.
func CursorBatches(from, to, size int64) ([]HeightRange, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if from < 0 || to < from {
		return nil, fmt.Errorf("invalid height range [%d, %d]", from, to)
	}

	batches := make([]HeightRange, 0, (to-from)/size+2)
	for start := from; start <= to; {
		end := (start/size+1)*size - 1
		if end > to {
			end = to
		}
		batches = append(batches, HeightRange{From: start, To: end})
		start = end + 1
	}
	return batches, nil
}
