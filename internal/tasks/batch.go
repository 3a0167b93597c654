package tasks

// DefaultBatchSize bounds how many reminders are written per batch.
const DefaultBatchSize = 100

// Batch is an ordered slice of work items. Batches are a pacing and progress unit only;
// nothing about a batch is atomic.
type Batch[T any] struct {
	Index int
	Items []T
}

// Plan splits items into consecutive batches of at most size, keeping input order.
// A size of zero or less uses [DefaultBatchSize].
func Plan[T any](items []T, size int) []Batch[T] {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(items) == 0 {
		return nil
	}

	batches := make([]Batch[T], 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, Batch[T]{Index: len(batches), Items: items[start:end:end]})
	}
	return batches
}
