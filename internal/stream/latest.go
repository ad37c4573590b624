// Package stream holds the snapshot hand-off used by every subscription.
package stream

// Offer sends v on ch, dropping a value the reader has not taken yet.
// ch must be buffered with capacity 1 and have exactly one sender.
func Offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
