package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when the data of a streaming channel is
// no longer needed (e.g. audio of an interrupted synthesis stream).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// DrainPending discards every value currently buffered in ch without
// blocking and returns how many were dropped. It stops early if ch is closed.
func DrainPending[T any](ch <-chan T) int {
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
