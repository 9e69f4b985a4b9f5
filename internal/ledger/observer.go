package ledger

import "time"

// Observer receives store measurements. Implementations must be cheap and
// must not call back into the Store.
type Observer interface {
	ObserveAppend(records int, bytes int)
	ObserveEviction(byAge int, byCount int)
	ObservePersist(elapsed time.Duration, err error)
	ObserveSize(streams int, records int)
}

// NoopObserver discards observations.
type NoopObserver struct{}

func (NoopObserver) ObserveAppend(int, int)               {}
func (NoopObserver) ObserveEviction(int, int)             {}
func (NoopObserver) ObservePersist(time.Duration, error) {}
func (NoopObserver) ObserveSize(int, int)                 {}
