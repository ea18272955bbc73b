package rates

import "sync"

// PeriodsPerYear is the number of funding settlements in a year on Binance
// USD-M futures (every 8 hours).
const PeriodsPerYear = 3 * 365

// Annualize converts a raw periodic funding rate into an annualized
// percentage.
func Annualize(raw float64) float64 {
	return raw * PeriodsPerYear * 100
}

// Aggregator holds the latest annualized funding rate per instrument display
// name. One mutex guards the whole map and Snapshot copies it inside the
// same critical section, so a snapshot can never mix values admitted before
// and after a concurrent update.
type Aggregator struct {
	mu    sync.Mutex
	names []string
	rates map[string]float64
}

// NewAggregator creates an empty aggregate for the given display names. The
// aggregate starts with every instrument unset; completeness is reached once
// each configured name has received at least one update.
func NewAggregator(names []string) *Aggregator {
	return &Aggregator{
		names: append([]string(nil), names...),
		rates: make(map[string]float64, len(names)),
	}
}

// Update overwrites the latest value for one instrument. O(1), no I/O.
func (a *Aggregator) Update(name string, annualized float64) {
	a.mu.Lock()
	a.rates[name] = annualized
	a.mu.Unlock()
}

// Snapshot returns a copy of the current rates and whether every configured
// instrument has been populated.
func (a *Aggregator) Snapshot() (map[string]float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]float64, len(a.rates))
	for name, rate := range a.rates {
		out[name] = rate
	}

	complete := true
	for _, name := range a.names {
		if _, ok := a.rates[name]; !ok {
			complete = false
			break
		}
	}
	return out, complete
}

// Names returns the configured display names in column order.
func (a *Aggregator) Names() []string {
	return append([]string(nil), a.names...)
}
