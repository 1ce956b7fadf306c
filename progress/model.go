// Package progress maps the nested steps of a sync job onto a single percentage and
// encodes the events streamed to clients.
package progress

// Share of one endpoint's slice credited once its history has been fetched, and the
// share spread across filtering. The remaining tenth is reached only when the endpoint completes.
const (
	FetchShare  = 0.4
	FilterShare = 0.5
)

// Model computes percentages for a job that walks n endpoints in order.
type Model struct {
	n int
}

// NewModel returns a model for n endpoints, including ones that will be skipped.
func NewModel(n int) Model { return Model{n: n} }

// Endpoints returns n.
func (m Model) Endpoints() int { return m.n }

func (m Model) slice() float64 { return 100 / float64(m.n) }

// Base is the percentage at which endpoint i starts.
func (m Model) Base(i int) float64 {
	if m.n <= 0 {
		return 100
	}
	return float64(i) / float64(m.n) * 100
}

// Fetching is reported for every fetch note of endpoint i.
func (m Model) Fetching(i int) float64 {
	if m.n <= 0 {
		return 100
	}
	return m.Base(i) + m.slice()*FetchShare
}

// Filtering is reported after item j (0-based) of total has been checked.
func (m Model) Filtering(i, j, total int) float64 {
	if m.n <= 0 {
		return 100
	}
	if total <= 0 {
		return m.Fetching(i) + m.slice()*FilterShare
	}
	return m.Fetching(i) + m.slice()*FilterShare*(float64(j+1)/float64(total))
}

// Completed is reported once endpoint i has emitted its result.
func (m Model) Completed(i int) float64 {
	if m.n <= 0 {
		return 100
	}
	return float64(i+1) / float64(m.n) * 100
}
