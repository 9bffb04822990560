package ports

// Metrics records authentication activity
type Metrics interface {
	ObserveOutcome(strategy string, kind string)
	TokenIssued()
	TokenRevoked()
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) ObserveOutcome(string, string) {}
func (NopMetrics) TokenIssued()                  {}
func (NopMetrics) TokenRevoked()                 {}
