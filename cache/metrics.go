package cache

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and is the default when no observability
// backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) DiscardFailure()   {}
func (NoopMetrics) Size(int)          {}

var _ Metrics = NoopMetrics{}
