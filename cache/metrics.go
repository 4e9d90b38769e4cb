package cache

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                              {}
func (NoopMetrics) Miss()                             {}
func (NoopMetrics) Write()                            {}
func (NoopMetrics) Evict(EvictReason)                 {}
func (NoopMetrics) Size(int, int, uint64)             {}
func (NoopMetrics) Scavenge(int, time.Duration, bool) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
