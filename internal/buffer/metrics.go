package buffer

// NopMetrics is a MetricsCollector that discards every observation. It is
// used when no registry is wired, and by tests.
type NopMetrics struct{}

func (NopMetrics) IncRecordsEnqueued(string, int32)            {}
func (NopMetrics) IncRecordsProcessed(string, int32)           {}
func (NopMetrics) IncRecordsFailed(string, int32)              {}
func (NopMetrics) ObserveProcessDuration(string, float64)      {}
func (NopMetrics) ObserveEnqueueBlockDuration(string, float64) {}
func (NopMetrics) SetDrainerMemoryUsage(int, float64)          {}
func (NopMetrics) IncDrainTimeouts(string)                     {}

var _ MetricsCollector = NopMetrics{}
