package rf

// Queue names used in QueueDrop.
const (
	QueueEmissionPool  = "emission_pool"
	QueueReceiveBuffer = "receive_buffer"
	QueueReports       = "report_queue"
	QueueAccumulator   = "accumulator"
)

// MetricsRecorder receives the counters the RF path produces. Every
// method must be safe for concurrent use.
type MetricsRecorder interface {
	QueueDrop(sensor, queue string)
	Detection(sensor string)
	JammedDetections(sensor string, n int)
	ReportsDiscarded(sensor string, n int)
}

type nopMetrics struct{}

func (nopMetrics) QueueDrop(string, string)     {}
func (nopMetrics) Detection(string)             {}
func (nopMetrics) JammedDetections(string, int) {}
func (nopMetrics) ReportsDiscarded(string, int) {}

// ReportSink accepts detections for tracking. The emission is only valid
// for the duration of the call; implementations copy what they keep.
type ReportSink interface {
	NewReport(em *Emission, sn float64) bool
}
