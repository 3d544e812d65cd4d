package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	stageStartedTotal    atomic.Uint64
	stageCompletedTotal  atomic.Uint64
	stageFailedTotal     atomic.Uint64
	uploadFinalizedTotal atomic.Uint64
	chatTurnsTotal       atomic.Uint64
	chatFailedTotal      atomic.Uint64
	reportRevisionsTotal atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsCompletedTotal            atomic.Uint64
	jobsFailedTotal               atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	pipelineDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

func IncStageStarted()             { stageStartedTotal.Add(1) }
func IncStageCompleted()           { stageCompletedTotal.Add(1) }
func IncStageFailed()              { stageFailedTotal.Add(1) }
func IncUploadFinalized()          { uploadFinalizedTotal.Add(1) }
func IncChatTurn()                 { chatTurnsTotal.Add(1) }
func IncChatFailed()               { chatFailedTotal.Add(1) }
func IncReportRevision()           { reportRevisionsTotal.Add(1) }
func IncJobsReceived()             { jobsReceivedTotal.Add(1) }
func IncJobsCompleted()            { jobsCompletedTotal.Add(1) }
func IncJobsFailed()               { jobsFailedTotal.Add(1) }
func IncJobsDeletedUnrecoverable() { jobsDeletedUnrecoverableTotal.Add(1) }

// ObservePipelineDurationMs records a full pipeline run duration.
func ObservePipelineDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	pipelineDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "pipeline_stage_started_total", "Total pipeline stages started", stageStartedTotal.Load())
	writeCounter(&buf, "pipeline_stage_completed_total", "Total pipeline stages completed", stageCompletedTotal.Load())
	writeCounter(&buf, "pipeline_stage_failed_total", "Total pipeline stages failed", stageFailedTotal.Load())
	writeCounter(&buf, "upload_finalized_total", "Total uploads finalized", uploadFinalizedTotal.Load())
	writeCounter(&buf, "chat_turns_total", "Total chat turns handled", chatTurnsTotal.Load())
	writeCounter(&buf, "chat_failed_total", "Total chat turns failed", chatFailedTotal.Load())
	writeCounter(&buf, "report_revisions_total", "Total chat-triggered report revisions", reportRevisionsTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Total queue jobs received", jobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Total queue jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Total queue jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_deleted_unrecoverable_total", "Total unrecoverable jobs deleted", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "pipeline_duration_ms", "Pipeline run duration in milliseconds", pipelineDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
