// Package processor drives a single job end to end: load the job and its
// script, execute the transform (chunked for large source tables), and
// write the result, generalizing original_source/worker/job_processor.py's
// full-table/chunked branch and the teacher's dispatch-by-job shape.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/models"
)

// JobProcessor processes one job at a time; WorkerSupervisor owns
// concurrency across jobs.
type JobProcessor struct {
	queue   interfaces.QueueStore
	scripts interfaces.ScriptStore
	data    interfaces.DataStore
	sandbox interfaces.Sandboxer
	logger  *common.Logger
	config  *common.Config
}

// New builds a JobProcessor from its storage and execution dependencies.
func New(queue interfaces.QueueStore, scripts interfaces.ScriptStore, data interfaces.DataStore, sandbox interfaces.Sandboxer, logger *common.Logger, config *common.Config) *JobProcessor {
	return &JobProcessor{queue: queue, scripts: scripts, data: data, sandbox: sandbox, logger: logger, config: config}
}

// Process claims and runs jobID to completion. It returns nil both when
// the job succeeds and when another supervisor already claimed it first
// — only an unexpected infrastructure failure is returned as an error, so
// WorkerSupervisor can log it without treating it as the job's own
// outcome.
func (p *JobProcessor) Process(ctx context.Context, jobID string) error {
	job, err := p.queue.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	script, err := p.scripts.Get(ctx, job.ScriptID)
	if err != nil {
		return fmt.Errorf("load script %s: %w", job.ScriptID, err)
	}
	if script == nil {
		return p.queue.MarkFailed(ctx, jobID, models.JobStatusFailed, "script not found", "script was deleted before the job ran")
	}

	claimed, err := p.queue.MarkRunning(ctx, jobID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		p.logger.Debug().Str("job_id", jobID).Msg("job already claimed by another worker")
		return nil
	}

	logs := newJobLog()
	logs.add("job started")
	logs.add(fmt.Sprintf("source: %s", job.SourceTable))
	logs.add(fmt.Sprintf("destination: %s", job.DestinationTable))

	rowCount, err := p.data.RowCount(ctx, job.SourceTable)
	if err != nil {
		logs.add(fmt.Sprintf("EXCEPTION: %v", err))
		return p.fail(ctx, jobID, models.JobStatusFailed, err.Error(), logs)
	}
	logs.add(fmt.Sprintf("source table has %d rows", rowCount))

	if rowCount > int64(p.config.Worker.ChunkSize) {
		return p.processChunked(ctx, job, script, rowCount, logs)
	}
	return p.processFull(ctx, job, script, logs)
}

func (p *JobProcessor) processFull(ctx context.Context, job *models.Job, script *models.Script, logs *jobLog) error {
	logs.add("loading table data")
	table, err := p.data.ReadTable(ctx, job.SourceTable)
	if err != nil {
		logs.add(fmt.Sprintf("EXCEPTION: %v", err))
		return p.fail(ctx, job.ID, models.JobStatusFailed, err.Error(), logs)
	}
	logs.add(fmt.Sprintf("loaded %d rows", table.RowCount()))

	logs.add("executing transformation")
	result := p.sandbox.Execute(ctx, script.CodeText, table)
	if !result.Success {
		logs.add(fmt.Sprintf("EXECUTION FAILED: %s: %s", result.Kind, result.Message))
		if result.Traceback != "" {
			logs.add("traceback:\n" + result.Traceback)
		}
		return p.fail(ctx, job.ID, terminalStatus(result.Kind), result.Message, logs)
	}

	cancelled, err := p.queue.IsCancelled(ctx, job.ID)
	if err == nil && cancelled {
		logs.add("job cancelled by user")
		return p.fail(ctx, job.ID, models.JobStatusKilled, "job cancelled by user", logs)
	}

	logs.add(fmt.Sprintf("writing to %s", job.DestinationTable))
	written, err := p.data.WriteTable(ctx, result.Table, job.DestinationTable, interfaces.WriteReplace)
	if err != nil {
		logs.add(fmt.Sprintf("EXCEPTION: %v", err))
		return p.fail(ctx, job.ID, models.JobStatusFailed, err.Error(), logs)
	}
	logs.add(fmt.Sprintf("wrote %d rows", written))

	return p.queue.MarkCompleted(ctx, job.ID, written, logs.String())
}

func (p *JobProcessor) processChunked(ctx context.Context, job *models.Job, script *models.Script, totalRows int64, logs *jobLog) error {
	chunkSize := p.config.Worker.ChunkSize
	logs.add(fmt.Sprintf("processing in chunks of %d rows", chunkSize))

	var offset, totalWritten int64
	chunkNum := 0
	first := true

	for offset < totalRows {
		chunkNum++

		if cancelled, err := p.queue.IsCancelled(ctx, job.ID); err == nil && cancelled {
			logs.add("job cancelled by user")
			return p.fail(ctx, job.ID, models.JobStatusKilled, "job cancelled by user", logs)
		}

		logs.add(fmt.Sprintf("processing chunk %d (rows %d-%d)", chunkNum, offset, min64(offset+int64(chunkSize), totalRows)))

		chunk, err := p.data.ReadChunk(ctx, job.SourceTable, chunkSize, int(offset))
		if err != nil {
			logs.add(fmt.Sprintf("EXCEPTION: %v", err))
			return p.fail(ctx, job.ID, models.JobStatusFailed, err.Error(), logs)
		}
		if chunk.RowCount() == 0 {
			break
		}
		logs.add(fmt.Sprintf("loaded %d rows", chunk.RowCount()))

		result := p.sandbox.Execute(ctx, script.CodeText, chunk)
		if !result.Success {
			logs.add(fmt.Sprintf("EXECUTION FAILED on chunk %d: %s: %s", chunkNum, result.Kind, result.Message))
			return p.fail(ctx, job.ID, terminalStatus(result.Kind), fmt.Sprintf("transformation failed on chunk %d: %s", chunkNum, result.Message), logs)
		}

		mode := interfaces.WriteAppend
		if first {
			mode = interfaces.WriteReplace
		}
		written, err := p.data.WriteTable(ctx, result.Table, job.DestinationTable, mode)
		if err != nil {
			logs.add(fmt.Sprintf("EXCEPTION: %v", err))
			return p.fail(ctx, job.ID, models.JobStatusFailed, err.Error(), logs)
		}

		totalWritten += written
		first = false
		offset += int64(chunkSize)

		if err := p.queue.UpdateProgress(ctx, job.ID, totalWritten, logs.String()); err != nil {
			p.logger.Warn().Str("job_id", job.ID).Err(err).Msg("failed to update job progress")
		}
		logs.add(fmt.Sprintf("chunk %d complete: %d rows written", chunkNum, written))
	}

	logs.add(fmt.Sprintf("all chunks processed: %d total rows", totalWritten))
	return p.queue.MarkCompleted(ctx, job.ID, totalWritten, logs.String())
}

func (p *JobProcessor) fail(ctx context.Context, jobID string, status string, message string, logs *jobLog) error {
	if err := p.queue.MarkFailed(ctx, jobID, status, message, logs.String()); err != nil {
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	return nil
}

// terminalStatus maps a sandbox failure's taxonomy kind to the job status
// QueueStore.MarkFailed accepts.
func terminalStatus(kind models.ErrorKind) string {
	switch kind {
	case models.ErrTimeout:
		return models.JobStatusTimeout
	case models.ErrCancelled:
		return models.JobStatusKilled
	default:
		return models.JobStatusFailed
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// jobLog accumulates timestamped entries the same way
// job_processor.py's all_logs list does, flushed to the job row on every
// terminal or progress transition.
type jobLog struct {
	lines []string
}

func newJobLog() *jobLog { return &jobLog{} }

func (l *jobLog) add(message string) {
	l.lines = append(l.lines, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05.000"), message))
}

func (l *jobLog) String() string {
	return strings.Join(l.lines, "\n")
}
