package processor

import (
	"context"
	"fmt"
	"testing"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/models"
	"github.com/stretchr/testify/require"
)

// fakeQueue is an in-memory interfaces.QueueStore for processor tests.
type fakeQueue struct {
	jobs      map[string]*models.Job
	cancelled map[string]bool
}

func newFakeQueue(jobs ...*models.Job) *fakeQueue {
	q := &fakeQueue{jobs: map[string]*models.Job{}, cancelled: map[string]bool{}}
	for _, j := range jobs {
		q.jobs[j.ID] = j
	}
	return q
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *models.Job) error { return nil }

func (q *fakeQueue) FetchPending(ctx context.Context, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (q *fakeQueue) MarkRunning(ctx context.Context, id string) (bool, error) {
	job, ok := q.jobs[id]
	if !ok {
		return false, fmt.Errorf("job %s not found", id)
	}
	if job.Status != models.JobStatusPending {
		return false, nil
	}
	job.Status = models.JobStatusRunning
	return true, nil
}

func (q *fakeQueue) MarkCompleted(ctx context.Context, id string, rows int64, logText string) error {
	job := q.jobs[id]
	job.Status = models.JobStatusCompleted
	job.RowsProcessed = rows
	job.Logs = logText
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, id string, kind string, errMsg string, logText string) error {
	job := q.jobs[id]
	job.Status = kind
	job.ErrorMessage = errMsg
	job.Logs = logText
	return nil
}

func (q *fakeQueue) UpdateProgress(ctx context.Context, id string, rows int64, logText string) error {
	job := q.jobs[id]
	job.RowsProcessed = rows
	job.Logs = logText
	return nil
}

func (q *fakeQueue) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, ok := q.jobs[id]
	if !ok {
		return nil, nil
	}
	return job, nil
}

func (q *fakeQueue) IsCancelled(ctx context.Context, id string) (bool, error) {
	return q.cancelled[id], nil
}

func (q *fakeQueue) ResetOrphaned(ctx context.Context, policy interfaces.OrphanPolicy) (int, error) {
	return 0, nil
}

// fakeScripts is an in-memory interfaces.ScriptStore for processor tests.
type fakeScripts struct {
	scripts map[string]*models.Script
}

func newFakeScripts(scripts ...*models.Script) *fakeScripts {
	s := &fakeScripts{scripts: map[string]*models.Script{}}
	for _, sc := range scripts {
		s.scripts[sc.ID] = sc
	}
	return s
}

func (s *fakeScripts) Get(ctx context.Context, id string) (*models.Script, error) {
	sc, ok := s.scripts[id]
	if !ok {
		return nil, nil
	}
	return sc, nil
}

func (s *fakeScripts) Put(ctx context.Context, script *models.Script) error {
	s.scripts[script.ID] = script
	return nil
}

func (s *fakeScripts) Delete(ctx context.Context, id string) error {
	delete(s.scripts, id)
	return nil
}

// fakeData is an in-memory interfaces.DataStore for processor tests: tables
// are held as plain models.Table values keyed by name.
type fakeData struct {
	tables map[string]*models.Table
}

func newFakeData() *fakeData {
	return &fakeData{tables: map[string]*models.Table{}}
}

func (d *fakeData) ListTables(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(d.tables))
	for n := range d.tables {
		names = append(names, n)
	}
	return names, nil
}

func (d *fakeData) Schema(ctx context.Context, name string) ([]interfaces.ColumnSchema, error) {
	return nil, nil
}

func (d *fakeData) RowCount(ctx context.Context, name string) (int64, error) {
	t, ok := d.tables[name]
	if !ok {
		return 0, fmt.Errorf("table %s not found", name)
	}
	return int64(t.RowCount()), nil
}

func (d *fakeData) Preview(ctx context.Context, name string, limit int) (int64, *models.Table, error) {
	return 0, nil, nil
}

func (d *fakeData) ReadChunk(ctx context.Context, name string, limit, offset int) (*models.Table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %s not found", name)
	}
	end := offset + limit
	if end > t.RowCount() {
		end = t.RowCount()
	}
	if offset >= t.RowCount() {
		return &models.Table{Columns: emptyLike(t)}, nil
	}
	mask := make([]bool, t.RowCount())
	for i := offset; i < end; i++ {
		mask[i] = true
	}
	return t.SelectRows(mask), nil
}

func emptyLike(t *models.Table) []*models.Column {
	cols := make([]*models.Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = &models.Column{Name: c.Name, Type: c.Type}
	}
	return cols
}

func (d *fakeData) ReadTable(ctx context.Context, name string) (*models.Table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %s not found", name)
	}
	return t.Clone(), nil
}

func (d *fakeData) WriteTable(ctx context.Context, table *models.Table, name string, mode interfaces.WriteMode) (int64, error) {
	existing, exists := d.tables[name]
	switch mode {
	case interfaces.WriteFail:
		if exists {
			return 0, fmt.Errorf("table %s already exists", name)
		}
		d.tables[name] = table.Clone()
	case interfaces.WriteAppend:
		if !exists {
			d.tables[name] = table.Clone()
		} else {
			for _, col := range table.Columns {
				dst := existing.Column(col.Name)
				dst.Data = append(dst.Data, col.Data...)
			}
		}
	default: // WriteReplace
		d.tables[name] = table.Clone()
	}
	return int64(table.RowCount()), nil
}

func (d *fakeData) TableExists(ctx context.Context, name string) (bool, error) {
	_, ok := d.tables[name]
	return ok, nil
}

// fakeSandbox is an interfaces.Sandboxer stub that runs a caller-supplied
// function instead of spawning a real child process.
type fakeSandbox struct {
	run func(table *models.Table) *models.ExecutionResult
}

func (s *fakeSandbox) Execute(ctx context.Context, code string, table *models.Table) *models.ExecutionResult {
	return s.run(table)
}

func doubleQty(table *models.Table) *models.ExecutionResult {
	out := table.Clone()
	col := out.Column("qty")
	for i, v := range col.Data {
		col.Data[i] = v.(int64) * 2
	}
	return &models.ExecutionResult{Success: true, Table: out, RowCount: out.RowCount(), Columns: out.ColumnNames()}
}

func sampleSourceTable(rows int) *models.Table {
	ids := make([]any, rows)
	qty := make([]any, rows)
	for i := 0; i < rows; i++ {
		ids[i] = int64(i)
		qty[i] = int64(1)
	}
	return &models.Table{Columns: []*models.Column{
		{Name: "id", Type: models.ColumnInt64, Data: ids},
		{Name: "qty", Type: models.ColumnInt64, Data: qty},
	}}
}

func testConfig(chunkSize int) *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Worker.ChunkSize = chunkSize
	return cfg
}

func TestProcessFullTableSucceeds(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "script1", Status: models.JobStatusPending, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts(&models.Script{ID: "script1", CodeText: `df["qty"] = df["qty"] * 2`})
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(5)
	sandbox := &fakeSandbox{run: doubleQty}

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(100))
	err := p.Process(context.Background(), "job1")
	require.NoError(t, err)

	job := queue.jobs["job1"]
	require.Equal(t, models.JobStatusCompleted, job.Status)
	require.Equal(t, int64(5), job.RowsProcessed)

	dst := data.tables["dst"]
	require.Equal(t, []any{int64(2), int64(2), int64(2), int64(2), int64(2)}, dst.Column("qty").Data)
}

func TestProcessCancelledFullTableMarksJobKilled(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "script1", Status: models.JobStatusPending, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts(&models.Script{ID: "script1", CodeText: `df["qty"] = df["qty"] * 2`})
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(5)
	sandbox := &fakeSandbox{run: doubleQty}
	queue.cancelled["job1"] = true

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(100))
	require.NoError(t, p.Process(context.Background(), "job1"))

	job := queue.jobs["job1"]
	require.Equal(t, models.JobStatusKilled, job.Status)
	_, wrote := data.tables["dst"]
	require.False(t, wrote)
}

func TestProcessChunkedTableSucceeds(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "script1", Status: models.JobStatusPending, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts(&models.Script{ID: "script1", CodeText: `df["qty"] = df["qty"] * 2`})
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(10)
	sandbox := &fakeSandbox{run: doubleQty}

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(3))
	err := p.Process(context.Background(), "job1")
	require.NoError(t, err)

	job := queue.jobs["job1"]
	require.Equal(t, models.JobStatusCompleted, job.Status)
	require.Equal(t, int64(10), job.RowsProcessed)
	require.Equal(t, 10, data.tables["dst"].RowCount())
}

func TestProcessAlreadyClaimedJobIsNoOp(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "script1", Status: models.JobStatusRunning, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts(&models.Script{ID: "script1", CodeText: `return df`})
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(1)
	sandbox := &fakeSandbox{run: doubleQty}

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(100))
	err := p.Process(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, models.JobStatusRunning, queue.jobs["job1"].Status)
}

func TestProcessSandboxFailureMarksJobFailed(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "script1", Status: models.JobStatusPending, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts(&models.Script{ID: "script1", CodeText: `bad`})
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(1)
	sandbox := &fakeSandbox{run: func(table *models.Table) *models.ExecutionResult {
		return &models.ExecutionResult{Success: false, Kind: models.ErrRuntimeError, Message: "boom"}
	}}

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(100))
	err := p.Process(context.Background(), "job1")
	require.NoError(t, err)

	job := queue.jobs["job1"]
	require.Equal(t, models.JobStatusFailed, job.Status)
	require.Equal(t, "boom", job.ErrorMessage)
}

func TestProcessTimeoutMapsToTimeoutStatus(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "script1", Status: models.JobStatusPending, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts(&models.Script{ID: "script1", CodeText: `bad`})
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(1)
	sandbox := &fakeSandbox{run: func(table *models.Table) *models.ExecutionResult {
		return &models.ExecutionResult{Success: false, Kind: models.ErrTimeout, Message: "too slow"}
	}}

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(100))
	require.NoError(t, p.Process(context.Background(), "job1"))
	require.Equal(t, models.JobStatusTimeout, queue.jobs["job1"].Status)
}

func TestProcessCancelledMidChunkMarksJobKilled(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "script1", Status: models.JobStatusPending, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts(&models.Script{ID: "script1", CodeText: `df["qty"] = df["qty"] * 2`})
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(9)
	chunks := 0
	// Cancel while the first chunk is in the sandbox: the cancellation check
	// before the second chunk sees it, so only the first chunk is written.
	sandbox := &fakeSandbox{run: func(table *models.Table) *models.ExecutionResult {
		chunks++
		queue.cancelled["job1"] = true
		return doubleQty(table)
	}}
	queue.cancelled["job1"] = false

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(3))

	require.NoError(t, p.Process(context.Background(), "job1"))
	require.Equal(t, 1, chunks)
	require.Equal(t, models.JobStatusKilled, queue.jobs["job1"].Status)
	require.Equal(t, 3, data.tables["dst"].RowCount())
}

func TestProcessMissingScriptMarksJobFailed(t *testing.T) {
	queue := newFakeQueue(&models.Job{ID: "job1", ScriptID: "missing", Status: models.JobStatusPending, SourceTable: "src", DestinationTable: "dst"})
	scripts := newFakeScripts()
	data := newFakeData()
	data.tables["src"] = sampleSourceTable(1)
	sandbox := &fakeSandbox{run: doubleQty}

	p := New(queue, scripts, data, sandbox, common.NewSilentLogger(), testConfig(100))
	require.NoError(t, p.Process(context.Background(), "job1"))
	require.Equal(t, models.JobStatusFailed, queue.jobs["job1"].Status)
}
