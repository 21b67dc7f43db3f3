// Package sandbox executes a user transform script against a Table in an
// isolated child process. The script itself runs inside a deterministic
// Starlark interpreter with no file I/O, network, or reflection available
// at the language level (compiler.go, guards.go, tablevalue.go); process
// isolation (this file) and resource monitoring exist in depth against
// interpreter bugs and to bound CPU/memory, not to contain a syscall
// escape Starlark cannot produce in the first place.
package sandbox

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/models"
	"github.com/google/uuid"
	psprocess "github.com/shirou/gopsutil/v4/process"
)

const monitorInterval = 500 * time.Millisecond

// Sandbox runs transform scripts out of process.
type Sandbox struct {
	logger     *common.Logger
	config     *common.Config
	binaryPath string
}

// New builds a Sandbox that re-invokes the running binary (with
// sandbox.RunnerArg) to spawn one child process per Execute call.
func New(logger *common.Logger, config *common.Config) (*Sandbox, error) {
	binaryPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable path: %w", err)
	}
	return &Sandbox{logger: logger, config: config, binaryPath: binaryPath}, nil
}

// Execute runs code against table and returns the transformed table or a
// classified failure. It never panics and never returns a Go error — every
// outcome is carried in the returned ExecutionResult, matching the
// taxonomy JobProcessor switches on.
func (s *Sandbox) Execute(ctx context.Context, code string, table *models.Table) *models.ExecutionResult {
	scratchDir := filepath.Join(os.TempDir(), "transformd-sandbox", uuid.New().String())
	if err := os.MkdirAll(scratchDir, 0o700); err != nil {
		return errResult(models.ErrStorageError, fmt.Sprintf("create sandbox scratch dir: %v", err))
	}
	defer os.RemoveAll(scratchDir)

	var reqBuf bytes.Buffer
	if err := gob.NewEncoder(&reqBuf).Encode(&request{Code: code, Table: toWireTable(table)}); err != nil {
		return errResult(models.ErrDeserializationFailure, fmt.Sprintf("encode sandbox request: %v", err))
	}

	cmd := exec.Command(s.binaryPath, RunnerArg)
	cmd.Dir = scratchDir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"TMPDIR=" + scratchDir,
	}
	cmd.Stdin = &reqBuf
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errResult(models.ErrRuntimeError, fmt.Sprintf("start sandbox process: %v", err))
	}

	s.logger.Debug().Int("pid", cmd.Process.Pid).Str("scratch_dir", scratchDir).Msg("sandbox process started")

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	timeout := time.Duration(s.config.Sandbox.TimeoutSeconds) * time.Second
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-waitErr:
			return s.finish(cmd, err, stdout.Bytes(), stderr.String())

		case <-ctx.Done():
			s.killTree(cmd.Process.Pid)
			<-waitErr
			return errResult(models.ErrCancelled, "job cancelled")

		case <-ticker.C:
			if time.Now().After(deadline) {
				s.killTree(cmd.Process.Pid)
				<-waitErr
				return errResult(models.ErrTimeout, fmt.Sprintf("sandbox exceeded %ds timeout", s.config.Sandbox.TimeoutSeconds))
			}

			rssMB, err := s.residentMemoryMB(cmd.Process.Pid)
			if err != nil {
				continue // process likely already exiting; let waitErr settle it
			}
			if rssMB > float64(s.config.Sandbox.MaxMemoryMB) {
				s.killTree(cmd.Process.Pid)
				<-waitErr
				return errResult(models.ErrMemoryExceeded, fmt.Sprintf("sandbox exceeded %dMB memory limit (used %.1fMB)", s.config.Sandbox.MaxMemoryMB, rssMB))
			}
		}
	}
}

func (s *Sandbox) finish(cmd *exec.Cmd, waitErr error, stdout []byte, stderr string) *models.ExecutionResult {
	if waitErr != nil {
		msg := fmt.Sprintf("sandbox process exited with error: %v", waitErr)
		if stderr != "" {
			msg += "\nstderr: " + stderr
		}
		return errResult(models.ErrRuntimeError, msg)
	}

	var resp response
	if err := gob.NewDecoder(bytes.NewReader(stdout)).Decode(&resp); err != nil {
		return errResult(models.ErrDeserializationFailure, fmt.Sprintf("decode sandbox response: %v", err))
	}

	if !resp.Success {
		return &models.ExecutionResult{Success: false, Kind: resp.Kind, Message: resp.Message, Traceback: resp.Traceback}
	}

	if int64(resp.RowCount) > s.config.Sandbox.MaxOutputRows {
		return errResult(models.ErrOutputTooLarge, fmt.Sprintf("transform produced %d rows, exceeding the %d row limit", resp.RowCount, s.config.Sandbox.MaxOutputRows))
	}

	table := fromWireTable(resp.Table)
	if resp.RowCount == 0 {
		s.logger.Warn().Msg("transform() returned an empty table")
	}

	return &models.ExecutionResult{
		Success: true,
		Table:   table,
		RowCount: resp.RowCount,
		Columns:  resp.Columns,
	}
}

func (s *Sandbox) residentMemoryMB(pid int) (float64, error) {
	proc, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / (1024 * 1024), nil
}

// killTree terminates the sandbox process and any children of it.
func (s *Sandbox) killTree(pid int) {
	proc, err := psprocess.NewProcess(int32(pid))
	if err == nil {
		if children, cerr := proc.Children(); cerr == nil {
			for _, child := range children {
				child.Kill()
			}
		}
	}
	if p, err := os.FindProcess(pid); err == nil {
		p.Kill()
	}
}

func errResult(kind models.ErrorKind, message string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Kind: kind, Message: message}
}

var _ interfaces.Sandboxer = (*Sandbox)(nil)
