package sandbox

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/bobmcallan/transformd/internal/models"
	"go.starlark.net/starlark"
)

// RunnerArg is the hidden first argument cmd/transformd's main() checks
// for to dispatch into Run instead of starting the supervisor — the
// binary re-exec trick that gives the sandbox a freshly spawned OS
// process per Execute call (one per chunk on the chunked path) without a
// second build artifact.
const RunnerArg = "__sandbox_runner__"

// Run is the child process entrypoint: read a gob-encoded request off in,
// execute the transform, and write a gob-encoded response to out. Every
// failure of the transform itself is carried inside the response; Run
// returns an error only when the request cannot be decoded or the
// response cannot be encoded.
func Run(in io.Reader, out io.Writer) error {
	var req request
	if err := gob.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode sandbox request: %w", err)
	}

	resp := execute(req)

	if err := gob.NewEncoder(out).Encode(&resp); err != nil {
		return fmt.Errorf("encode sandbox response: %w", err)
	}
	return nil
}

func execute(req request) response {
	wrapped, cerr := compile(req.Code)
	if cerr != nil {
		return response{Success: false, Kind: cerr.Kind(), Message: cerr.Message, Traceback: cerr.Traceback}
	}

	input := newStarlarkTable(fromWireTable(req.Table))
	thread := &starlark.Thread{Name: "transform"}

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "<transform>", wrapped, predeclared(input))
	if err != nil {
		return runtimeErrorResponse(err)
	}

	fn, ok := globals["transform"]
	if !ok {
		return response{
			Success: false,
			Kind:    models.ErrRuntimeError,
			Message: "no transform(df) function defined after compilation",
		}
	}

	result, err := starlark.Call(thread, fn, starlark.Tuple{input}, nil)
	if err != nil {
		return runtimeErrorResponse(err)
	}

	out, ok := result.(*starlarkTable)
	if !ok {
		return response{
			Success: false,
			Kind:    models.ErrBadReturnType,
			Message: fmt.Sprintf("transform() must return df, got %s", result.Type()),
		}
	}

	return response{
		Success:  true,
		Table:    toWireTable(out.table),
		RowCount: out.table.RowCount(),
		Columns:  out.table.ColumnNames(),
	}
}

func runtimeErrorResponse(err error) response {
	resp := response{Success: false, Kind: models.ErrRuntimeError, Message: err.Error()}
	if evalErr, ok := err.(*starlark.EvalError); ok {
		resp.Traceback = evalErr.Backtrace()
	}
	return resp
}
