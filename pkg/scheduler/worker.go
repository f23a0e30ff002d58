package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/wehubfusion/partbench/pkg/errors"
	"github.com/wehubfusion/partbench/pkg/harness"
)

// Reply is the single JSON line a worker prints when its task ends.
type Reply struct {
	OK      bool               `json:"ok"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"error,omitempty"`
	Cause   string             `json:"cause,omitempty"`
	Record  *harness.RunRecord `json:"record,omitempty"`
}

// RunFunc executes one task inside a worker.
type RunFunc func(ctx context.Context, task harness.Task) (*harness.RunRecord, error)

// ServeWorker reads one task from r, runs it and writes the reply to w.
// Task failures travel in the reply; the returned error only reports a
// broken protocol exchange.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer, run RunFunc) error {
	var task harness.Task
	if err := json.NewDecoder(r).Decode(&task); err != nil {
		return writeReply(w, failure(errors.InvalidInput("decode task: %v", err)))
	}

	rec, err := run(ctx, task)
	if err != nil {
		return writeReply(w, failure(err))
	}
	return writeReply(w, Reply{OK: true, Record: rec})
}

func failure(err error) Reply {
	reply := Reply{Message: err.Error()}
	if e, ok := errors.AsError(err); ok {
		reply.Code = e.Code
		reply.Message = e.Message
		if e.Err != nil {
			reply.Cause = e.Err.Error()
		}
	}
	return reply
}

func writeReply(w io.Writer, reply Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	// a leading newline separates the reply from unterminated engine output
	if _, err := fmt.Fprintf(w, "\n%s\n", data); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// decodeReply parses the last non-empty line of a worker's stdout.
func decodeReply(out []byte) (Reply, error) {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	last := bytes.TrimSpace(lines[len(lines)-1])
	if len(last) == 0 {
		return Reply{}, fmt.Errorf("empty worker output")
	}
	var reply Reply
	if err := json.Unmarshal(last, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

func (r Reply) err() error {
	if r.Code == "" {
		return fmt.Errorf("%s", r.Message)
	}
	var cause error
	if r.Cause != "" {
		cause = fmt.Errorf("%s", r.Cause)
	}
	return errors.NewError(r.Code, r.Message, cause)
}
