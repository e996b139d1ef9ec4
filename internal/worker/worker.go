package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/andresmejia3/uncanny/internal/utils" // Using the SafeCommand wrapper
	"github.com/pkg/errors"
)

// Response status bytes written by the Python side.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// ErrWorkerDied means the process stopped answering. The worker cannot be reused.
var ErrWorkerDied = errors.New("python worker died")

// Config selects the interpreter and script an engine runs.
type Config struct {
	Python      string
	Script      string
	ReadTimeout time.Duration
}

type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	readTimeout time.Duration
}

func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect sends img as PNG and returns the landmarks of every face found.
func (w *PythonWorker) Detect(ctx context.Context, img image.Image) ([]landmarks.Set, error) {
	var buf bytes.Buffer
	if err := raster.Encode(&buf, img, "png"); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	resp, err := w.communicateWithDeadline(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func (w *PythonWorker) communicateWithDeadline(ctx context.Context, data []byte) ([]byte, error) {
	if w.readTimeout <= 0 && ctx.Done() == nil {
		resp, err := w.Communicate(data)
		if err != nil {
			return nil, w.died(err)
		}
		return resp, nil
	}

	type result struct {
		resp []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := w.Communicate(data)
		done <- result{resp, err}
	}()

	var timeout <-chan time.Time
	if w.readTimeout > 0 {
		timer := time.NewTimer(w.readTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, w.died(res.err)
		}
		return res.resp, nil
	case <-timeout:
		w.kill()
		return nil, w.died(fmt.Errorf("no response after %s", w.readTimeout))
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	}
}

// CrashError is returned when a worker stops answering. It matches ErrWorkerDied
// and keeps the process handle so its captured stderr can be shown.
type CrashError struct {
	ID  int
	Cmd *utils.SafeCommand
	err error
}

func (e *CrashError) Error() string { return e.err.Error() }

func (e *CrashError) Unwrap() error { return e.err }

// CrashLogs returns the command of the worker that caused err, or nil.
func CrashLogs(err error) *utils.SafeCommand {
	var crash *CrashError
	if errors.As(err, &crash) {
		return crash.Cmd
	}
	return nil
}

func (w *PythonWorker) died(err error) error {
	msg := fmt.Sprintf("worker %d", w.ID)
	if w.Cmd != nil && w.Cmd.Stderr != nil && w.Cmd.Stderr.Len() > 0 {
		msg += ": " + lastLine(w.Cmd.Stderr.String())
	}
	return &CrashError{
		ID:  w.ID,
		Cmd: w.Cmd,
		err: errors.Wrap(errors.Wrap(ErrWorkerDied, err.Error()), msg),
	}
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
}

// decodeResponse parses [Status] followed by a JSON face list, or [MsgLen][Msg] on error.
func decodeResponse(payload []byte) ([]landmarks.Set, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty response from python worker")
	}

	switch payload[0] {
	case statusOK:
		var faces []landmarks.Set
		if err := json.Unmarshal(payload[1:], &faces); err != nil {
			return nil, errors.Wrap(err, "failed to decode landmarks")
		}
		return faces, nil
	case statusError:
		body := payload[1:]
		if len(body) < 4 {
			return nil, errors.New("truncated error from python worker")
		}
		n := binary.BigEndian.Uint32(body[:4])
		if int(n) > len(body)-4 {
			return nil, errors.New("truncated error from python worker")
		}
		return nil, errors.Errorf("python worker error: %s", body[4:4+n])
	default:
		return nil, errors.Errorf("unknown status byte %d", payload[0])
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil && w.Cmd.Cmd != nil {
		w.Cmd.Wait()
	}
}
