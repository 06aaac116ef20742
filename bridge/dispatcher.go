package bridge

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/evalbridge/executor"
	"github.com/caffeineduck/evalbridge/protocol"
	"go.uber.org/zap"
)

// Evaluator is the execution context a Dispatcher routes requests to.
// *executor.Namespace implements it.
type Evaluator interface {
	Exec(ctx context.Context, code string) executor.Result
	Import(ctx context.Context, module string) executor.Result
}

// State is the lifecycle state of a Dispatcher.
type State int32

const (
	StateRunning State = iota
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Dispatcher turns one request line into exactly one response. It never
// returns an error: evaluation failures and panics become ERROR responses.
type Dispatcher struct {
	eval   Evaluator
	logger *zap.Logger
	output io.Writer
	state  atomic.Int32
}

// NewDispatcher returns a running Dispatcher. Anything evaluated code
// prints is copied to output, which may be nil.
func NewDispatcher(eval Evaluator, logger *zap.Logger, output io.Writer) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if output == nil {
		output = io.Discard
	}
	return &Dispatcher{eval: eval, logger: logger, output: output}
}

func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Dispatch handles one request. stop is true only for EXIT, after which
// every further request is refused.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (resp protocol.Response, stop bool) {
	if d.State() == StateStopping {
		return protocol.Failure(ErrStopping.Error()), false
	}

	req := protocol.Parse(text)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic", zap.Stringer("action", req.Action), zap.Any("panic", r))
			resp = protocol.Failure(fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()))
			stop = false
		}
		d.logger.Debug("dispatched",
			zap.Stringer("action", req.Action),
			zap.Stringer("status", resp.Status),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	switch req.Action {
	case protocol.ActionExit:
		d.state.Store(int32(StateStopping))
		return protocol.Ack(), true

	case protocol.ActionImport:
		res := d.eval.Import(ctx, req.Payload)
		if res.Error != nil {
			return protocol.Failure(executor.Trace(res.Error)), false
		}
		return protocol.Ack(), false

	case protocol.ActionPing:
		return protocol.PongResponse(), false

	case protocol.ActionExec:
		res := d.eval.Exec(ctx, req.Payload)
		if res.Output != "" {
			if _, err := io.WriteString(d.output, res.Output); err != nil {
				d.logger.Debug("forward output failed", zap.Error(err))
			}
		}
		if res.Error != nil {
			return protocol.Failure(executor.Trace(res.Error)), false
		}
		if res.Bound {
			return protocol.Result(res.Value), false
		}
		return protocol.Ack(), false

	default:
		return protocol.Failure(fmt.Sprintf("unknown action %s", req.Action)), false
	}
}
