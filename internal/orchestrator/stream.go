package orchestrator

import (
	"context"

	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/domain"
)

// Emitter receives stream frames in order. An error stops the turn.
type Emitter func(domain.StreamEvent) error

// Stream is Handle with one progress frame per node transition. A session
// frame comes first when a guest was minted, and exactly one complete or
// error frame ends the stream unless ctx was canceled or emit failed.
// Not-found and bad-input errors are returned without frames.
func (o *Orchestrator) Stream(ctx context.Context, req Request, emit Emitter) error {
	t, err := o.resolve(ctx, req)
	if err != nil {
		if Surfaced(err) || ctx.Err() != nil {
			return err
		}
		return o.streamFailure(ctx, req.SessionID, "", err, emit)
	}

	if t.guest != nil {
		if err := emit(domain.StreamEvent{
			Type:              domain.StreamSession,
			TaskID:            t.task.ID,
			SessionID:         t.session.ID,
			UserID:            t.guest.UserID,
			SessionToken:      t.guest.Token,
			IsNewGuestSession: true,
		}); err != nil {
			return err
		}
	}

	// A failed emit means the client is gone; nothing more is written to it.
	var emitErr error
	visit := func(tr runtime.Transition) error {
		evt := progressEvent(t.task.ID, tr)
		o.publish(ctx, evt)
		if err := emit(evt); err != nil {
			emitErr = err
			return err
		}
		return nil
	}
	s, err := o.drive(ctx, t, visit)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if emitErr != nil {
			return emitErr
		}
		if Surfaced(err) {
			return err
		}
		return o.streamFailure(ctx, t.session.ID, t.task.ID, err, emit)
	}

	resp := o.shape(t, s)
	evt := terminalEvent(t, s, &resp)
	o.publish(ctx, evt)
	return emit(evt)
}

// terminalEvent ends a turn: error when the machine stopped on an error,
// complete otherwise.
func terminalEvent(t *turn, s *domain.AgentState, resp *domain.Response) domain.StreamEvent {
	if s.Error != "" {
		return domain.StreamEvent{Type: domain.StreamError, TaskID: t.task.ID, SessionID: t.session.ID, Response: resp, Error: resp.Response}
	}
	return domain.StreamEvent{Type: domain.StreamComplete, TaskID: t.task.ID, SessionID: t.session.ID, Response: resp}
}

func (o *Orchestrator) streamFailure(ctx context.Context, sessionID, taskID string, err error, emit Emitter) error {
	resp, _ := o.failure(ctx, sessionID, taskID, err)
	return emit(domain.StreamEvent{
		Type:      domain.StreamError,
		TaskID:    taskID,
		SessionID: sessionID,
		Response:  &resp,
		Error:     resp.Response,
	})
}

func progressEvent(taskID string, tr runtime.Transition) domain.StreamEvent {
	s := tr.State
	data := &domain.ProgressData{Phase: s.CurrentPhase, Progress: domain.Progress(s)}
	if n := len(s.ExecutionPlan); n > 0 {
		index := s.CurrentStepIndex
		data.StepIndex = &index
		data.TotalSteps = &n
	}
	return domain.StreamEvent{
		Type:   domain.StreamProgress,
		TaskID: taskID,
		Node:   tr.Node.String(),
		Data:   data,
	}
}
