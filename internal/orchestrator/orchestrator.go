// Package orchestrator turns chat messages into task turns: it resolves the
// session and task, restores the checkpoint, drives the task's machine and
// persists what changed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/internal/runtime"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/aretw0/errand/pkg/ports"
)

// Apology is shown whenever a turn fails.
const Apology = "Sorry, something went wrong while working on your request. Please try again or rephrase it."

// Machines hands out a compiled machine per session and task type.
type Machines interface {
	Get(sessionID string, taskType domain.TaskType) (*runtime.Machine, error)
}

// Request is one chat message.
type Request struct {
	UserID       string           `json:"userId,omitempty"`
	Message      string           `json:"message"`
	SessionID    string           `json:"sessionId,omitempty"`
	SessionToken string           `json:"sessionToken,omitempty"`
	Location     *domain.Location `json:"location,omitempty"`
	ClientIP     string           `json:"-"`
}

// ContinueRequest answers a paused task directly.
type ContinueRequest struct {
	TaskID         string `json:"-"`
	UserInput      string `json:"userInput"`
	SelectedOption string `json:"selectedOption,omitempty"`
}

// Orchestrator owns the turn pipeline.
type Orchestrator struct {
	repo     ports.TaskRepository
	store    ports.CheckpointStore
	machines Machines
	llm      llm.Client

	locator    ports.Locator
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	publishers []ports.EventPublisher

	logger       *slog.Logger
	production   bool
	maxInputSize int
	onCheckpoint func(op string)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocator resolves first-turn location hints.
func WithLocator(l ports.Locator) Option {
	return func(o *Orchestrator) { o.locator = l }
}

// WithLocker holds "task:<id>" for the duration of every turn.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.locker = l
		o.lockTTL = ttl
	}
}

// WithPublisher mirrors every stream frame to p. It may be repeated.
func WithPublisher(p ports.EventPublisher) Option {
	return func(o *Orchestrator) { o.publishers = append(o.publishers, p) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithProduction hides raw error text from users.
func WithProduction(production bool) Option {
	return func(o *Orchestrator) { o.production = production }
}

// WithMaxInputSize bounds a message in bytes.
func WithMaxInputSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxInputSize = n
		}
	}
}

// WithCheckpointFailureObserver is called with "load" or "save" whenever the
// checkpoint store fails.
func WithCheckpointFailureObserver(fn func(op string)) Option {
	return func(o *Orchestrator) { o.onCheckpoint = fn }
}

// New creates an Orchestrator. client is only used to classify messages no
// keyword matches.
func New(repo ports.TaskRepository, store ports.CheckpointStore, machines Machines, client llm.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:         repo,
		store:        store,
		machines:     machines,
		llm:          client,
		logger:       logging.NewNop(),
		maxInputSize: DefaultMaxInputSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// turn is one resolved unit of work.
type turn struct {
	session *domain.Session
	task    *domain.Task
	guest   *domain.Guest
	message string
	hint    ports.LocationHint
}

// Handle runs one chat message to its next pause or end.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (domain.Response, error) {
	t, err := o.resolve(ctx, req)
	if err != nil {
		return o.failure(ctx, req.SessionID, "", err)
	}
	s, err := o.drive(ctx, t, nil)
	if err != nil {
		return o.failure(ctx, t.session.ID, t.task.ID, err)
	}
	resp := o.shape(t, s)
	o.publish(ctx, terminalEvent(t, s, &resp))
	return resp, nil
}

// Continue feeds input to an existing task.
func (o *Orchestrator) Continue(ctx context.Context, req ContinueRequest) (domain.Response, error) {
	msg, err := o.continueMessage(req)
	if err != nil {
		return domain.Response{}, err
	}
	task, err := o.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		return domain.Response{}, fmt.Errorf("get task %s: %w", req.TaskID, err)
	}
	session, err := o.repo.GetSession(ctx, task.SessionID)
	if err != nil {
		return domain.Response{}, fmt.Errorf("get session %s: %w", task.SessionID, err)
	}
	if !task.Open() {
		return domain.Response{
			SessionID:  session.ID,
			TaskID:     task.ID,
			Response:   "This task is already finished. Send a new message to start another one.",
			IsComplete: task.Status == domain.TaskComplete,
			Progress:   o.savedProgress(ctx, task.ID),
		}, nil
	}

	t := &turn{session: session, task: task, message: msg}
	s, err := o.drive(ctx, t, nil)
	if err != nil {
		return o.failure(ctx, session.ID, task.ID, err)
	}
	resp := o.shape(t, s)
	o.publish(ctx, terminalEvent(t, s, &resp))
	return resp, nil
}

// continueMessage folds a selected option and free text into one utterance.
func (o *Orchestrator) continueMessage(req ContinueRequest) (string, error) {
	input, err := SanitizeInput(req.UserInput, o.maxInputSize)
	if err != nil {
		return "", err
	}
	option, err := SanitizeInput(req.SelectedOption, o.maxInputSize)
	if err != nil {
		return "", err
	}
	switch {
	case option != "" && input != "":
		return option + ": " + input, nil
	case option != "":
		return option, nil
	case input != "":
		return input, nil
	}
	return "", fmt.Errorf("%w: userInput or selectedOption is required", domain.ErrInvalidInput)
}

// resolve finds or creates the session and task a message belongs to.
func (o *Orchestrator) resolve(ctx context.Context, req Request) (*turn, error) {
	msg, err := SanitizeInput(req.Message, o.maxInputSize)
	if err != nil {
		return nil, err
	}
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}
	t := &turn{message: msg, hint: ports.LocationHint{Location: req.Location, ClientIP: req.ClientIP}}

	if t.session, t.guest, err = o.session(ctx, req); err != nil {
		return nil, err
	}
	if t.task, err = o.task(ctx, t.session, msg); err != nil {
		return nil, err
	}
	return t, nil
}

func (o *Orchestrator) session(ctx context.Context, req Request) (*domain.Session, *domain.Guest, error) {
	if req.SessionID != "" {
		sess, err := o.repo.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("get session %s: %w", req.SessionID, err)
		}
		return sess, nil, nil
	}

	userID := req.UserID
	var guest *domain.Guest
	switch {
	case userID != "":
	case req.SessionToken != "":
		g, err := o.repo.ResolveGuest(ctx, req.SessionToken)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve guest: %w", err)
		}
		userID = g.UserID
	default:
		g, err := o.repo.CreateGuest(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create guest: %w", err)
		}
		guest = g
		userID = g.UserID
	}

	sess, err := o.repo.CreateSession(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	o.logger.Info("session created", "session_id", sess.ID, "guest", guest != nil)
	return sess, guest, nil
}

// task routes msg to an open task of the classified type, or opens one.
func (o *Orchestrator) task(ctx context.Context, sess *domain.Session, msg string) (*domain.Task, error) {
	taskType, ok := KeywordIntent(msg)
	if !ok {
		active, err := o.repo.LatestOpenTask(ctx, sess.ID)
		switch {
		case err == nil:
			return active, nil
		case !errors.Is(err, domain.ErrTaskNotFound):
			return nil, fmt.Errorf("find active task: %w", err)
		}
		taskType = o.classify(ctx, msg)
	}

	open, err := o.repo.FindOpenTask(ctx, sess.ID, taskType)
	switch {
	case err == nil:
		return open, nil
	case !errors.Is(err, domain.ErrTaskNotFound):
		return nil, fmt.Errorf("find open %s task: %w", taskType, err)
	}
	task, err := o.repo.CreateTask(ctx, sess.ID, taskType)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	o.logger.Info("task created", "session_id", sess.ID, "task_id", task.ID, "task_type", taskType)
	return task, nil
}

// drive restores the task, runs its machine and persists the result. A
// canceled context returns before anything is saved.
func (o *Orchestrator) drive(ctx context.Context, t *turn, visit func(runtime.Transition) error) (*domain.AgentState, error) {
	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, "task:"+t.task.ID, o.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock task %s: %w", t.task.ID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("unlock failed", "task_id", t.task.ID, "err", err)
			}
		}()
	}

	machine, err := o.machines.Get(t.session.ID, t.task.Type)
	if err != nil {
		return nil, fmt.Errorf("build %s machine: %w", t.task.Type, err)
	}

	s, err := o.restore(ctx, t)
	if err != nil {
		return nil, err
	}
	s.UserMessage = t.message

	logger := o.logger.With("session_id", t.session.ID, "task_id", t.task.ID)
	logger.Debug("turn started", "phase", s.CurrentPhase)
	if err := machine.Walk(ctx, s, machine.EntryFor(s.CurrentPhase), visit); err != nil {
		return nil, err
	}
	logger.Debug("turn finished", "phase", s.CurrentPhase, "paused", s.Paused())

	o.persist(ctx, t.task, s)
	return s, nil
}

// restore loads the saved state, or seeds a fresh one on the first turn.
func (o *Orchestrator) restore(ctx context.Context, t *turn) (*domain.AgentState, error) {
	base := domain.NewAgentState(t.session.ID, t.task.ID, t.task.Type)
	base.UserID = t.session.UserID

	cp, err := o.store.Load(ctx, t.task.ID)
	switch {
	case err == nil:
		s, err := domain.Restore(base, cp)
		if err != nil {
			return nil, fmt.Errorf("restore task %s: %w", t.task.ID, err)
		}
		if s.CurrentPhase == domain.PhaseError {
			s.CurrentPhase = domain.PhaseClarification
		}
		return s, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case !errors.Is(err, domain.ErrCheckpointNotFound):
		o.logger.Warn("checkpoint load failed, starting fresh", "task_id", t.task.ID, "err", err)
		o.checkpointFailed("load")
	}

	if loc := o.locate(ctx, t.hint); loc != nil {
		base.GatheredInfo.Location = loc
	}
	return base, nil
}

func (o *Orchestrator) locate(ctx context.Context, hint ports.LocationHint) *domain.Location {
	if hint.Location == nil && hint.ClientIP == "" {
		return nil
	}
	if o.locator == nil {
		return hint.Location
	}
	loc, err := o.locator.Locate(ctx, hint)
	if err != nil {
		o.logger.Warn("locate failed", "err", err)
		return hint.Location
	}
	return loc
}

// persist saves the checkpoint and task status. Failures are logged only:
// the user still gets the turn's answer.
func (o *Orchestrator) persist(ctx context.Context, task *domain.Task, s *domain.AgentState) {
	if err := o.store.Save(ctx, domain.Fold(s, domain.Progress(s))); err != nil {
		o.logger.Error("checkpoint save failed", "task_id", task.ID, "err", err)
		o.checkpointFailed("save")
	}

	task.AwaitingInput = s.Paused()
	if s.CurrentPhase == domain.PhaseComplete {
		task.Status = domain.TaskComplete
	}
	if err := o.repo.UpdateTask(ctx, task); err != nil {
		o.logger.Error("task update failed", "task_id", task.ID, "err", err)
	}
}

func (o *Orchestrator) checkpointFailed(op string) {
	if o.onCheckpoint != nil {
		o.onCheckpoint(op)
	}
}

func (o *Orchestrator) savedProgress(ctx context.Context, taskID string) float64 {
	cp, err := o.store.Load(ctx, taskID)
	if err != nil {
		return 0
	}
	return cp.Progress
}

// shape turns the state after a turn into the caller's response.
func (o *Orchestrator) shape(t *turn, s *domain.AgentState) domain.Response {
	resp := domain.Response{
		SessionID: t.session.ID,
		TaskID:    t.task.ID,
		Progress:  domain.Progress(s),
	}
	if t.guest != nil {
		resp.UserID = t.guest.UserID
		resp.SessionToken = t.guest.Token
	}

	switch {
	case s.CurrentPhase == domain.PhaseError || s.Error != "":
		resp.Response = o.apology(s.Error)
		resp.RequiresInput = true
		resp.Progress = 0
	case s.Paused():
		resp.Response = s.HumanInputRequest.Question
		resp.RequiresInput = true
		resp.InputRequest = s.HumanInputRequest
	case s.CurrentPhase == domain.PhaseComplete:
		resp.Response = s.FinalResponse
		resp.IsComplete = true
	default:
		resp.Response = "I'm still working on this. Send another message to continue."
	}
	return resp
}

func (o *Orchestrator) apology(detail string) string {
	if o.production || detail == "" {
		return Apology
	}
	return Apology + "\n\nError: " + detail
}

// failure maps err to the caller's outcome. Not-found, bad input and
// cancellation are returned; anything else becomes a graceful apology.
func (o *Orchestrator) failure(ctx context.Context, sessionID, taskID string, err error) (domain.Response, error) {
	if Surfaced(err) || ctx.Err() != nil {
		return domain.Response{}, err
	}
	o.logger.Error("turn failed", "session_id", sessionID, "task_id", taskID, "err", err)
	resp := domain.Response{
		SessionID:     sessionID,
		TaskID:        taskID,
		Response:      o.apology(err.Error()),
		RequiresInput: true,
	}
	o.publish(ctx, domain.StreamEvent{Type: domain.StreamError, TaskID: taskID, Error: err.Error()})
	return resp, nil
}

// Surfaced reports whether err is returned to callers instead of being
// turned into an apology.
func Surfaced(err error) bool {
	return errors.Is(err, domain.ErrTaskNotFound) ||
		errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (o *Orchestrator) publish(ctx context.Context, evt domain.StreamEvent) {
	if evt.TaskID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, p := range o.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			o.logger.Warn("publish failed", "task_id", evt.TaskID, "type", evt.Type, "err", err)
		}
	}
}
