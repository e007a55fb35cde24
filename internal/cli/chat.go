package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/errand/internal/orchestrator"
	"github.com/aretw0/errand/internal/presentation/tui"
	"github.com/aretw0/errand/pkg/domain"
)

// Conversation is the part of the orchestrator the chat loop drives.
type Conversation interface {
	Stream(ctx context.Context, req orchestrator.Request, emit orchestrator.Emitter) error
	Continue(ctx context.Context, req orchestrator.ContinueRequest) (domain.Response, error)
}

// ChatOptions configures the chat loop.
type ChatOptions struct {
	In  io.Reader
	Out io.Writer
	// Render formats answers. Nil prints them unchanged.
	Render tui.Renderer
	// Progress prints one line per node transition.
	Progress bool
	// Location is sent with the first message only.
	Location string
	UserID   string
}

var exitWords = map[string]bool{"exit": true, "quit": true, "/exit": true, "/quit": true}

type chatSession struct {
	conv Conversation
	opts ChatOptions

	sessionID string
	userID    string
	token     string
	pending   *domain.Response
}

// Chat reads one message per line until EOF, an exit word or ctx ends. A
// task waiting for input receives the next line as its answer.
func Chat(ctx context.Context, conv Conversation, opts ChatOptions) error {
	if opts.Render == nil {
		opts.Render = tui.Plain
	}
	cs := &chatSession{conv: conv, opts: opts, userID: opts.UserID}

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()

	for {
		fmt.Fprint(opts.Out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.Out)
			return handleExecutionError(ctx.Err())
		case err := <-readErr:
			fmt.Fprintln(opts.Out)
			return handleExecutionError(err)
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if exitWords[strings.ToLower(line)] {
			printSystemMessage(opts.Out, "Bye!")
			return nil
		}

		resp, err := cs.turn(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return handleExecutionError(ctx.Err())
			}
			printSystemMessage(opts.Out, "Error: %v", err)
			if errors.Is(err, domain.ErrTaskNotFound) {
				cs.pending = nil
			}
			continue
		}
		cs.show(resp)
	}
}

func (cs *chatSession) turn(ctx context.Context, line string) (domain.Response, error) {
	if p := cs.pending; p != nil && p.RequiresInput && p.TaskID != "" {
		req := orchestrator.ContinueRequest{TaskID: p.TaskID, UserInput: line}
		if opt, ok := matchOption(p.InputRequest, line); ok {
			req = orchestrator.ContinueRequest{TaskID: p.TaskID, SelectedOption: opt}
		}
		return cs.conv.Continue(ctx, req)
	}

	req := orchestrator.Request{Message: line, SessionID: cs.sessionID}
	if cs.sessionID == "" {
		req.UserID, req.SessionToken = cs.userID, cs.token
		if cs.opts.Location != "" {
			req.Location = &domain.Location{Address: cs.opts.Location}
		}
	}

	var final *domain.Response
	err := cs.conv.Stream(ctx, req, func(evt domain.StreamEvent) error {
		switch evt.Type {
		case domain.StreamSession:
			cs.sessionID, cs.userID, cs.token = evt.SessionID, evt.UserID, evt.SessionToken
			printSystemMessage(cs.opts.Out, "Signed in as guest %s.", evt.UserID)
		case domain.StreamProgress:
			if cs.opts.Progress && evt.Data != nil {
				fmt.Fprintln(cs.opts.Out, tui.Faint(progressLine(evt)))
			}
		case domain.StreamComplete, domain.StreamError:
			final = evt.Response
		}
		return nil
	})
	if err != nil {
		return domain.Response{}, err
	}
	if final == nil {
		return domain.Response{}, errors.New("stream ended without a result")
	}
	return *final, nil
}

func (cs *chatSession) show(resp domain.Response) {
	if resp.SessionID != "" {
		cs.sessionID = resp.SessionID
	}
	cs.pending = nil
	if resp.RequiresInput {
		cs.pending = &resp
	}

	out, err := cs.opts.Render(resp.Response)
	if err != nil {
		out, _ = tui.Plain(resp.Response)
	}
	fmt.Fprint(cs.opts.Out, out)

	if ir := resp.InputRequest; ir != nil && len(ir.Options) > 0 {
		fmt.Fprintf(cs.opts.Out, "Options: %s\n", strings.Join(ir.Options, " | "))
	}
	if resp.IsComplete {
		printSystemMessage(cs.opts.Out, "Task %s complete.", resp.TaskID)
	}
}

func matchOption(ir *domain.HumanInputRequest, line string) (string, bool) {
	if ir == nil {
		return "", false
	}
	for _, opt := range ir.Options {
		if strings.EqualFold(opt, line) {
			return opt, true
		}
	}
	return "", false
}

func progressLine(evt domain.StreamEvent) string {
	d := evt.Data
	line := fmt.Sprintf("  · %s (%.0f%%)", d.Phase, d.Progress)
	if d.StepIndex != nil && d.TotalSteps != nil {
		line += fmt.Sprintf(" step %d/%d", min(*d.StepIndex, *d.TotalSteps), *d.TotalSteps)
	}
	return line
}
