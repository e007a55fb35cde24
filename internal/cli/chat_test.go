package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/errand/internal/orchestrator"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	streams   []orchestrator.Request
	continues []orchestrator.ContinueRequest
}

func (f *fakeConversation) Stream(_ context.Context, req orchestrator.Request, emit orchestrator.Emitter) error {
	f.streams = append(f.streams, req)
	if req.SessionID == "" {
		if err := emit(domain.StreamEvent{Type: domain.StreamSession, SessionID: "s1", UserID: "guest-1", SessionToken: "tok"}); err != nil {
			return err
		}
	}
	if err := emit(domain.StreamEvent{Type: domain.StreamProgress, TaskID: "t1", Node: "planning", Data: &domain.ProgressData{Phase: domain.PhasePlanning, Progress: 30}}); err != nil {
		return err
	}
	return emit(domain.StreamEvent{Type: domain.StreamComplete, TaskID: "t1", SessionID: "s1", Response: &domain.Response{
		SessionID:     "s1",
		TaskID:        "t1",
		Response:      "Shall I book this itinerary?",
		RequiresInput: true,
		InputRequest:  &domain.HumanInputRequest{Type: domain.InputConfirmation, Question: "Shall I book this itinerary?", Options: []string{domain.OptionConfirm, domain.OptionRequestChanges}},
	}})
}

func (f *fakeConversation) Continue(_ context.Context, req orchestrator.ContinueRequest) (domain.Response, error) {
	f.continues = append(f.continues, req)
	if req.TaskID == "gone" {
		return domain.Response{}, domain.ErrTaskNotFound
	}
	return domain.Response{SessionID: "s1", TaskID: req.TaskID, Response: "Booked.", IsComplete: true, Progress: 100}, nil
}

func TestChat_ConfirmsPendingTask(t *testing.T) {
	conv := &fakeConversation{}
	var out bytes.Buffer
	in := strings.NewReader("plan a weekend in Porto\n" + strings.ToLower(domain.OptionConfirm) + "\nwhat next?\nquit\n")

	err := Chat(context.Background(), conv, ChatOptions{In: in, Out: &out, Progress: true, Location: "Lisbon"})
	require.NoError(t, err)

	require.Len(t, conv.streams, 2)
	first := conv.streams[0]
	require.NotNil(t, first.Location)
	assert.Equal(t, "Lisbon", first.Location.Address)
	assert.Empty(t, first.SessionID)

	second := conv.streams[1]
	assert.Equal(t, "s1", second.SessionID)
	assert.Nil(t, second.Location)

	require.Len(t, conv.continues, 1)
	assert.Equal(t, domain.OptionConfirm, conv.continues[0].SelectedOption)
	assert.Empty(t, conv.continues[0].UserInput)

	text := out.String()
	assert.Contains(t, text, "Signed in as guest guest-1.")
	assert.Contains(t, text, "planning (30%)")
	assert.Contains(t, text, "Options: ")
	assert.Contains(t, text, "Task t1 complete.")
	assert.Contains(t, text, "Bye!")
}

func TestChat_FreeTextAnswerAndMissingTask(t *testing.T) {
	conv := &fakeConversation{}
	cs := &chatSession{conv: conv, opts: ChatOptions{Out: &bytes.Buffer{}, Render: func(s string) (string, error) { return s, nil }}}

	cs.show(domain.Response{SessionID: "s1", TaskID: "gone", Response: "Where to?", RequiresInput: true})
	_, err := cs.turn(context.Background(), "somewhere warm")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	require.Len(t, conv.continues, 1)
	assert.Equal(t, "somewhere warm", conv.continues[0].UserInput)
}

func TestChat_EndsOnEOFAndCanceledContext(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Chat(context.Background(), &fakeConversation{}, ChatOptions{In: strings.NewReader(""), Out: &out}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked, w := newBlockingReader()
	defer w()
	require.NoError(t, Chat(ctx, &fakeConversation{}, ChatOptions{In: blocked, Out: &out}))
}

// newBlockingReader never yields data until release is called.
func newBlockingReader() (*blockingReader, func()) {
	r := &blockingReader{release: make(chan struct{})}
	return r, func() { close(r.release) }
}

type blockingReader struct{ release chan struct{} }

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.release
	return 0, context.Canceled
}
