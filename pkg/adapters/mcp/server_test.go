package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/errand/internal/orchestrator"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrchestrator struct {
	lastChat     orchestrator.Request
	lastContinue orchestrator.ContinueRequest
}

func (f *fakeOrchestrator) Handle(_ context.Context, req orchestrator.Request) (domain.Response, error) {
	f.lastChat = req
	return domain.Response{SessionID: "s1", TaskID: "t1", Response: "Where are you?", RequiresInput: true}, nil
}

func (f *fakeOrchestrator) Continue(_ context.Context, req orchestrator.ContinueRequest) (domain.Response, error) {
	f.lastContinue = req
	if req.TaskID == "missing" {
		return domain.Response{}, domain.ErrTaskNotFound
	}
	return domain.Response{TaskID: req.TaskID, IsComplete: true}, nil
}

func (f *fakeOrchestrator) Inspect(_ context.Context, taskID string) (*orchestrator.TaskView, error) {
	if taskID == "missing" {
		return nil, domain.ErrTaskNotFound
	}
	return &orchestrator.TaskView{Task: &domain.Task{ID: taskID}, Phase: domain.PhaseExecution, Progress: 65}, nil
}

func TestHandleChat(t *testing.T) {
	fake := &fakeOrchestrator{}
	s := NewServer(fake, "test", nil)

	resp, err := s.handleChat(context.Background(), mcp.CallToolRequest{}, ChatArgs{Message: "find aspirin", Location: "Porto"})
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.TaskID)
	assert.True(t, resp.RequiresInput)
	require.NotNil(t, fake.lastChat.Location)
	assert.Equal(t, "Porto", fake.lastChat.Location.Address)
}

func TestHandleContinue(t *testing.T) {
	fake := &fakeOrchestrator{}
	s := NewServer(fake, "test", nil)

	resp, err := s.handleContinue(context.Background(), mcp.CallToolRequest{}, ContinueArgs{TaskID: "t1", SelectedOption: domain.OptionConfirm})
	require.NoError(t, err)
	assert.True(t, resp.IsComplete)
	assert.Equal(t, domain.OptionConfirm, fake.lastContinue.SelectedOption)

	_, err = s.handleContinue(context.Background(), mcp.CallToolRequest{}, ContinueArgs{TaskID: "missing", UserInput: "x"})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestHandleGetTask(t *testing.T) {
	s := NewServer(&fakeOrchestrator{}, "test", nil)

	req := mcp.CallToolRequest{}
	req.Params.Name = "get_task"
	req.Params.Arguments = map[string]any{"task_id": "t1"}
	res, err := s.handleGetTask(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var view orchestrator.TaskView
	require.NoError(t, json.Unmarshal([]byte(text.Text), &view))
	assert.Equal(t, domain.PhaseExecution, view.Phase)
	assert.Equal(t, 65.0, view.Progress)

	req.Params.Arguments = map[string]any{"task_id": "missing"}
	res, err = s.handleGetTask(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	req.Params.Arguments = map[string]any{}
	res, err = s.handleGetTask(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
