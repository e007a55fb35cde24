// Package mcp exposes the orchestrator as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/errand/internal/logging"
	"github.com/aretw0/errand/internal/orchestrator"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/cors"
)

// TaskTypesURI lists the supported task types.
const TaskTypesURI = "errand://task-types"

// Orchestrator is what the MCP tools call into.
type Orchestrator interface {
	Handle(ctx context.Context, req orchestrator.Request) (domain.Response, error)
	Continue(ctx context.Context, req orchestrator.ContinueRequest) (domain.Response, error)
	Inspect(ctx context.Context, taskID string) (*orchestrator.TaskView, error)
}

// ChatArgs are the arguments of the chat tool.
type ChatArgs struct {
	Message      string `json:"message"`
	SessionID    string `json:"session_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	Location     string `json:"location,omitempty"`
}

// ContinueArgs are the arguments of the continue_task tool.
type ContinueArgs struct {
	TaskID         string `json:"task_id"`
	UserInput      string `json:"user_input,omitempty"`
	SelectedOption string `json:"selected_option,omitempty"`
}

// TaskArgs are the arguments of the get_task tool.
type TaskArgs struct {
	TaskID string `json:"task_id"`
}

// Server wraps the orchestrator in an MCP server.
type Server struct {
	orch      Orchestrator
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance. A nil logger discards.
func NewServer(o Orchestrator, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		orch:      o,
		mcpServer: server.NewMCPServer("errand-mcp", version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is canceled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           cors.AllowAll().Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	chatTool := mcp.NewTool("chat",
		mcp.WithDescription("Send a message to the assistant. Omit session_id to start a new session; reuse the returned sessionId to continue the conversation."),
		mcp.WithString("message", mcp.Required(), mcp.Description("What the user said")),
		mcp.WithString("session_id", mcp.Description("Existing session (optional)")),
		mcp.WithString("user_id", mcp.Description("Known user id (optional)")),
		mcp.WithString("session_token", mcp.Description("Guest token returned by an earlier call (optional)")),
		mcp.WithString("location", mcp.Description("Where the user is, as an address or city (optional)")),
		mcp.WithOutputSchema[domain.Response](),
	)
	s.mcpServer.AddTool(chatTool, mcp.NewStructuredToolHandler(s.handleChat))

	continueTool := mcp.NewTool("continue_task",
		mcp.WithDescription("Answer a task that is waiting for input, e.g. a clarification question or an itinerary confirmation."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to continue")),
		mcp.WithString("user_input", mcp.Description("Free text answer")),
		mcp.WithString("selected_option", mcp.Description("One of the options offered by the task")),
		mcp.WithOutputSchema[domain.Response](),
	)
	s.mcpServer.AddTool(continueTool, mcp.NewStructuredToolHandler(s.handleContinue))

	s.mcpServer.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Inspect a task: phase, progress, gathered information and execution plan."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task to inspect")),
	), s.handleGetTask)
}

func (s *Server) handleChat(ctx context.Context, _ mcp.CallToolRequest, args ChatArgs) (domain.Response, error) {
	req := orchestrator.Request{
		Message:      args.Message,
		SessionID:    args.SessionID,
		UserID:       args.UserID,
		SessionToken: args.SessionToken,
	}
	if args.Location != "" {
		req.Location = &domain.Location{Address: args.Location}
	}
	resp, err := s.orch.Handle(ctx, req)
	if err != nil {
		s.logger.Warn("MCP chat rejected", "err", err)
		return domain.Response{}, fmt.Errorf("chat failed: %w", err)
	}
	return resp, nil
}

func (s *Server) handleContinue(ctx context.Context, _ mcp.CallToolRequest, args ContinueArgs) (domain.Response, error) {
	resp, err := s.orch.Continue(ctx, orchestrator.ContinueRequest{
		TaskID:         args.TaskID,
		UserInput:      args.UserInput,
		SelectedOption: args.SelectedOption,
	})
	if err != nil {
		s.logger.Warn("MCP continue rejected", "task_id", args.TaskID, "err", err)
		return domain.Response{}, fmt.Errorf("continue failed: %w", err)
	}
	return resp, nil
}

func (s *Server) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.orch.Inspect(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	jsonBytes, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

type taskTypeInfo struct {
	Type        domain.TaskType `json:"type"`
	Description string          `json:"description"`
}

var taskTypeDescriptions = []taskTypeInfo{
	{domain.TaskGeneral, "Answers general questions with web searches."},
	{domain.TaskMedicine, "Finds a medicine at nearby pharmacies and calls them to check stock."},
	{domain.TaskTravel, "Researches a destination, drafts an itinerary for confirmation and books a hotel."},
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(TaskTypesURI, "Supported task types",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(taskTypeDescriptions)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      TaskTypesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
