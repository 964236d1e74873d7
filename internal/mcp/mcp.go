// Package mcp implements the Model Context Protocol server for Manabi.
//
// The MCP server exposes course engagement statuses and learner history as
// tools, so assistant-side context builders can fold a learner's current
// state into their prompts without going through the REST API shape.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/manabi/internal/ctxutil"
	"github.com/ashita-ai/manabi/internal/model"
	"github.com/ashita-ai/manabi/internal/service/engagement"
)

// Server wraps the MCP server with Manabi's service layer.
type Server struct {
	mcpServer     *mcpserver.MCPServer
	engagementSvc *engagement.Service
	logger        *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(engagementSvc *engagement.Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		engagementSvc: engagementSvc,
		logger:        logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"manabi",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// manabi_course_statuses: aggregated engagement per learner in a course.
	s.mcpServer.AddTool(
		mcplib.NewTool("manabi_course_statuses",
			mcplib.WithDescription("Get the current engagement status of every learner in a course, aggregated from each learner's recent telemetry"),
			mcplib.WithString("course_id", mcplib.Description("Course identifier"), mcplib.Required()),
		),
		s.handleCourseStatuses,
	)

	// manabi_learner_history: classified event history for one learner.
	s.mcpServer.AddTool(
		mcplib.NewTool("manabi_learner_history",
			mcplib.WithDescription("Get a learner's classified telemetry history for a course, newest first"),
			mcplib.WithString("user_id", mcplib.Description("Learner identifier"), mcplib.Required()),
			mcplib.WithString("course_id", mcplib.Description("Course identifier"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum events to return (default 50)")),
		),
		s.handleLearnerHistory,
	)
}

// handleCourseStatuses requires instructor or above, same as the HTTP route.
func (s *Server) handleCourseStatuses(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return errorResult("not authenticated"), nil
	}
	if !model.RoleAtLeast(claims.Role, model.RoleInstructor) {
		return errorResult("course statuses require instructor role or above"), nil
	}

	courseID := request.GetString("course_id", "")
	if courseID == "" {
		return errorResult("course_id is required"), nil
	}

	resp, err := s.engagementSvc.CourseStatuses(ctx, courseID)
	if err != nil {
		s.logger.Error("mcp: course statuses failed", "course_id", courseID, "error", err)
		return errorResult(fmt.Sprintf("failed to compute course statuses: %v", err)), nil
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal statuses: %w", err)
	}

	return textResult(string(data)), nil
}

// handleLearnerHistory allows learners to read their own history; instructor
// or above may read anyone's.
func (s *Server) handleLearnerHistory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return errorResult("not authenticated"), nil
	}

	userID := request.GetString("user_id", "")
	courseID := request.GetString("course_id", "")
	if userID == "" || courseID == "" {
		return errorResult("user_id and course_id are required"), nil
	}
	if userID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleInstructor) {
		return errorResult("learners may only read their own history"), nil
	}

	limit := request.GetInt("limit", 50)

	resp, err := s.engagementSvc.History(ctx, userID, courseID, limit, nil)
	if err != nil {
		s.logger.Error("mcp: learner history failed", "user_id", userID, "course_id", courseID, "error", err)
		return errorResult(fmt.Sprintf("failed to load learner history: %v", err)), nil
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal history: %w", err)
	}

	return textResult(string(data)), nil
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
