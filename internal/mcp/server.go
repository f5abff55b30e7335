package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/campusreport/internal/issues"
	"github.com/joescharf/campusreport/internal/models"
	"github.com/joescharf/campusreport/internal/stats"
	"github.com/joescharf/campusreport/internal/store"
)

// Server exposes the issue service as MCP tools.
type Server struct {
	issues  *issues.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(is *issues.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{issues: is, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("campusreport", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.submitIssueTool())
	srv.AddTool(s.updateStatusTool())
	srv.AddTool(s.issueStatsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult renders service errors for the calling model. Field errors are
// listed one per line so the caller can correct its input.
func errorResult(action string, err error) *mcp.CallToolResult {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		var b strings.Builder
		b.WriteString("invalid input:")
		for _, f := range verr.Fields {
			fmt.Fprintf(&b, "\n- %s: %s", f.Field, f.Message)
		}
		return mcp.NewToolResultError(b.String())
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

type issueOut struct {
	*models.Issue
	NotificationError string `json:"notification_error,omitempty"`
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// campus_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_list_issues",
		mcp.WithDescription("List reported facility issues, ordered by issue type and then importance (high first). Returns a JSON array; each issue has id, name, submitter_email, issue_types, room_number, importance (low/medium/high), comment, status (pending/in_progress/resolved), submitted_at and updated_at."),
		mcp.WithString("status", mcp.Description("Status filter: pending, in_progress, resolved")),
		mcp.WithString("importance", mcp.Description("Importance filter: low, medium, high")),
		mcp.WithString("issue_type", mcp.Description("Only issues tagged with this exact category label")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueListFilter{IssueType: request.GetString("issue_type", "")}
	if filter.IssueType != "" && !models.IsCategory(filter.IssueType) {
		return mcp.NewToolResultError("unknown issue type: " + filter.IssueType), nil
	}

	if v := request.GetString("status", ""); v != "" {
		st, ok := models.ParseIssueStatus(v)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s (expected pending, in_progress, resolved)", v)), nil
		}
		filter.Status = st
	}
	if v := request.GetString("importance", ""); v != "" {
		imp, ok := models.ParseImportance(v)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid importance: %s (expected low, medium, high)", v)), nil
		}
		filter.Importance = imp
	}

	list, err := s.issues.List(ctx, filter)
	if err != nil {
		return errorResult("list issues", err), nil
	}
	if list == nil {
		list = []*models.Issue{}
	}
	return jsonResult(list)
}

// campus_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_get_issue",
		mcp.WithDescription("Get one reported issue by its numeric id. Returns the issue as JSON."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	issue, err := s.issues.Get(ctx, int64(id))
	if err != nil {
		return errorResult("get issue", err), nil
	}
	return jsonResult(issue)
}

// campus_submit_issue
func (s *Server) submitIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_submit_issue",
		mcp.WithDescription("Report a new facility issue on behalf of a campus member. The submitter receives a confirmation email. Returns the created issue as JSON; notification_error is set when the email could not be sent."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Submitter name")),
		mcp.WithString("email", mcp.Required(), mcp.Description("Submitter institution email address")),
		mcp.WithString("room_number", mcp.Required(), mcp.Description("Room in the format 'A 09-001'")),
		mcp.WithArray("issue_types", mcp.Required(), mcp.WithStringItems(mcp.Enum(models.Categories...)),
			mcp.Description("One or more category labels, copied exactly")),
		mcp.WithString("importance", mcp.Description("low, medium or high (default: low)")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Problem description, at most 500 characters")),
	)
	return tool, s.handleSubmitIssue
}

func (s *Server) handleSubmitIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sub := issues.Submission{
		Name:       request.GetString("name", ""),
		Email:      request.GetString("email", ""),
		RoomNumber: request.GetString("room_number", ""),
		IssueTypes: request.GetStringSlice("issue_types", nil),
		Importance: request.GetString("importance", ""),
		Comment:    request.GetString("comment", ""),
	}

	issue, err := s.issues.Create(ctx, sub)
	if err != nil && !issues.IsNotificationOnly(err) {
		return errorResult("submit issue", err), nil
	}
	out := issueOut{Issue: issue}
	if err != nil {
		out.NotificationError = err.Error()
	}
	return jsonResult(out)
}

// campus_update_status
func (s *Server) updateStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_update_status",
		mcp.WithDescription("Override the status of an issue. Moving an issue to resolved emails the submitter. Returns the updated issue as JSON."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: pending, in_progress, resolved")),
	)
	return tool, s.handleUpdateStatus
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	raw, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}
	status, ok := models.ParseIssueStatus(raw)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s (expected pending, in_progress, resolved)", raw)), nil
	}

	issue, err := s.issues.UpdateStatus(ctx, int64(id), status)
	if err != nil && !issues.IsNotificationOnly(err) {
		return errorResult("update status", err), nil
	}
	out := issueOut{Issue: issue}
	if err != nil {
		out.NotificationError = err.Error()
	}
	return jsonResult(out)
}

// campus_issue_stats
func (s *Server) issueStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("campus_issue_stats",
		mcp.WithDescription("Dashboard aggregates: total issue count and counts by issue type, submission day, importance and status (with percentages)."),
	)
	return tool, s.handleIssueStats
}

func (s *Server) handleIssueStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.issues.List(ctx, store.IssueListFilter{})
	if err != nil {
		return errorResult("compute stats", err), nil
	}
	return jsonResult(stats.Summarize(list, s.issues.Location()))
}
