package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/campusreport/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client list, submit and triage facility issues. Register it
in the client configuration with:

  {
    "mcpServers": {
      "campusreport": { "command": "campusreport", "args": ["mcp"] }
    }
  }

Available tools: campus_list_issues, campus_get_issue, campus_submit_issue,
campus_update_status, campus_issue_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getIssueService()
		if err != nil {
			return err
		}
		return mcp.NewServer(svc, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
