package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/shotdiff/visreg"
)

var version = "dev"

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the visreg MCP tools over stdio",
		Long: `Expose run history, changesets and screenshot comparison as MCP tools
(visreg_runs, visreg_changeset, visreg_compare) on stdin/stdout. Logs go to
stderr or the configured log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := a.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			srv := mcp.NewServer(&mcp.Implementation{Name: "shotdiff", Version: version}, nil)
			visreg.NewArchive(ledger, a.cfg, a.logger).RegisterMCP(srv)

			a.logger.Info("shotdiff: mcp server on stdio")
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
