package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var (
		showVersion bool
		cfgPath     string
	)

	root := &cobra.Command{
		Use:   "memvault",
		Short: "Memory tool server backed by a semantic vector store",
		Long: strings.TrimSpace(`memvault persists short text memories in a vector store and exposes them
to agents as MCP tools: save, semantic search with attribute filters,
listing, content retrieval and deletion.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file path (default ~/.memvault/config.json)")

	root.AddCommand(newServeCommand(&cfgPath))
	root.AddCommand(newShellCommand(&cfgPath))
	root.AddCommand(newSweepCommand(&cfgPath))
	root.AddCommand(newHealthCommand(&cfgPath))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the MCP stdio server",
		Long:    "Serve the memory tools over MCP stdio. Logs go to stderr; stdout carries the protocol.",
		Example: "  memvault serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfgPath)
		},
	}
}

func newShellCommand(cfgPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell against the configured backend",
		Long:  "Run save/search/list/get/rm/health commands interactively, useful for debugging a store.",
		Example: strings.Join([]string{
			"  memvault shell",
			"  memvault shell --user u1",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(*cfgPath, userID)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "User id for saves and searches")
	return cmd
}

func newSweepCommand(cfgPath *string) *cobra.Command {
	var (
		limit    int
		purge    bool
		cronExpr string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile orphan documents (uploaded but never tagged)",
		Long: strings.TrimSpace(`Scan the store for documents with no attributes, the leftovers of saves
whose attribute update failed after a successful upload. One-shot by
default; --cron runs it as a scheduled loop.`),
		Example: strings.Join([]string{
			"  memvault sweep",
			"  memvault sweep --purge",
			"  memvault sweep --cron \"0 * * * *\" --purge",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(*cfgPath, limit, purge, cronExpr)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Documents to scan per pass (1..100)")
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete the orphans found")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Run repeatedly on this cron schedule")
	return cmd
}

func newHealthCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print a health snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(*cfgPath)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build/version metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
