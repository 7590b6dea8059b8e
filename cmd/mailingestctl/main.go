package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/mailingest/internal/client"
	"github.com/matheus3301/mailingest/internal/daemon"
	"github.com/matheus3301/mailingest/internal/paths"
	"github.com/matheus3301/mailingest/internal/store"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mailingestctl",
		Short:         "Inspect mailingest runs and the ingested store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(statusCmd(), statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	var (
		archivePath string
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the run ingesting an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := paths.ArchiveKey(archivePath)
			if err != nil {
				return err
			}
			c, err := client.New(paths.SocketPath(key))
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			resp, err := c.Check(ctx, daemon.ServiceName)
			if err != nil {
				return fmt.Errorf("no run reachable for %s: %w", archivePath, err)
			}
			if jsonOut {
				b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				return nil
			}
			fmt.Printf("Archive: %s\n", archivePath)
			fmt.Printf("Run:     %s\n", paths.RunDir(key))
			fmt.Printf("Status:  %s\n", resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&archivePath, "archive", "", "archive path the run was started with")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	_ = cmd.MarkFlagRequired("archive")
	return cmd
}

func statsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print row counts of the ingested store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = paths.DBPath()
			}
			db, err := store.OpenReadOnly(dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			schema, err := db.SchemaVersion()
			if err != nil {
				return err
			}
			c, err := db.Counts()
			if err != nil {
				return err
			}
			switch {
			case schema.Dirty:
				fmt.Printf("Schema:      v%d (dirty, needs repair)\n", schema.Version)
			case schema.Behind():
				fmt.Printf("Schema:      v%d (v%d pending)\n", schema.Version, schema.Latest)
			default:
				fmt.Printf("Schema:      v%d\n", schema.Version)
			}
			fmt.Printf("Imports:     %d\n", c.Imports)
			fmt.Printf("Emails:      %d (%d awaiting enrichment)\n", c.Emails, c.Unprocessed)
			fmt.Printf("Companies:   %d\n", c.Companies)
			fmt.Printf("Contacts:    %d\n", c.Contacts)
			fmt.Printf("Threads:     %d\n", c.Threads)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default ~/.mailingest/mailingest.db)")
	return cmd
}
