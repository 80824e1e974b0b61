// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/liveconfig/cmd/initialize"
	"github.com/cardinalhq/liveconfig/internal/adminapi"
	"github.com/cardinalhq/liveconfig/internal/record"
	"github.com/cardinalhq/liveconfig/internal/redisstore"
)

var (
	recordsApp      string
	recordsAll      bool
	recordsOutput   string
	recordsSeedFile string

	setID       string
	setName     string
	setType     string
	setValue    string
	setInactive bool
)

func init() {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and change stored configuration records",
	}
	recordsCmd.PersistentFlags().StringVar(&recordsApp, "app", "", "Application name (defaults to reader.application)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of an application",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withStore(func(ctx context.Context, store *redisstore.Store, app string) error {
				return runListRecords(ctx, os.Stdout, store, app, recordsAll, recordsOutput)
			})
		},
	}
	listCmd.Flags().BoolVar(&recordsAll, "all", false, "Include inactive records")
	listCmd.Flags().StringVarP(&recordsOutput, "output", "o", "table", "Output format: table, json or yaml")
	recordsCmd.AddCommand(listCmd)

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Create or update one record",
		Long: `Creates or updates one record. Pass --id to update a record that may have
been renamed; without it a record with the same name is overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withStore(func(ctx context.Context, store *redisstore.Store, app string) error {
				rec := record.Record{
					ID:              setID,
					Name:            record.NormalizeName(setName),
					Type:            setType,
					Value:           setValue,
					IsActive:        !setInactive,
					ApplicationName: app,
				}
				if err := adminapi.Validate(rec); err != nil {
					return err
				}
				if err := store.Upsert(ctx, rec); err != nil {
					return err
				}
				fmt.Printf("Saved %s/%s\n", rec.ApplicationName, rec.Name)
				return nil
			})
		},
	}
	setCmd.Flags().StringVar(&setID, "id", "", "Record identity")
	setCmd.Flags().StringVar(&setName, "name", "", "Record name")
	setCmd.Flags().StringVar(&setType, "type", "string", "Type tag: string, int, double or bool")
	setCmd.Flags().StringVar(&setValue, "value", "", "Raw value")
	setCmd.Flags().BoolVar(&setInactive, "inactive", false, "Store the record deactivated")
	_ = setCmd.MarkFlagRequired("name")
	recordsCmd.AddCommand(setCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert every record in a YAML seed file",
		Long: `Upserts every record in a YAML seed file. Use --file env:NAME to read the
document from an environment variable. Nothing is written if any record is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withStore(func(ctx context.Context, store *redisstore.Store, _ string) error {
				n, err := initialize.SeedRecords(ctx, recordsSeedFile, store, slog.Default())
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d records\n", n)
				return nil
			})
		},
	}
	seedCmd.Flags().StringVarP(&recordsSeedFile, "file", "f", "", "Seed file path or env:NAME")
	_ = seedCmd.MarkFlagRequired("file")
	recordsCmd.AddCommand(seedCmd)

	rootCmd.AddCommand(recordsCmd)
}

// withStore runs fn against a store built from configuration and flags.
func withStore(fn func(ctx context.Context, store *redisstore.Store, app string) error) error {
	ctx, cancel := setupCLI()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app := recordsApp
	if app == "" {
		app = cfg.Reader.Application
	}

	store, err := redisstore.New(cfg.Redis.Endpoint, storeOptions(cfg, slog.Default())...)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(ctx, store, app)
}

func runListRecords(ctx context.Context, w io.Writer, store adminapi.Store, app string, all bool, output string) error {
	var (
		records []record.Record
		err     error
	)
	if all {
		records, err = store.List(ctx, app)
	} else {
		records, err = store.GetAll(ctx, app)
	}
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	adminapi.SortByName(records)

	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []record.Record{}
		}
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(records)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	if len(records) == 0 {
		_, _ = fmt.Fprintf(w, "No records found for %s\n", app)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tVALUE\tACTIVE\tID")
	for _, rec := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", rec.Name, rec.Type, rec.Value, rec.IsActive, rec.ID)
	}
	return tw.Flush()
}
