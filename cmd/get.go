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
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/liveconfig/internal/configreader"
)

var (
	getApp string
	getAs  string
)

func init() {
	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Read values through the live config reader",
		Long: `Opens a reader for one application, as a service would, and prints one
value converted to --as, or every active value when no key is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := setupCLI()
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if getApp != "" {
				cfg.Reader.Application = getApp
			}

			reader, err := configreader.Open(ctx, cfg.Reader.Application, cfg.Redis.Endpoint,
				cfg.Reader.RefreshInterval, storeOptions(cfg, slog.Default()))
			if err != nil {
				return err
			}
			defer func() { _ = reader.Close() }()

			if len(args) == 0 {
				printActiveValues(os.Stdout, reader.ActiveValues())
				return nil
			}
			v, err := readAs(reader, args[0], getAs)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
	getCmd.Flags().StringVar(&getApp, "app", "", "Application name, overrides reader.application")
	getCmd.Flags().StringVar(&getAs, "as", "string", "Result type: string, int, int64, float64, bool or duration")
	rootCmd.AddCommand(getCmd)
}

func readAs(r *configreader.Reader, key, as string) (any, error) {
	switch strings.ToLower(as) {
	case "string", "":
		return configreader.GetValue[string](r, key)
	case "int":
		return configreader.GetValue[int](r, key)
	case "int64":
		return configreader.GetValue[int64](r, key)
	case "float64", "double":
		return configreader.GetValue[float64](r, key)
	case "bool":
		return configreader.GetValue[bool](r, key)
	case "duration":
		return configreader.GetValue[time.Duration](r, key)
	default:
		return nil, fmt.Errorf("unknown result type %q", as)
	}
}

func printActiveValues(w io.Writer, values map[string]string) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "%s=%s\n", name, values[name])
	}
}
