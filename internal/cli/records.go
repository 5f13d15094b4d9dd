package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"linkvault-server/internal/bootstrap"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewSweepCommand purges every record whose expiry has passed
func NewSweepCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired records and their files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(app *bootstrap.App) error {
				start := time.Now()
				purged, err := app.Engine.Sweep(cmd.Context(), app.Engine.Now())
				if err != nil {
					return fmt.Errorf("sweep failed after purging %d records: %w", purged, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired records in %v\n", purged, time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}

// NewShowCommand prints one record's summary as JSON
func NewShowCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a record without consuming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(app *bootstrap.App) error {
				rec, err := app.Engine.Inspect(cmd.Context(), args[0])
				if errors.Is(err, storage.ErrRecordNotFound) {
					return fmt.Errorf("record %s not found", args[0])
				}
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec.Summary())
			})
		},
	}
}

type listOptions struct {
	kind   string
	policy string
	all    bool
	limit  int
	offset int
}

func (o listOptions) filter(now time.Time) (*storage.RecordFilter, error) {
	filter := &storage.RecordFilter{IncludeInactive: o.all, Now: now}
	if o.kind != "" {
		k := models.Kind(o.kind)
		if !k.Valid() {
			return nil, fmt.Errorf("invalid kind %q: must be text or file", o.kind)
		}
		filter.Kind = k
	}
	if o.policy != "" {
		switch mode := models.PolicyMode(o.policy); mode {
		case models.PolicyNoLimit, models.PolicyOneTimeView, models.PolicyViewQuota, models.PolicyDownloadQuota:
			filter.PolicyMode = mode
		default:
			return nil, fmt.Errorf("invalid policy %q", o.policy)
		}
	}
	return filter, nil
}

// NewListCommand prints a table of records
func NewListCommand(open Opener) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.limit <= 0 {
				return fmt.Errorf("limit must be positive")
			}
			return withApp(cmd, open, func(app *bootstrap.App) error {
				lister, ok := app.Lister()
				if !ok {
					return fmt.Errorf("record backend %s does not support listing", app.Config.RecordBackend)
				}
				now := app.Engine.Now()
				filter, err := opts.filter(now)
				if err != nil {
					return err
				}
				records, err := lister.ListWithFilter(cmd.Context(), opts.limit, opts.offset, filter)
				if err != nil {
					return err
				}
				total, err := lister.CountWithFilter(cmd.Context(), filter)
				if err != nil {
					return err
				}
				writeRecordTable(cmd, records, now)
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d records\n", len(records), total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Only records of this kind (text, file)")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "Only records with this policy (none, one_time_view, view_quota, download_quota)")
	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "Include expired and exhausted records")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "Maximum records to print")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Records to skip")
	return cmd
}

func writeRecordTable(cmd *cobra.Command, records []*models.ContentRecord, now time.Time) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPOLICY\tSIZE\tEXPIRES\tSTATE")
	for _, rec := range records {
		size := humanize.IBytes(uint64(rec.Size))
		if rec.Kind == models.KindText {
			size = humanize.IBytes(uint64(len(rec.TextData)))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Kind, rec.Policy.String(), size,
			humanize.RelTime(rec.ExpiryTime, now, "ago", "from now"), recordState(rec, now))
	}
	w.Flush()
}

func recordState(rec *models.ContentRecord, now time.Time) string {
	switch {
	case rec.IsExpired(now):
		return "expired"
	case rec.IsExhausted():
		return "exhausted"
	case rec.HasPassword():
		return "protected"
	default:
		return "active"
	}
}

// NewBackupCommand writes a backup of the record store
func NewBackupCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the record store to BACKUP_DIR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(app *bootstrap.App) error {
				m, ok := app.Maintainer()
				if !ok {
					return fmt.Errorf("record backend %s does not support backups", app.Config.RecordBackend)
				}
				if err := m.CreateBackup(); err != nil {
					return fmt.Errorf("backup failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", app.Config.BackupDir)
				return nil
			})
		},
	}
}

// NewGCCommand runs one garbage collection pass on the record store
func NewGCCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Reclaim space in the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(app *bootstrap.App) error {
				m, ok := app.Maintainer()
				if !ok {
					return fmt.Errorf("record backend %s does not support garbage collection", app.Config.RecordBackend)
				}
				if err := m.RunGC(); err != nil {
					return fmt.Errorf("garbage collection failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Garbage collection completed")
				return nil
			})
		},
	}
}

// NewVersionCommand prints the build version
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkvaultctl %s\n", Version)
		},
	}
}
