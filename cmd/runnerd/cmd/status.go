package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/merfantz/runnerd/internal/core"
	"github.com/merfantz/runnerd/internal/registry"
)

var (
	statusOutput     string
	statusActiveOnly bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show runner registry records",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table",
		"output format (table, json, yaml)")
	statusCmd.Flags().BoolVar(&statusActiveOnly, "active", false,
		"show only active runners")
}

// statusRecord is the serialized form of a registry record.
type statusRecord struct {
	ID         string    `json:"id" yaml:"id"`
	WorkflowID string    `json:"workflow_id" yaml:"workflow_id"`
	Port       int       `json:"port" yaml:"port"`
	PID        int       `json:"pid" yaml:"pid"`
	Status     string    `json:"status" yaml:"status"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := registry.NewSQLiteStore(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("opening process registry: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	var records []*core.ProcessRecord
	if statusActiveOnly {
		records, err = store.ListActive(ctx)
	} else {
		records, err = store.List(ctx)
	}
	if err != nil {
		return err
	}

	out := make([]statusRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, statusRecord{
			ID:         rec.ID,
			WorkflowID: rec.WorkflowID,
			Port:       rec.Port,
			PID:        rec.PID,
			Status:     string(rec.Status),
			CreatedAt:  rec.CreatedAt,
		})
	}

	switch statusOutput {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(out)
	case "table":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WORKFLOW\tPORT\tPID\tSTATUS\tCREATED")
		for _, rec := range out {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
				rec.WorkflowID, rec.Port, rec.PID, rec.Status,
				rec.CreatedAt.Local().Format(time.RFC3339))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", statusOutput)
	}
}
