// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// Report is a run together with its file results, as exported.
type Report struct {
	Run     Run     `json:"run" yaml:"run"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Report loads the run matching id (or id prefix) with all its entries.
func (l *Ledger) Report(ctx context.Context, id string) (Report, error) {
	run, err := l.Run(ctx, id)
	if err != nil {
		return Report{}, err
	}
	entries, err := l.Entries(ctx, run.ID, EntryFilter{})
	if err != nil {
		return Report{}, err
	}
	return Report{Run: run, Entries: entries}, nil
}

// ExportYAML writes the report for run id to w as YAML.
func (l *Ledger) ExportYAML(ctx context.Context, w io.Writer, id string) error {
	rep, err := l.Report(ctx, id)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the report for run id to w as indented JSON.
func (l *Ledger) ExportJSON(ctx context.Context, w io.Writer, id string) error {
	rep, err := l.Report(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}
