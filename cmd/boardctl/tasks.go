package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/evercrisp-ai/Ben-OS-sub001/domain"
)

// bulkFile is the yaml layout accepted by "tasks bulk".
//
//	idempotency_key: nightly-2024-05-01
//	operations:
//	  - operation: create
//	    data: {board_id: b1, title: Write docs, column_id: todo}
//	  - operation: delete
//	    data: {id: 0190...}
type bulkFile struct {
	IdempotencyKey string   `yaml:"idempotency_key"`
	Operations     []bulkOp `yaml:"operations"`
}

type bulkOp struct {
	Operation string         `yaml:"operation"`
	Data      map[string]any `yaml:"data"`
}

// parseBulkFile decodes a yaml batch into wire operations. Operation data is
// re-encoded as JSON; its contents are validated by the server.
func parseBulkFile(r io.Reader) (bulkFile, []domain.BulkOperation, error) {
	var f bulkFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return f, nil, fmt.Errorf("bulk file is empty")
		}
		return f, nil, fmt.Errorf("parse bulk file: %w", err)
	}
	ops := make([]domain.BulkOperation, 0, len(f.Operations))
	for i, op := range f.Operations {
		data := op.Data
		if data == nil {
			data = map[string]any{}
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return f, nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, domain.BulkOperation{Operation: op.Operation, Data: raw})
	}
	return f, ops, nil
}

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Batch task operations",
	}
	cmd.AddCommand(newTasksBulkCmd(a))
	return cmd
}

func newTasksBulkCmd(a *app) *cobra.Command {
	var (
		file   string
		key    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Submit a yaml batch of create, update and delete operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read bulk file: %w", err)
				}
				in = bytes.NewReader(b)
			}
			batch, ops, err := parseBulkFile(in)
			if err != nil {
				return err
			}
			if key == "" {
				key = batch.IdempotencyKey
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout())
			defer cancel()
			res, err := c.Bulk(ctx, ops, key)
			if err != nil {
				return err
			}
			return printBulkResult(cmd.OutOrStdout(), ops, res, asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "yaml batch file, - for stdin")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency-Key header (overrides the file)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printBulkResult(w io.Writer, ops []domain.BulkOperation, res domain.BulkResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, r := range res.Results {
		name := "?"
		if r.Index >= 0 && r.Index < len(ops) {
			name = ops[r.Index].Operation
		}
		if r.Success {
			fmt.Fprintf(w, "%d\t%s\tok\n", r.Index, name)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\tfailed: %s\n", r.Index, name, r.Error)
	}
	fmt.Fprintf(w, "succeeded %d, failed %d\n", res.Summary.Success, res.Summary.Failed)
	return nil
}
