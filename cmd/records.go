package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect stored violation records",
	Long:  "Commands for listing and exporting the records written by sync.",
}

// -- records list --

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := recordFilterFromFlags(cmd)
		format, _ := cmd.Flags().GetString("format")

		recs, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "records list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No records found.")
			return nil
		}
		return writeRecords(os.Stdout, recs, format)
	},
}

// -- records export --

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return eris.New("records export: --out is required")
		}

		st, err := openMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := recordFilterFromFlags(cmd)
		recs, err := st.ListRecords(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "records export")
		}
		if err := exportRecordsXLSX(out, recs); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", len(recs), out)
		return nil
	},
}

func recordFilterFromFlags(cmd *cobra.Command) store.RecordFilter {
	status, _ := cmd.Flags().GetString("status")
	owner, _ := cmd.Flags().GetString("owner")
	limit, _ := cmd.Flags().GetInt("limit")
	return store.RecordFilter{Status: status, OwnerID: owner, Limit: limit}
}

func writeRecords(out io.Writer, recs []model.StoredRecord, format string) error {
	switch format {
	case "table", "":
		formatRecordsTable(out, recs)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(recs); err != nil {
			return eris.Wrap(err, "records: encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("records: unsupported format %q", format)
	}
}

func formatRecordsTable(out io.Writer, recs []model.StoredRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tOWNER\tNAME\tPERMIT TYPE\tSTATUS\tUPDATED")
	_, _ = fmt.Fprintln(w, "---\t-----\t----\t-----------\t------\t-------")
	for _, r := range recs {
		name := r.OwnerName
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Key,
			r.OwnerID,
			name,
			deref(r.PermitType),
			r.Status,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

var exportColumns = []string{
	"Key", "Case", "Item", "Description", "CVR", "Owner", "Address",
	"Latitude", "Longitude", "Valid from", "Valid to", "Area", "Permit type", "Status",
}

func exportRecordsXLSX(path string, recs []model.StoredRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Henstillinger")
	if err != nil {
		return eris.Wrap(err, "records export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range exportColumns {
		header.AddCell().SetString(col)
	}

	for _, r := range recs {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Key)
		row.AddCell().SetString(r.CaseID)
		row.AddCell().SetInt(r.ItemNumber)
		row.AddCell().SetString(r.Description)
		row.AddCell().SetString(r.OwnerID)
		row.AddCell().SetString(r.OwnerName)
		row.AddCell().SetString(r.Address)
		if r.Coord != nil {
			row.AddCell().SetFloat(r.Coord.Lat)
			row.AddCell().SetFloat(r.Coord.Lon)
		} else {
			row.AddCell()
			row.AddCell()
		}
		row.AddCell().SetString(formatDay(r.ValidFrom))
		row.AddCell().SetString(formatDay(r.ValidTo))
		if r.Area != nil {
			row.AddCell().SetFloat(*r.Area)
		} else {
			row.AddCell()
		}
		row.AddCell().SetString(deref(r.PermitType))
		row.AddCell().SetString(r.Status)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "records export: save %s", path)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{recordsListCmd, recordsExportCmd} {
		c.Flags().String("status", "", "filter by business status (New, ...)")
		c.Flags().String("owner", "", "filter by owner CVR number")
	}
	recordsListCmd.Flags().Int("limit", 100, "max number of records to display")
	recordsListCmd.Flags().String("format", "table", "output format (table, json, yaml)")
	recordsExportCmd.Flags().Int("limit", 100000, "max number of records to export")
	recordsExportCmd.Flags().String("out", "", "output xlsx path")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsExportCmd)
	rootCmd.AddCommand(recordsCmd)
}
