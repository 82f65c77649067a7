package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/internal/table"
)

func newRenderCommand() *cobra.Command {
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render JSON rows from stdin as a table",
		Long: `Read a JSON array of objects from stdin and print it the way answers
are rendered. Column order follows the keys of the first object.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows model.RowSet
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&rows); err != nil {
				return fmt.Errorf("reading rows: %w", err)
			}
			printResult(cmd, table.Render(rows), asCSV)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asCSV, "csv", false, "Print every row as CSV instead of the table")
	return cmd
}

func printResult(cmd *cobra.Command, result table.Result, asCSV bool) {
	out := cmd.OutOrStdout()
	if asCSV {
		fmt.Fprintln(out, result.CSVText)
		return
	}
	fmt.Fprintln(out, result.TableText)
	if result.TruncatedRowCount > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d rows not shown; use --csv for all rows\n", result.TruncatedRowCount)
	}
}
