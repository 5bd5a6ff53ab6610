package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bngseg/collector/internal/plan"
	"github.com/bngseg/collector/pkg/core"
	"github.com/spf13/cobra"
)

type historyJSON struct {
	BaseMap      string      `json:"baseMap"`
	AnnotatedMap string      `json:"annotatedMap"`
	Shots        []core.Shot `json:"shots"`
}

func newInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <history.bin>",
		Short: "Print the shots of a capture history file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := plan.LoadHistory(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(historyJSON{
					BaseMap:      h.BaseMap(),
					AnnotatedMap: h.AnnotatedMap(),
					Shots:        h.Shots(),
				})
			}
			return printHistory(cmd.OutOrStdout(), h)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printHistory(out io.Writer, h *plan.History) error {
	fmt.Fprintf(out, "Base map:      %s\n", h.BaseMap())
	fmt.Fprintf(out, "Annotated map: %s\n", h.AnnotatedMap())
	fmt.Fprintf(out, "Shots:         %d\n\n", h.Len())
	if h.Len() == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tCAR\tPOSITION\tROTATION\tCAMERAS")
	for i, s := range h.Shots() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", i, s.CarModel, s.Location.Pos, s.Location.Rot, len(s.Rigs))
	}
	return w.Flush()
}
