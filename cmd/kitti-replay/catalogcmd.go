package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/kitti-replay/internal/catalog"
)

func (a *app) newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <catalog.db>",
		Short: "List catalogued sequences and their replay runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd.OutOrStdout(), args[0])
		},
	}
}

func runCatalog(out io.Writer, path string) error {
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()

	seqs, err := cat.ListSequences()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range seqs {
		fmt.Fprintf(tw, "%s\t%s\tframes=%d\treplay=%d..%d\tbaseline=%.3fm\n",
			s.ID, s.Summary.Root, s.Summary.NumFrames, s.Summary.InitialFrame, s.Summary.FinalFrame, s.Summary.BaselineMeters)
		runs, err := cat.ListRuns(s.ID)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(tw, "  run %s\t%s\tpackets=%d\timu=%d\t%s\t%s\n",
				r.ID, r.Status, r.Packets, r.ImuSamples, r.StartedAt.UTC().Format(time.RFC3339), r.Error)
		}
	}
	return tw.Flush()
}
