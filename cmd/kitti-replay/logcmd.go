package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/recorder"
)

func (a *app) newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <packet-log>",
		Short: "Print the header and packets of a recorded packet log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLog(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().Int64("from", 0, "start at the first packet at or after this timestamp (ns)")
	cmd.Flags().Int("count", 10, "packets to print, 0 for all")
	return cmd
}

func (a *app) runLog(out io.Writer, path string) error {
	r, err := recorder.NewReplayer(fsutil.OSFileSystem{}, path)
	if err != nil {
		return err
	}
	h := r.Header()
	fmt.Fprintf(out, "sequence %s run %s: %d packets, %d IMU samples, %d..%d ns (format %s, %s)\n",
		h.Sequence, h.RunID, h.TotalPackets, h.TotalImu, h.StartNs, h.EndNs, h.Version, h.RecorderVersion)
	if r.TotalPackets() == 0 {
		return nil
	}

	if a.v.IsSet("from") {
		if err := r.SeekToTimestamp(a.v.GetInt64("from")); err != nil {
			return err
		}
	}

	count := a.v.GetInt("count")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tTIMESTAMP_NS\tIMU\tLEFT")
	for n := 0; count == 0 || n < count; n++ {
		pkt, err := r.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", pkt.FrameIndex, pkt.TimestampNs, len(pkt.Imu), pkt.LeftImage)
	}
	return tw.Flush()
}
