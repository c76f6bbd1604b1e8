package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/banshee-data/kitti-replay/internal/catalog"
	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/kitti"
	"github.com/banshee-data/kitti-replay/internal/recorder"
	"github.com/banshee-data/kitti-replay/internal/report"
	"github.com/banshee-data/kitti-replay/internal/security"
)

func (a *app) newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <sequence-root>",
		Short: "Replay a sequence as synchronized stereo + IMU packets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReplay(cmd.OutOrStdout(), args[0])
		},
	}
	f := cmd.Flags()
	f.Float64("rate", 0, "replay speed relative to capture time, 0 for unpaced")
	f.Int("limit", 0, "stop after this many packets, 0 for all")
	f.String("record", "", "write a packet log into this directory")
	f.String("report", "", "write timing and IMU coverage reports into this directory")
	f.String("catalog", "", "record the sequence and run in this SQLite catalog")
	return cmd
}

// replayCounts accumulates what the consumer saw.
type replayCounts struct {
	packets int
	imu     int
}

func (a *app) runReplay(out io.Writer, root string) error {
	cfg, err := a.replayConfig()
	if err != nil {
		return err
	}
	recordDir := a.v.GetString("record")
	reportDir := a.v.GetString("report")
	catalogPath := a.v.GetString("catalog")
	for _, p := range []string{recordDir, reportDir, catalogPath} {
		if err := security.ValidateOutputPath(p, root); err != nil {
			return err
		}
	}

	provider, err := kitti.NewProvider(root, kitti.WithConfig(cfg))
	if err != nil {
		return err
	}
	summary := provider.Index().Summary()
	name := security.SequenceName(root)
	log := a.logger.WithField("sequence", name)

	counts := &replayCounts{}
	limit := a.v.GetInt("limit")
	cb := kitti.PacketCallback(func(pkt *kitti.SynchronizedPacket) error {
		counts.packets++
		counts.imu += len(pkt.ImuWindow)
		if limit > 0 && counts.packets >= limit {
			return kitti.ErrStopReplay
		}
		return nil
	})

	var rec *recorder.Recorder
	if recordDir != "" {
		rec, err = recorder.NewRecorder(fsutil.OSFileSystem{}, filepath.Join(recordDir, name+recorder.FileExtension), name)
		if err != nil {
			return err
		}
		rec.SetBaseline(summary.BaselineMeters)
		cb = rec.Tee(cb)
	}

	var collector *report.Collector
	if reportDir != "" {
		collector = report.NewCollector(name)
		cb = collector.Tee(cb)
	}

	var cat *catalog.Catalog
	var runID string
	if catalogPath != "" {
		cat, err = catalog.Open(catalogPath)
		if err != nil {
			return err
		}
		defer cat.Close()
		seqID, err := cat.UpsertSequence(summary)
		if err != nil {
			return err
		}
		logPath := ""
		if rec != nil {
			logPath = rec.Path()
		}
		if runID, err = cat.StartRun(seqID, cfg.GetReplayRate(), logPath); err != nil {
			return err
		}
		log = log.WithField("run_id", runID)
	}

	runErr := provider.Run(cb)
	if errors.Is(runErr, kitti.ErrStopReplay) {
		log.WithField("limit", limit).Info("stopped at packet limit")
		runErr = nil
	}

	if rec != nil {
		if err := rec.Close(); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	if collector != nil {
		if err := collector.Write(fsutil.OSFileSystem{}, reportDir); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	if cat != nil {
		if err := cat.FinishRun(runID, counts.packets, counts.imu, runErr); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	log.WithFields(logrus.Fields{
		"packets":     counts.packets,
		"imu_samples": counts.imu,
	}).Info("replay finished")
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "replayed %d packets, %d IMU samples\n", counts.packets, counts.imu)
	if rec != nil {
		fmt.Fprintf(out, "packet log: %s\n", rec.Path())
	}
	if collector != nil {
		fmt.Fprintf(out, "report: %s\n", filepath.Join(reportDir, report.HTMLDocument))
	}
	return nil
}
