package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/kitti-replay/internal/catalog"
	"github.com/banshee-data/kitti-replay/internal/fsutil"
	"github.com/banshee-data/kitti-replay/internal/kitti"
	"github.com/banshee-data/kitti-replay/internal/security"
)

func (a *app) newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <sequence-root>",
		Short: "Index a sequence and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().String("format", "text", "output format: text, json or yaml")
	cmd.Flags().String("catalog", "", "record the sequence in this SQLite catalog")
	return cmd
}

func (a *app) runInspect(out io.Writer, root string) error {
	cfg, err := a.replayConfig()
	if err != nil {
		return err
	}
	catalogPath := a.v.GetString("catalog")
	if err := security.ValidateOutputPath(catalogPath, root); err != nil {
		return err
	}

	idx, err := kitti.BuildSequenceIndex(fsutil.OSFileSystem{}, root, cfg)
	if err != nil {
		return err
	}
	summary := idx.Summary()

	if catalogPath != "" {
		cat, err := catalog.Open(catalogPath)
		if err != nil {
			return err
		}
		defer cat.Close()
		id, err := cat.UpsertSequence(summary)
		if err != nil {
			return err
		}
		a.logger.WithField("sequence_id", id).Info("catalogued sequence")
	}

	return writeSummary(out, a.v.GetString("format"), summary, idx)
}

// inspection is the structured form of inspect's output.
type inspection struct {
	Summary  kitti.Summary   `json:"summary" yaml:"summary"`
	Baseline []float64       `json:"cam_l_pose_cam_r" yaml:"cam_l_pose_cam_r"` // row-major 3x4
	Imu      kitti.ImuParams `json:"imu" yaml:"imu"`
}

func writeSummary(out io.Writer, format string, s kitti.Summary, idx *kitti.SequenceIndex) error {
	pose := idx.StereoBaselinePose()
	doc := inspection{
		Summary:  s,
		Baseline: pose.T[:12],
		Imu:      idx.ImuParams(),
	}

	switch format {
	case "text":
		_, err := fmt.Fprintln(out, s.String())
		return err
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}
