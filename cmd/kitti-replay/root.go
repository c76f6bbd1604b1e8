package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/kitti-replay/internal/config"
	"github.com/banshee-data/kitti-replay/internal/monitoring"
	"github.com/banshee-data/kitti-replay/internal/version"
)

// envPrefix namespaces environment overrides, e.g. KITTI_REPLAY_SKIP=5.
const envPrefix = "KITTI_REPLAY"

// app is the state shared by every subcommand of one invocation.
type app struct {
	v      *viper.Viper
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "kitti-replay",
		Short:         "Index and replay stereo + IMU dataset sequences",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "replay config JSON (see "+config.DefaultConfigPath+")")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("left-camera", "", "left camera device directory (default image_00)")
	pf.String("right-camera", "", "right camera device directory (default image_01)")
	pf.Int("skip", 0, "leading frames to skip before replay (default 10)")
	pf.Int("final-frame", -1, "last frame to replay, -1 for the end of the sequence")

	root.AddCommand(
		a.newInspectCmd(),
		a.newReplayCmd(),
		a.newLogCmd(),
		a.newCatalogCmd(),
		newVersionCmd(),
	)
	return root
}

// init binds flags and environment and points the library loggers at logrus.
func (a *app) init(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	logger, err := newLogger(a.v.GetString("log-level"), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger
	monitoring.SetLogger(logger.Infof)
	monitoring.SetWarnLogger(logger.Warnf)
	monitoring.SetDebugLogger(logger.Debugf)
	return nil
}

func newLogger(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

// replayConfig loads --config (if any) and applies flag and environment
// overrides on top of it.
func (a *app) replayConfig() (*config.ReplayConfig, error) {
	cfg := config.EmptyReplayConfig()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.LoadReplayConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if a.v.IsSet("left-camera") {
		s := a.v.GetString("left-camera")
		cfg.LeftCamera = &s
	}
	if a.v.IsSet("right-camera") {
		s := a.v.GetString("right-camera")
		cfg.RightCamera = &s
	}
	if a.v.IsSet("skip") {
		n := a.v.GetInt("skip")
		cfg.InitialFrameSkip = &n
	}
	if a.v.IsSet("final-frame") {
		n := a.v.GetInt("final-frame")
		cfg.FinalFrame = &n
	}
	if a.v.IsSet("rate") {
		r := a.v.GetFloat64("rate")
		cfg.ReplayRate = &r
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
