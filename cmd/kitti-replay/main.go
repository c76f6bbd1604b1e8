// Command kitti-replay indexes and replays KITTI-style stereo + IMU
// recordings.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
