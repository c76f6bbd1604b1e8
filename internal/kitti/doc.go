// Package kitti replays a recorded stereo + IMU sequence stored in the KITTI
// raw on-disk layout.
//
// A Provider is built once per sequence. Construction parses the camera
// calibration, both per-device timestamp logs, the IMU log and the image
// listings, reconciles them, and only then commits an immutable
// SequenceIndex. Replay walks the usable frame range in order, decoding the
// stereo pair for each frame and delivering it together with the IMU samples
// in (previous frame time, current frame time] to a synchronous callback.
//
// Layout, relative to the dataset root:
//
//	calib_cam_to_cam.txt          stereo calibration (S_xx, K_xx, D_xx, R_xx, T_xx, ...)
//	image_00/timestamps.txt       one timestamp per line, aligned with the images
//	image_00/data/0000000000.png  left images, filename order == capture order
//	image_01/...                  right camera, same structure
//	oxts/imu.log                  "t wx wy wz ax ay az" per line
//
// All file names are configurable through config.ReplayConfig.
package kitti
