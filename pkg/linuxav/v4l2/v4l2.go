//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format negotiation, controls and memory-mapped
// streaming capture.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Streaming
//
// A Device is an open node. Buffers are requested, queried and mapped
// once per format, then cycled through QueueBuffer and DequeueBuffer
// while the stream is on:
//
//	dev, _ := v4l2.Open("/dev/video0")
//	defer dev.Close()
//	n, _ := dev.RequestBuffers(2)
//	for i := uint32(0); i < n; i++ {
//	    info, _ := dev.QueryBuffer(i)
//	    mem, _ := dev.MapBuffer(info)
//	    ...
//	}
//
// The device is opened non-blocking; callers are expected to poll Fd for
// readability before calling DequeueBuffer.
package v4l2
