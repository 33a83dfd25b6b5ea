// Package acquisition streams frames from a V4L2 capture device.
//
// An Engine maps a ring of two driver buffers for the current video mode
// and runs one goroutine that, between Start and Stop, polls the device,
// dequeues a filled buffer, hands it to a FrameHandler and queues it again.
// Stop wakes that goroutine through a self-pipe, so a caller never waits on
// the device to cancel a run.
//
// Video modes are device-independent pixel layouts. Each mode maps to one or
// more V4L2 pixel format codes; a device offers the modes whose codes it
// enumerates. Optional controls (exposure, auto exposure, gain and frame
// interval) are queried once and degrade to cached no-ops when missing.
//
// Every operation returns *Error, classified by ErrorCode.
package acquisition
