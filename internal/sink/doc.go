// Package sink holds frame consumers that plug into an acquisition Engine.
//
// Handlers run on the acquisition goroutine, so every sink here either
// copies the frame and returns at once or hands it to its own goroutine.
// When a consumer falls behind, frames are dropped and counted; acquisition
// is never slowed down.
package sink
