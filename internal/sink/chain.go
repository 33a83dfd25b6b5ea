package sink

import "github.com/smazurov/framegrab/internal/acquisition"

// Chain passes each frame to every handler in order. The run continues only
// while all of them return true.
type Chain []acquisition.FrameHandler

// OnFrame implements acquisition.FrameHandler.
func (c Chain) OnFrame(f acquisition.Frame) bool {
	cont := true
	for _, h := range c {
		if !h.OnFrame(f) {
			cont = false
		}
	}
	return cont
}
