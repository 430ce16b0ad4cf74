package diffdrive

import (
	"time"

	"go.uber.org/atomic"

	"go.viam.com/diffdrive/odometry"
)

// CommandTwist is a commanded body velocity and the time it was received.
type CommandTwist struct {
	Linear  float64   `json:"linear"`
	Angular float64   `json:"angular"`
	Stamp   time.Time `json:"stamp,omitempty"`
}

// commandBuffer hands the latest command from any goroutine to the control goroutine. Commands
// are immutable once stored, so a load never sees a partial write and never waits.
type commandBuffer struct {
	latest atomic.Pointer[CommandTwist]
}

func (b *commandBuffer) store(cmd CommandTwist) {
	b.latest.Store(&cmd)
}

// load returns nil if no command has been stored since the last clear.
func (b *commandBuffer) load() *CommandTwist {
	return b.latest.Load()
}

func (b *commandBuffer) clear() {
	b.latest.Store(nil)
}

// commandHistory holds the last two commands sent to the wheels. Missing entries read as zero.
type commandHistory struct {
	entries [2]CommandTwist
	next    int
	size    int
}

func (h *commandHistory) push(cmd CommandTwist) {
	h.entries[h.next] = cmd
	h.next = (h.next + 1) % len(h.entries)
	if h.size < len(h.entries) {
		h.size++
	}
}

// previous returns the most recent command.
func (h *commandHistory) previous() CommandTwist {
	return h.at(1)
}

// beforePrevious returns the command sent before the most recent one.
func (h *commandHistory) beforePrevious() CommandTwist {
	return h.at(2)
}

// at returns the command sent back commands ago, starting at 1.
func (h *commandHistory) at(back int) CommandTwist {
	if back > h.size {
		return CommandTwist{}
	}
	n := len(h.entries)
	return h.entries[(h.next-back+n)%n]
}

func (h *commandHistory) len() int {
	return h.size
}

func (h *commandHistory) reset() {
	*h = commandHistory{}
}

// odometryRequest is a pose change queued for the control goroutine. A reset also clears the
// velocity estimate and re-latches the wheel positions.
type odometryRequest struct {
	pose  odometry.Pose2D
	reset bool
}

// Estimate is the odometry output of the most recent cycle.
type Estimate struct {
	Stamp time.Time
	Pose  odometry.Pose2D
	Twist odometry.Twist2D
}
