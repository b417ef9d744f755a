package motion

import (
	"github.com/Faultbox/dfworld/internal/sparse"
	"github.com/Faultbox/dfworld/pkg/objid"
)

// DefaultFrameTime is the display time of one flat sprite frame.
const DefaultFrameTime = float32(1.0 / 12.0)

// FrameSink receives frame changes of animated flats.
type FrameSink interface {
	SetFrame(id objid.ID, frame int)
}

type animation struct {
	frames    int
	frameTime float32
	current   int
	elapsed   float32
}

// Frames loops the sprite frames of animated flats.
type Frames struct {
	anims *sparse.Store[animation]
	sink  FrameSink
}

// NewFrames returns an animator that reports frame changes to sink, which may be nil.
func NewFrames(sink FrameSink) *Frames {
	return &Frames{anims: sparse.New[animation](), sink: sink}
}

// Allocate starts looping frames for id. Single-frame flats are ignored and a
// non-positive frameTime uses DefaultFrameTime.
func (f *Frames) Allocate(id objid.ID, frames int, frameTime float32) {
	if frames <= 1 {
		return
	}
	if !(frameTime > 0) {
		frameTime = DefaultFrameTime
	}
	f.anims.Insert(id, animation{frames: frames, frameTime: frameTime})
}

// Release stops animating id.
func (f *Frames) Release(ids ...objid.ID) {
	for _, id := range ids {
		f.anims.Remove(id)
	}
}

// Frame returns the current frame of id.
func (f *Frames) Frame(id objid.ID) (int, bool) {
	a, ok := f.anims.Find(id)
	if !ok {
		return 0, false
	}
	return a.current, true
}

// Len returns the number of animated flats.
func (f *Frames) Len() int {
	return f.anims.Len()
}

// Tick advances every animation by dt seconds.
func (f *Frames) Tick(dt float32) {
	if !(dt > 0) {
		return
	}
	f.anims.Each(func(id objid.ID, a *animation) bool {
		a.elapsed += dt
		steps := int(a.elapsed / a.frameTime)
		if steps == 0 {
			return true
		}
		a.elapsed -= float32(steps) * a.frameTime
		a.current = (a.current + steps) % a.frames
		if f.sink != nil {
			f.sink.SetFrame(id, a.current)
		}
		return true
	})
}
