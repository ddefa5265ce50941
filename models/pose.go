package models

import "fmt"

type Expression string

const (
	ExpressionNeutral     Expression = "neutral"
	ExpressionHappy       Expression = "happy"
	ExpressionQuestioning Expression = "questioning"
)

// PoseComponent is the offset and rotation of one limb relative to its rest position.
type PoseComponent struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

type HeadPose struct {
	Rotation float64 `json:"rotation"`
}

// Pose is the avatar's limb and head state at one instant.
type Pose struct {
	LeftArm    PoseComponent `json:"leftArm"`
	RightArm   PoseComponent `json:"rightArm"`
	Head       HeadPose      `json:"head"`
	Expression Expression    `json:"expression"`
}

// RestPose is the neutral pose every animation starts and ends with.
var RestPose = Pose{Expression: ExpressionNeutral}

type Keyframe struct {
	TimestampMs int64 `json:"timestamp_ms"`
	Pose
}

// Animation is an ordered keyframe sequence. It is never mutated after
// construction; DurationMs equals the last keyframe's timestamp.
type Animation struct {
	Name       string     `json:"name"`
	Keyframes  []Keyframe `json:"keyframes"`
	DurationMs int64      `json:"duration_ms"`
}

// Validate reports whether the animation satisfies the ordering invariants.
func (a *Animation) Validate() error {
	if len(a.Keyframes) < 2 {
		return fmt.Errorf("animation %q has %d keyframes, need at least 2", a.Name, len(a.Keyframes))
	}
	if a.Keyframes[0].TimestampMs != 0 {
		return fmt.Errorf("animation %q starts at %dms, want 0", a.Name, a.Keyframes[0].TimestampMs)
	}
	for i := 1; i < len(a.Keyframes); i++ {
		if a.Keyframes[i].TimestampMs < a.Keyframes[i-1].TimestampMs {
			return fmt.Errorf("animation %q keyframe %d goes back in time (%dms < %dms)",
				a.Name, i, a.Keyframes[i].TimestampMs, a.Keyframes[i-1].TimestampMs)
		}
	}
	if last := a.Keyframes[len(a.Keyframes)-1].TimestampMs; a.DurationMs != last {
		return fmt.Errorf("animation %q duration %dms does not match last keyframe %dms", a.Name, a.DurationMs, last)
	}
	return nil
}

// Clone returns a deep copy so a player never shares keyframes with another playback.
func (a *Animation) Clone() *Animation {
	keyframes := make([]Keyframe, len(a.Keyframes))
	copy(keyframes, a.Keyframes)
	return &Animation{Name: a.Name, Keyframes: keyframes, DurationMs: a.DurationMs}
}
