package mpvframe

import "fmt"

// FlipStage selects where a needed vertical flip is applied.
type FlipStage int

const (
	FlipAtRender FlipStage = iota // ask the render bridge for flipped output
	FlipAtDraw                    // flip while compositing the framebuffer
)

func (s FlipStage) String() string {
	switch s {
	case FlipAtRender:
		return "render"
	case FlipAtDraw:
		return "draw"
	default:
		return "Unknown"
	}
}

// ParseFlipStage parses "render" or "draw".
func ParseFlipStage(s string) (FlipStage, error) {
	switch s {
	case "render", "":
		return FlipAtRender, nil
	case "draw":
		return FlipAtDraw, nil
	default:
		return 0, fmt.Errorf("unknown flip stage %q (want render or draw)", s)
	}
}

// FlipPlan records which stage mirrors the picture. At most one field is set.
type FlipPlan struct {
	RenderFlip bool // passed as RenderParams.FlipY
	DrawFlip   bool // applied by the compositor
}

// PlanFlip decides where to flip given the bridge's native row order.
func PlanFlip(bottomUp bool, stage FlipStage) FlipPlan {
	if !bottomUp {
		return FlipPlan{}
	}
	if stage == FlipAtDraw {
		return FlipPlan{DrawFlip: true}
	}
	return FlipPlan{RenderFlip: true}
}

// Flips returns how many times the picture is mirrored end to end.
func (p FlipPlan) Flips() int {
	n := 0
	if p.RenderFlip {
		n++
	}
	if p.DrawFlip {
		n++
	}
	return n
}
