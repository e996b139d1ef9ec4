package landmarks

import (
	"image"
	"math"
)

// template is a frontal 68-point face laid out for a 200x200 frame.
var template = Set{
	Chin: {
		{40, 80}, {42, 97}, {45, 113}, {50, 128}, {57, 142}, {67, 154}, {79, 163}, {92, 169}, {100, 171},
		{108, 169}, {121, 163}, {133, 154}, {143, 142}, {150, 128}, {155, 113}, {158, 97}, {160, 80},
	},
	LeftEyebrow:  {{52, 68}, {60, 63}, {69, 62}, {78, 64}, {86, 68}},
	RightEyebrow: {{114, 68}, {122, 64}, {131, 62}, {140, 63}, {148, 68}},
	NoseBridge:   {{100, 78}, {100, 88}, {100, 98}, {100, 108}},
	NoseTip:      {{90, 115}, {95, 117}, {100, 118}, {105, 117}, {110, 115}},
	LeftEye:      {{60, 80}, {67, 75}, {75, 75}, {82, 80}, {75, 84}, {67, 84}},
	RightEye:     {{118, 80}, {125, 75}, {133, 75}, {140, 80}, {133, 84}, {125, 84}},
	TopLip: {
		{80, 140}, {87, 135}, {94, 132}, {100, 134}, {106, 132}, {113, 135}, {120, 140},
		{116, 140}, {106, 138}, {100, 139}, {94, 138}, {84, 140},
	},
	BottomLip: {
		{120, 140}, {113, 148}, {106, 152}, {100, 153}, {94, 152}, {87, 148}, {80, 140},
		{84, 140}, {94, 144}, {100, 145}, {106, 144}, {116, 140},
	},
}

// Synthetic returns a plausible frontal face scaled by scale and shifted by offset.
// Synthetic(image.Point{}, 1) fits a 200x200 frame.
func Synthetic(offset image.Point, scale float64) Set {
	out := make(Set, len(template))
	for name, pts := range template {
		region := make([]image.Point, len(pts))
		for i, p := range pts {
			region[i] = image.Pt(
				offset.X+int(math.Round(float64(p.X)*scale)),
				offset.Y+int(math.Round(float64(p.Y)*scale)),
			)
		}
		out[name] = region
	}
	return out
}
