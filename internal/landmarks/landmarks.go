package landmarks

import (
	"context"
	"encoding/json"
	"image"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Region names as produced by face_recognition.face_landmarks.
const (
	Chin         = "chin"
	LeftEyebrow  = "left_eyebrow"
	RightEyebrow = "right_eyebrow"
	NoseBridge   = "nose_bridge"
	NoseTip      = "nose_tip"
	LeftEye      = "left_eye"
	RightEye     = "right_eye"
	TopLip       = "top_lip"
	BottomLip    = "bottom_lip"
)

// ErrMalformed is returned when a face is missing a region or a region is too short.
var ErrMalformed = errors.New("malformed landmarks")

// Set holds the ordered points of every region detected for one face.
// Index order is exactly what the detector produced.
type Set map[string][]image.Point

// UnmarshalJSON accepts {"region": [[x, y], ...]} with integer or float coordinates.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string][][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Set, len(raw))
	for name, pts := range raw {
		region := make([]image.Point, 0, len(pts))
		for i, p := range pts {
			if len(p) != 2 {
				return errors.Wrapf(ErrMalformed, "%s[%d] has %d coordinates", name, i, len(p))
			}
			region = append(region, image.Pt(int(math.Round(p[0])), int(math.Round(p[1]))))
		}
		out[name] = region
	}
	*s = out
	return nil
}

// MarshalJSON writes the set back as {"region": [[x, y], ...]}.
func (s Set) MarshalJSON() ([]byte, error) {
	raw := make(map[string][][2]int, len(s))
	for name, pts := range s {
		region := make([][2]int, len(pts))
		for i, p := range pts {
			region[i] = [2]int{p.X, p.Y}
		}
		raw[name] = region
	}
	return json.Marshal(raw)
}

// Regions returns the region names in a stable order.
func (s Set) Regions() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Set) region(name string, need int) ([]image.Point, error) {
	pts, ok := s[name]
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "missing region %q", name)
	}
	if len(pts) < need {
		return nil, errors.Wrapf(ErrMalformed, "%s has %d points, need %d", name, len(pts), need)
	}
	return pts, nil
}

// Eye is a six point eye contour named by image-space position.
// Left and Right are the horizontal corners, the remaining points are the lids.
type Eye struct {
	Left        image.Point // 0
	TopLeft     image.Point // 1
	TopRight    image.Point // 2
	Right       image.Point // 3
	BottomRight image.Point // 4
	BottomLeft  image.Point // 5
}

// Polygon returns the contour in detector order.
func (e Eye) Polygon() []image.Point {
	return []image.Point{e.Left, e.TopLeft, e.TopRight, e.Right, e.BottomRight, e.BottomLeft}
}

// Width is the horizontal corner to corner span.
func (e Eye) Width() int {
	return e.Right.X - e.Left.X
}

// Opening is the larger of the two vertical lid spans.
func (e Eye) Opening() int {
	return max(abs(e.TopLeft.Y-e.BottomLeft.Y), abs(e.BottomRight.Y-e.TopRight.Y))
}

func eyeFrom(name string, pts []image.Point) (Eye, error) {
	if len(pts) != 6 {
		return Eye{}, errors.Wrapf(ErrMalformed, "%s has %d points, need exactly 6", name, len(pts))
	}
	return Eye{
		Left:        pts[0],
		TopLeft:     pts[1],
		TopRight:    pts[2],
		Right:       pts[3],
		BottomRight: pts[4],
		BottomLeft:  pts[5],
	}, nil
}

// Eyes returns the left_eye and right_eye contours.
func (s Set) Eyes() (left, right Eye, err error) {
	pts, err := s.region(LeftEye, 6)
	if err != nil {
		return Eye{}, Eye{}, err
	}
	if left, err = eyeFrom(LeftEye, pts); err != nil {
		return Eye{}, Eye{}, err
	}
	if pts, err = s.region(RightEye, 6); err != nil {
		return Eye{}, Eye{}, err
	}
	if right, err = eyeFrom(RightEye, pts); err != nil {
		return Eye{}, Eye{}, err
	}
	return left, right, nil
}

// Mouth names the jaw and lip points the mouth cross is anchored on.
type Mouth struct {
	JawLeft       image.Point // chin[1]
	JawLowerLeft  image.Point // chin[5]
	JawLowerRight image.Point // chin[10]
	JawRight      image.Point // chin[15]

	UpperLipLeft  image.Point // top_lip[1]
	UpperLipRight image.Point // top_lip[5]
	LowerLipLeft  image.Point // bottom_lip[5]
	LowerLipRight image.Point // bottom_lip[1]
}

// FaceWidth is the horizontal jaw span.
func (m Mouth) FaceWidth() int {
	return m.JawRight.X - m.JawLeft.X
}

// Mouth returns the named mouth points. chin needs 16 points, each lip 7.
func (s Set) Mouth() (Mouth, error) {
	chin, err := s.region(Chin, 16)
	if err != nil {
		return Mouth{}, err
	}
	top, err := s.region(TopLip, 7)
	if err != nil {
		return Mouth{}, err
	}
	bottom, err := s.region(BottomLip, 7)
	if err != nil {
		return Mouth{}, err
	}
	return Mouth{
		JawLeft:       chin[1],
		JawLowerLeft:  chin[5],
		JawLowerRight: chin[10],
		JawRight:      chin[15],
		UpperLipLeft:  top[1],
		UpperLipRight: top[5],
		LowerLipLeft:  bottom[5],
		LowerLipRight: bottom[1],
	}, nil
}

// Validate checks every region the filter reads.
func (s Set) Validate() error {
	if _, _, err := s.Eyes(); err != nil {
		return err
	}
	_, err := s.Mouth()
	return err
}

// Bounds returns the bounding box of points: Min is (x_min, y_min) and Max is (x_max, y_max).
// Cropping to it excludes the Max row and column.
func Bounds(points []image.Point) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	return r
}

// Static is a detector that returns the same faces for every image.
type Static []Set

// Load reads a JSON file holding either one face or a list of faces.
func Load(path string) (Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var faces []Set
	if err := json.Unmarshal(data, &faces); err != nil {
		var one Set
		if err2 := json.Unmarshal(data, &one); err2 != nil {
			return nil, errors.Wrapf(err, "decode landmarks %s", path)
		}
		faces = []Set{one}
	}
	return Static(faces), nil
}

// Detect returns a copy of the stored faces.
func (s Static) Detect(_ context.Context, _ image.Image) ([]Set, error) {
	return append([]Set(nil), s...), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
