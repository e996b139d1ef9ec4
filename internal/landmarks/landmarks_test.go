package landmarks

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalSet(t *testing.T) {
	var s Set
	err := json.Unmarshal([]byte(`{"left_eye": [[1, 2], [3.4, 4.6]], "chin": []}`), &s)
	require.NoError(t, err)
	assert.Equal(t, []image.Point{{1, 2}, {3, 5}}, s[LeftEye])
	assert.Empty(t, s[Chin])
	assert.Equal(t, []string{Chin, LeftEye}, s.Regions())

	err = json.Unmarshal([]byte(`{"left_eye": [[1, 2, 3]]}`), &s)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestSetRoundTripKeepsOrder(t *testing.T) {
	face := Synthetic(image.Point{}, 1)
	data, err := json.Marshal(face)
	require.NoError(t, err)

	var back Set
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, face[TopLip], back[TopLip])
}

func TestEyesNamedPoints(t *testing.T) {
	left, right, err := Synthetic(image.Point{}, 1).Eyes()
	require.NoError(t, err)

	assert.Equal(t, image.Pt(60, 80), left.Left)
	assert.Equal(t, image.Pt(82, 80), left.Right)
	assert.Equal(t, image.Pt(140, 80), right.Right)
	assert.Equal(t, 22, left.Width())
	assert.Equal(t, 9, right.Opening())
	assert.Len(t, left.Polygon(), 6)
}

func TestMouthNamedPoints(t *testing.T) {
	m, err := Synthetic(image.Point{}, 1).Mouth()
	require.NoError(t, err)

	assert.Equal(t, image.Pt(42, 97), m.JawLeft)
	assert.Equal(t, image.Pt(158, 97), m.JawRight)
	assert.Equal(t, image.Pt(121, 163), m.JawLowerRight)
	assert.Equal(t, image.Pt(87, 135), m.UpperLipLeft)
	assert.Equal(t, image.Pt(113, 148), m.LowerLipRight)
	assert.Equal(t, 116, m.FaceWidth())
}

func TestValidateMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(Set)
	}{
		{"missing left eye", func(s Set) { delete(s, LeftEye) }},
		{"short right eye", func(s Set) { s[RightEye] = s[RightEye][:5] }},
		{"long left eye", func(s Set) { s[LeftEye] = append(s[LeftEye], image.Pt(0, 0)) }},
		{"short chin", func(s Set) { s[Chin] = s[Chin][:15] }},
		{"short top lip", func(s Set) { s[TopLip] = s[TopLip][:6] }},
		{"missing bottom lip", func(s Set) { delete(s, BottomLip) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			face := Synthetic(image.Point{}, 1)
			tt.mutate(face)
			err := face.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}

	assert.NoError(t, Synthetic(image.Point{}, 1).Validate())
}

func TestBounds(t *testing.T) {
	r := Bounds([]image.Point{{5, 9}, {2, 3}, {7, 4}})
	assert.Equal(t, image.Rect(2, 3, 7, 9), r)
	assert.True(t, Bounds(nil).Empty())
}

func TestSyntheticScales(t *testing.T) {
	face := Synthetic(image.Pt(10, 20), 2)
	left, _, err := face.Eyes()
	require.NoError(t, err)
	assert.Equal(t, image.Pt(130, 180), left.Left)
}

func TestLoadStatic(t *testing.T) {
	dir := t.TempDir()

	one, err := json.Marshal(Synthetic(image.Point{}, 1))
	require.NoError(t, err)
	single := filepath.Join(dir, "one.json")
	require.NoError(t, os.WriteFile(single, one, 0o644))

	many := filepath.Join(dir, "many.json")
	require.NoError(t, os.WriteFile(many, []byte("["+string(one)+","+string(one)+"]"), 0o644))

	s, err := Load(single)
	require.NoError(t, err)
	faces, err := s.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, faces, 1)

	s, err = Load(many)
	require.NoError(t, err)
	assert.Len(t, s, 2)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
