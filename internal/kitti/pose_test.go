package kitti

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rotZ90 rotates 90 degrees about z.
var rotZ90 = [9]float64{
	0, -1, 0,
	1, 0, 0,
	0, 0, 1,
}

func TestPose_Apply(t *testing.T) {
	p := NewPose(rotZ90, [3]float64{1, 2, 3})
	x, y, z := p.Apply(1, 0, 0)
	assert.InDelta(t, 1.0, x, 1e-12)
	assert.InDelta(t, 3.0, y, 1e-12)
	assert.InDelta(t, 3.0, z, 1e-12)
}

func TestPose_InverseCompose(t *testing.T) {
	p := NewPose(rotZ90, [3]float64{1, 2, 3})
	inv, err := p.Inverse()
	require.NoError(t, err)

	assert.True(t, p.Compose(inv).ApproxEqual(IdentityPose(), 1e-12))
	assert.True(t, inv.Compose(p).ApproxEqual(IdentityPose(), 1e-12))

	x, y, z := inv.Apply(p.Apply(0.5, -1, 2))
	assert.InDelta(t, 0.5, x, 1e-12)
	assert.InDelta(t, -1.0, y, 1e-12)
	assert.InDelta(t, 2.0, z, 1e-12)
}

func TestPose_ComposeOrder(t *testing.T) {
	rot := NewPose(rotZ90, [3]float64{})
	shift := NewPose(IdentityPose().Rotation(), [3]float64{1, 0, 0})

	// Shift first, then rotate: (1,0,0)+(1,0,0) -> (2,0,0) -> (0,2,0).
	x, y, _ := rot.Compose(shift).Apply(1, 0, 0)
	assert.InDelta(t, 0.0, x, 1e-12)
	assert.InDelta(t, 2.0, y, 1e-12)
}

func TestPose_IsRigid(t *testing.T) {
	assert.True(t, IdentityPose().IsRigid())
	assert.True(t, NewPose(rotZ90, [3]float64{5, 5, 5}).IsRigid())

	scaled := NewPose([9]float64{2, 0, 0, 0, 2, 0, 0, 0, 2}, [3]float64{})
	assert.False(t, scaled.IsRigid())

	reflected := NewPose([9]float64{-1, 0, 0, 0, 1, 0, 0, 0, 1}, [3]float64{})
	assert.False(t, reflected.IsRigid())

	badRow := IdentityPose()
	badRow.T[12] = 1
	assert.False(t, badRow.IsRigid())
}

func TestPose_InverseSingular(t *testing.T) {
	_, err := Pose{}.Inverse()
	assert.Error(t, err)
}

func TestPose_TranslationNorm(t *testing.T) {
	p := NewPose(IdentityPose().Rotation(), [3]float64{3, 4, 0})
	assert.InDelta(t, 5.0, p.TranslationNorm(), 1e-12)
	assert.Contains(t, p.String(), "3.0000")
}
