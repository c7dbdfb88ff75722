package polygon

import (
	"math"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
)

func TestNewRing(t *testing.T) {
	// 未闭合输入自动闭合
	g, err := NewRing([]geometry.Point{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4},
	})
	assert.Nil(t, err)
	assert.True(t, g.IsPolygon())
	assert.InDelta(t, 16, g.MustAsPolygon().Area(), 1e-9)

	_, err = NewRing([]geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})
	assert.NotNil(t, err)
}

func TestBufferPolyline(t *testing.T) {
	// 长10宽2的胶囊: 面积 = 10*2 + π*1²
	g, err := BufferPolyline([]geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, 1)
	assert.Nil(t, err)
	area := g.MustAsPolygon().Area()
	expected := 20 + math.Pi
	// 离散圆弧面积略小于理论值
	assert.Less(t, math.Abs(area-expected)/expected, 0.01)
	assert.True(t, IsSimple(g))
}

func TestUnionDifference(t *testing.T) {
	a, _ := NewRing([]geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}})
	b, _ := NewRing([]geometry.Point{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}})
	d, err := Difference(a, b)
	assert.Nil(t, err)
	polys := Components(d)
	assert.Len(t, polys, 1)
	assert.InDelta(t, 96, polys[0].Area(), 1e-6)
	// 挖孔后出现一个内环
	assert.Equal(t, 1, polys[0].NumInteriorRings())
	// 小于阈值的孔被过滤
	filled := FilterHoles(polys[0], 5)
	assert.Equal(t, 0, filled.NumInteriorRings())
	kept := FilterHoles(polys[0], 1)
	assert.Equal(t, 1, kept.NumInteriorRings())
}

func TestComponentsAndLargest(t *testing.T) {
	a, _ := NewRing([]geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}})
	b, _ := NewRing([]geometry.Point{{X: 100, Y: 100}, {X: 110, Y: 100}, {X: 110, Y: 110}, {X: 100, Y: 110}})
	u, err := UnionAll([]geom.Geometry{a, b})
	assert.Nil(t, err)
	polys := Components(u)
	assert.Len(t, polys, 2)
	assert.InDelta(t, 100, LargestComponent(polys).Area(), 1e-9)
}

func TestRingPoints(t *testing.T) {
	g, _ := NewRing([]geometry.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}})
	pts := RingPoints(g.MustAsPolygon().ExteriorRing())
	// 闭合点被去除
	assert.Len(t, pts, 3)
}

func TestContainsAndBounds(t *testing.T) {
	ring := []geometry.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}
	g, _ := NewRing(ring)
	assert.True(t, Contains(g, geometry.Point{X: 2, Y: 2}))
	assert.False(t, Contains(g, geometry.Point{X: 5, Y: 5}))
	min, max := Bounds(ring)
	assert.Equal(t, geometry.Point{X: 0, Y: 0}, min)
	assert.Equal(t, geometry.Point{X: 4, Y: 4}, max)
}
