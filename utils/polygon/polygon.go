// Package polygon 提供行人网络几何构建所需的多边形代数运算
// （缓冲、并集、差集、凸包、简单性检查等），基于simplefeatures库实现
package polygon

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/peterstace/simplefeatures/geom"
)

const (
	// 圆弧离散化时每四分之一圆的分段数
	QuadrantSegments = 16
)

// NewRing 由顶点序列构造多边形（自动闭合外环）
//
// 参数:
//   - points: 顶点序列，首尾可以不重合
//
// 返回:
//   - 多边形Geometry，顶点数不足3时返回error
func NewRing(points []geometry.Point) (geom.Geometry, error) {
	if len(points) < 3 {
		return geom.Geometry{}, fmt.Errorf("polygon: ring needs at least 3 points, got %d", len(points))
	}
	coords := make([]float64, 0, 2*(len(points)+1))
	for _, p := range points {
		coords = append(coords, p.X, p.Y)
	}
	// 闭合
	first, last := points[0], points[len(points)-1]
	if first.X != last.X || first.Y != last.Y {
		coords = append(coords, first.X, first.Y)
	}
	ring := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ring})
	if err := poly.Validate(); err != nil {
		return geom.Geometry{}, fmt.Errorf("polygon: invalid ring: %w", err)
	}
	return poly.AsGeometry(), nil
}

// arc 生成圆弧离散点，从角度from逆时针扫到to（弧度），不含终点
func arc(center geometry.Point, radius, from, to float64, out []float64) []float64 {
	n := int(math.Ceil((to - from) / (math.Pi / 2) * QuadrantSegments))
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		a := from + (to-from)*float64(i)/float64(n)
		out = append(out, center.X+radius*math.Cos(a), center.Y+radius*math.Sin(a))
	}
	return out
}

// BufferPoint 以指定点为圆心生成离散圆盘多边形
func BufferPoint(center geometry.Point, radius float64) geom.Geometry {
	coords := arc(center, radius, 0, 2*math.Pi, nil)
	coords = append(coords, coords[0], coords[1])
	ring := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring}).AsGeometry()
}

// bufferSegment 对单条线段做圆头缓冲，生成胶囊形多边形
func bufferSegment(a, b geometry.Point, radius float64) geom.Geometry {
	theta := math.Atan2(b.Y-a.Y, b.X-a.X)
	// 左法线方向 theta+π/2，两端圆头各扫半圈
	coords := arc(b, radius, theta-math.Pi/2, theta+math.Pi/2, nil)
	coords = arc(a, radius, theta+math.Pi/2, theta+3*math.Pi/2, coords)
	coords = append(coords, coords[0], coords[1])
	ring := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring}).AsGeometry()
}

// BufferPolyline 对折线做圆头缓冲（膨胀），等价于按radius的
// round-cap/round-join扩张，圆弧按QuadrantSegments离散
//
// 参数:
//   - points: 折线顶点，至少1个
//   - radius: 缓冲半径（米）
//
// 返回:
//   - 缓冲后的多边形Geometry
func BufferPolyline(points []geometry.Point, radius float64) (geom.Geometry, error) {
	if len(points) == 0 {
		return geom.Geometry{}, fmt.Errorf("polygon: empty polyline")
	}
	if len(points) == 1 {
		return BufferPoint(points[0], radius), nil
	}
	parts := make([]geom.Geometry, 0, len(points)-1)
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		if a.X == b.X && a.Y == b.Y {
			continue
		}
		parts = append(parts, bufferSegment(a, b, radius))
	}
	if len(parts) == 0 {
		return BufferPoint(points[0], radius), nil
	}
	return UnionAll(parts)
}

// UnionAll 依次合并多个几何体
func UnionAll(gs []geom.Geometry) (geom.Geometry, error) {
	if len(gs) == 0 {
		return geom.Geometry{}, fmt.Errorf("polygon: union of nothing")
	}
	u := gs[0]
	for _, g := range gs[1:] {
		var err error
		u, err = geom.Union(u, g)
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("polygon: union failed: %w", err)
		}
	}
	return u, nil
}

// Difference 求差集a-b
func Difference(a, b geom.Geometry) (geom.Geometry, error) {
	d, err := geom.Difference(a, b)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("polygon: difference failed: %w", err)
	}
	return d, nil
}

// ConvexHull 求凸包
func ConvexHull(g geom.Geometry) geom.Geometry {
	return g.ConvexHull()
}

// IsSimple 检查几何体是否简单（无自相交）。
// 对多边形同时要求其为合法多边形
func IsSimple(g geom.Geometry) bool {
	if g.IsPolygon() || g.IsMultiPolygon() {
		return g.Validate() == nil
	}
	simple, ok := g.IsSimple()
	return ok && simple
}

// Components 拆出几何体中的全部多边形连通分量
func Components(g geom.Geometry) []geom.Polygon {
	switch {
	case g.IsPolygon():
		return []geom.Polygon{g.MustAsPolygon()}
	case g.IsMultiPolygon():
		mp := g.MustAsMultiPolygon()
		polys := make([]geom.Polygon, mp.NumPolygons())
		for i := range polys {
			polys[i] = mp.PolygonN(i)
		}
		return polys
	case g.IsGeometryCollection():
		gc := g.MustAsGeometryCollection()
		var polys []geom.Polygon
		for i := 0; i < gc.NumGeometries(); i++ {
			polys = append(polys, Components(gc.GeometryN(i))...)
		}
		return polys
	default:
		return nil
	}
}

// LargestComponent 返回面积最大的多边形连通分量
func LargestComponent(polys []geom.Polygon) geom.Polygon {
	best, bestArea := polys[0], polys[0].Area()
	for _, p := range polys[1:] {
		if a := p.Area(); a > bestArea {
			best, bestArea = p, a
		}
	}
	return best
}

// FilterHoles 过滤掉面积小于minArea的内环（孔洞）
func FilterHoles(p geom.Polygon, minArea float64) geom.Polygon {
	rings := []geom.LineString{p.ExteriorRing()}
	for i := 0; i < p.NumInteriorRings(); i++ {
		hole := p.InteriorRingN(i)
		holePoly := geom.NewPolygon([]geom.LineString{hole})
		if holePoly.Area() >= minArea {
			rings = append(rings, hole)
		}
	}
	return geom.NewPolygon(rings)
}

// RingPoints 提取环的顶点序列，去掉与首点重复的闭合点
func RingPoints(ring geom.LineString) []geometry.Point {
	seq := ring.Coordinates()
	n := seq.Length()
	if n == 0 {
		return nil
	}
	first := seq.GetXY(0)
	last := seq.GetXY(n - 1)
	if first == last {
		n--
	}
	points := make([]geometry.Point, n)
	for i := 0; i < n; i++ {
		xy := seq.GetXY(i)
		points[i] = geometry.Point{X: xy.X, Y: xy.Y}
	}
	return points
}

// Contains 判断点是否落在几何体内（含边界）
func Contains(g geom.Geometry, p geometry.Point) bool {
	pt := geom.XY{X: p.X, Y: p.Y}.AsPoint()
	return geom.Intersects(g, pt.AsGeometry())
}

// Bounds 计算顶点集的轴对齐包围盒
func Bounds(points []geometry.Point) (min, max geometry.Point) {
	min = geometry.Point{X: math.Inf(1), Y: math.Inf(1)}
	max = geometry.Point{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range points {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return
}

// WKT 输出几何体的WKT文本（调试用）
func WKT(g geom.Geometry) string {
	return g.AsText()
}
