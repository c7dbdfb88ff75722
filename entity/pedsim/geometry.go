package pedsim

import (
	"fmt"
	"os"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity/shapes"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/polygon"
)

const (
	// 孔洞最小面积，小于该值的孔洞视为浮点噪声被丢弃
	minHoleArea = 0.01
	// 步行连接区车道对应的注册多边形的id前缀
	walkingAreaShapePrefix = "wa:"
)

// isWalkingArea 检查车道是否为步行连接区（路口内无冲突点的步行道）
func isWalkingArea(l entity.ILane) bool {
	return l.InJunction() && l.IsWalkLane() && len(l.Overlaps()) == 0
}

// isNormal 检查车道是否为道路上的人行道
func isNormal(l entity.ILane) bool {
	return l.InRoad() && l.IsWalkLane()
}

// adjacentLanesOfLane 获取车道的相邻车道（前驱与后继的并集）
func adjacentLanesOfLane(l entity.ILane) []entity.ILane {
	adjacent := make([]entity.ILane, 0, len(l.Predecessors())+len(l.Successors()))
	for _, conn := range l.Predecessors() {
		adjacent = append(adjacent, conn.Lane)
	}
	for _, conn := range l.Successors() {
		adjacent = append(adjacent, conn.Lane)
	}
	return adjacent
}

// getWalkingAreaInbetween 查找连接两条车道的步行连接区
// 功能：在lane的相邻车道中查找一个步行连接区，其相邻车道集合包含other
// 返回：连接两者的步行连接区车道，不存在时返回nil
func getWalkingAreaInbetween(lane, other entity.ILane) entity.ILane {
	for _, next := range adjacentLanesOfLane(lane) {
		if !isWalkingArea(next) {
			continue
		}
		for _, candidate := range adjacentLanesOfLane(next) {
			if candidate == other {
				return next
			}
		}
	}
	return nil
}

// isPredecessorOf 检查lane是否为步行连接区的前驱
func isPredecessorOf(walkingArea, lane entity.ILane) bool {
	_, ok := walkingArea.Predecessors()[lane.ID()]
	return ok
}

// getAnchor 计算车道在步行连接区上的锚点
// 说明：车道是连接区的前驱时取车道中心线终点，否则取起点
func getAnchor(walkingArea, lane entity.ILane) geometry.Point {
	line := lane.CenterLine()
	if isPredecessorOf(walkingArea, lane) {
		return line[len(line)-1]
	}
	return line[0]
}

// geometryFromShape 将闭合点序列转为简单多边形
// 功能：自动补齐闭合点并检查简单性
// 返回：简单多边形，非简单时返回nil（调用方跳过该多边形）
func geometryFromShape(points []geometry.Point) *geom.Geometry {
	g, err := polygon.NewRing(points)
	if err != nil {
		return nil
	}
	if !polygon.IsSimple(g) {
		// 非简单多边形会破坏后续的合并运算
		return nil
	}
	return &g
}

// geometryFromAnchors 由两条车道的锚点合成连接区多边形
// 功能：等宽时对锚点连线做半宽圆头缓冲，不等宽时取两锚点缓冲圆盘的凸包
// 返回：连接区多边形，合成失败时返回nil
func geometryFromAnchors(anchor geometry.Point, lane entity.ILane, otherAnchor geometry.Point, otherLane entity.ILane) *geom.Geometry {
	if lane.Width() == otherLane.Width() {
		g, err := polygon.BufferPolyline([]geometry.Point{anchor, otherAnchor}, lane.Width()/2)
		if err != nil {
			return nil
		}
		return &g
	}
	disk := polygon.BufferPoint(anchor, lane.Width()/2)
	otherDisk := polygon.BufferPoint(otherAnchor, otherLane.Width()/2)
	union, err := polygon.UnionAll([]geom.Geometry{disk, otherDisk})
	if err != nil {
		return nil
	}
	hull := polygon.ConvexHull(union)
	return &hull
}

// sortedLanes 对车道集合按ID排序，保证构建过程的确定性
func sortedLanes(set map[int32]entity.ILane) []entity.ILane {
	ids := make([]int32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	lanes := make([]entity.ILane, len(ids))
	for i, id := range ids {
		lanes[i] = set[id]
	}
	return lanes
}

// adjacentLanesOfJunction 收集路口的相邻非连接区步行车道
// 功能：包含路口内的人行横道与通过步行拓扑直接连接到路口的道路人行道
func adjacentLanesOfJunction(j entity.IJunction) []entity.ILane {
	set := make(map[int32]entity.ILane)
	for _, c := range j.Crossings() {
		set[c.ID()] = c
	}
	for _, wl := range j.WalkingLanes() {
		for _, next := range adjacentLanesOfLane(wl) {
			if isNormal(next) {
				set[next.ID()] = next
			}
		}
	}
	return sortedLanes(set)
}

// buildPedestrianNetwork 构建行人可通行区域
// 功能：对每个路口缓冲相邻步行车道、合成连接区多边形，叠加注册的可通行
// 多边形，合并后减去障碍物多边形
// 返回：合并后的可通行区域（可能含多个连通分量）
// 算法说明：
//  1. 对每个路口的每条相邻步行车道，按半宽圆头缓冲中心线
//  2. 对每个有序车道对，查找连接两者的步行连接区，按分类规则合成连接区多边形：
//     人行道/人行道优先使用注册的连接区形状（须简单），否则锚点合成；
//     人行道/人行横道仅当连接区的相关邻接车道均非人行道时锚点合成；
//     人行横道/人行横道总是锚点合成
//  3. 注册表中的可通行区域与TAZ多边形并入可通行集合，障碍物并入障碍集合
//  4. 对可通行集合求并，对障碍集合求并，再做差
//  5. 结果必须是简单几何，否则直接失败
func buildPedestrianNetwork(ctx entity.ITaskContext) (geom.Geometry, error) {
	walkables := make([]geom.Geometry, 0)
	obstacles := make([]geom.Geometry, 0)

	junctionIDs := make([]int32, 0, len(ctx.JunctionManager().Data()))
	for id := range ctx.JunctionManager().Data() {
		junctionIDs = append(junctionIDs, id)
	}
	sort.Slice(junctionIDs, func(i, j int) bool { return junctionIDs[i] < junctionIDs[j] })

	for _, jid := range junctionIDs {
		j := ctx.JunctionManager().Get(jid)
		adjacent := adjacentLanesOfJunction(j)
		for _, lane := range adjacent {
			dilated, err := polygon.BufferPolyline(lane.CenterLine(), lane.Width()/2)
			if err != nil {
				return geom.Geometry{}, fmt.Errorf("buffer lane %d: %w", lane.ID(), err)
			}
			walkables = append(walkables, dilated)
			for _, nextLane := range adjacent {
				if nextLane == lane {
					continue
				}
				walkingArea := getWalkingAreaInbetween(lane, nextLane)
				if walkingArea == nil {
					continue
				}
				var anchor, nextAnchor geometry.Point
				switch {
				case isNormal(lane) && isNormal(nextLane):
					// 优先使用注册的连接区形状
					if shape, ok := ctx.ShapeManager().Get(fmt.Sprintf("%s%d", walkingAreaShapePrefix, walkingArea.ID())); ok {
						if g := geometryFromShape(shape.Points); g != nil {
							walkables = append(walkables, *g)
							continue
						}
					}
					anchor = getAnchor(walkingArea, lane)
					nextAnchor = getAnchor(walkingArea, nextLane)
				case isNormal(lane) != isNormal(nextLane):
					// 人行道/人行横道混合：连接区的相关邻接车道均非人行道时才合成
					var relevant []entity.ILane
					if lane.IsCrossing() {
						for _, conn := range walkingArea.Predecessors() {
							relevant = append(relevant, conn.Lane)
						}
					} else {
						for _, conn := range walkingArea.Successors() {
							relevant = append(relevant, conn.Lane)
						}
					}
					anyNormal := false
					for _, e := range relevant {
						if isNormal(e) {
							anyNormal = true
							break
						}
					}
					if anyNormal {
						continue
					}
					anchor = getAnchor(walkingArea, lane)
					nextAnchor = getAnchor(walkingArea, nextLane)
				case lane.IsCrossing() && nextLane.IsCrossing():
					anchor = getAnchor(walkingArea, lane)
					nextAnchor = getAnchor(walkingArea, nextLane)
				default:
					continue
				}
				if g := geometryFromAnchors(anchor, lane, nextAnchor, nextLane); g != nil {
					walkables = append(walkables, *g)
				}
			}
		}
	}

	// 注册表中的额外可通行区域与障碍物
	for _, typ := range []string{shapes.TypeWalkableArea, shapes.TypeTaz} {
		for _, shape := range ctx.ShapeManager().ByType(typ) {
			if len(shape.ID) >= len(walkingAreaShapePrefix) && shape.ID[:len(walkingAreaShapePrefix)] == walkingAreaShapePrefix {
				// 绑定到步行连接区车道的形状已在上面的连接区合成中使用
				continue
			}
			if g := geometryFromShape(shape.Points); g != nil {
				walkables = append(walkables, *g)
			}
		}
	}
	for _, shape := range ctx.ShapeManager().ByType(shapes.TypeObstacle) {
		if g := geometryFromShape(shape.Points); g != nil {
			obstacles = append(obstacles, *g)
		}
	}

	if len(walkables) == 0 {
		return geom.Geometry{}, fmt.Errorf("no walkable area found in the network")
	}

	initial, err := polygon.UnionAll(walkables)
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("union walkable areas: %w", err)
	}
	dumpGeometry(ctx, initial, "initial_walkable_areas.wkt")

	final := initial
	if len(obstacles) > 0 {
		obstacleUnion, err := polygon.UnionAll(obstacles)
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("union obstacles: %w", err)
		}
		final, err = polygon.Difference(initial, obstacleUnion)
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("subtract obstacles: %w", err)
		}
	}
	dumpGeometry(ctx, final, "final_walkable_areas.wkt")

	if !polygon.IsSimple(final) {
		return geom.Geometry{}, fmt.Errorf("union of walkable areas minus union of obstacles is not a simple polygon")
	}
	return final, nil
}

// selectLargestComponent 选择面积最大的连通分量
// 功能：引擎只支持单连通区域，存在多个连通分量时告警并取最大者
func selectLargestComponent(network geom.Geometry) (geom.Polygon, int) {
	components := polygon.Components(network)
	return polygon.LargestComponent(components), len(components)
}

// registerNetworkShape 将可通行区域注册到形状注册表供展示使用
// 说明：过滤小于最小面积的孔洞
func registerNetworkShape(ctx entity.ITaskContext, component geom.Polygon) {
	filtered := polygon.FilterHoles(component, minHoleArea)
	shape := &shapes.Shape{
		ID:     shapes.TypePedestrianNetwork,
		Type:   shapes.TypePedestrianNetwork,
		Points: polygon.RingPoints(filtered.ExteriorRing()),
	}
	for i := 0; i < filtered.NumInteriorRings(); i++ {
		shape.Holes = append(shape.Holes, polygon.RingPoints(filtered.InteriorRingN(i)))
	}
	ctx.ShapeManager().Register(shape)
}

// dumpGeometry 将中间几何结果以WKT格式落盘，用于诊断
func dumpGeometry(ctx entity.ITaskContext, g geom.Geometry, filename string) {
	if !ctx.RuntimeConfig().C.Pedsim.DumpGeometry {
		return
	}
	if err := os.WriteFile(filename, []byte(polygon.WKT(g)+"\n"), 0644); err != nil {
		log.Errorf("failed to dump geometry to %s: %v", filename, err)
	}
}
