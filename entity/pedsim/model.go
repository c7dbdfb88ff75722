// Package pedsim 行人微观模型。
// 由路网步行车道与注册形状构建单连通的可通行区域，接入行人动力学引擎，
// 维护行人的引擎状态与宿主路网车道坐标之间的双向映射。
// 宿主每步先推进本模型，person实体再从模型读回自身状态
package pedsim

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/jupedsim"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/polygon"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/randengine"
)

const (
	// 默认行人半径（米），人的长宽属性缺失时使用
	defaultRadius = .3
	// 路径匹配的最大接受距离（米），超过该距离视为未匹配到车道
	maxMatchDistance = 10
	// 随机出发位置的拒绝采样次数上限
	maxSamplingAttempts = 10000
	// 随机数种子
	randomSeed = 43

	// 无碰撞速度模型参数

	strengthNeighborRepulsion = 8.0
	rangeNeighborRepulsion    = .1
	strengthGeometryRepulsion = 5.0
	rangeGeometryRepulsion    = .02
)

// Model 行人微观模型
// 说明：所有方法在宿主的单线程步进循环中调用，无内部并发
type Model struct {
	ctx    entity.ITaskContext
	engine jupedsim.Engine

	// 引擎句柄，按Init的创建顺序持有，Close时逆序释放

	geometry jupedsim.Geometry
	model    jupedsim.Model
	sim      jupedsim.Simulation

	// 行人状态，states保持插入顺序，byPerson按人员ID索引。
	// 行人到达终点后从states中移除但保留在byPerson中，
	// 等待person实体消费到达状态后调用Remove清除
	states      []*PState
	byPerson    map[int32]*PState
	activeCount int
	// 出发过的人，随机出发位置只对首次出发生效
	departed map[int32]struct{}

	exitTolerance float64 // 途经点到达容差（米）
	engineDT      float64 // 引擎时间步长（秒）

	generator *randengine.Engine // 随机出发位置采样
}

// NewModel 创建行人微观模型
func NewModel(ctx entity.ITaskContext, engine jupedsim.Engine) *Model {
	return &Model{
		ctx:           ctx,
		engine:        engine,
		byPerson:      make(map[int32]*PState),
		departed:      make(map[int32]struct{}),
		exitTolerance: ctx.RuntimeConfig().C.Pedsim.ExitTolerance,
		engineDT:      ctx.RuntimeConfig().C.Pedsim.StepInterval,
		generator:     randengine.New(randomSeed),
	}
}

// Init 构建可通行区域并创建引擎实例
// 算法说明：
// 1. 由路网与注册形状构建可通行区域（见buildPedestrianNetwork）
// 2. 存在多个连通分量时告警并取面积最大者
// 3. 过滤小孔洞后将外环与内环送入引擎几何构建器
// 4. 构建无碰撞速度模型并创建引擎仿真实例
// 说明：任一环节失败都是不可恢复的配置或数据错误，直接panic
func (m *Model) Init() {
	network, err := buildPedestrianNetwork(m.ctx)
	if err != nil {
		log.Panicf("failed to build pedestrian network: %v", err)
	}
	component, count := selectLargestComponent(network)
	if count > 1 {
		log.Warnf("pedestrian network has %d disjoint components, keeping the largest one", count)
	}
	component = polygon.FilterHoles(component, minHoleArea)
	registerNetworkShape(m.ctx, component)

	geometryBuilder := m.engine.NewGeometryBuilder()
	geometryBuilder.AddAccessibleArea(toEnginePoints(polygon.RingPoints(component.ExteriorRing())))
	for i := 0; i < component.NumInteriorRings(); i++ {
		geometryBuilder.ExcludeFromAccessibleArea(toEnginePoints(polygon.RingPoints(component.InteriorRingN(i))))
	}
	if m.geometry, err = geometryBuilder.Build(); err != nil {
		log.Panicf("failed to build engine geometry: %v", err)
	}

	modelBuilder := m.engine.NewCollisionFreeSpeedModelBuilder(jupedsim.CollisionFreeSpeedModelParameters{
		StrengthNeighborRepulsion: strengthNeighborRepulsion,
		RangeNeighborRepulsion:    rangeNeighborRepulsion,
		StrengthGeometryRepulsion: strengthGeometryRepulsion,
		RangeGeometryRepulsion:    rangeGeometryRepulsion,
	})
	if m.model, err = modelBuilder.Build(); err != nil {
		log.Panicf("failed to build engine model: %v", err)
	}
	if m.sim, err = m.engine.NewSimulation(m.model, m.geometry, m.engineDT); err != nil {
		log.Panicf("failed to create engine simulation: %v", err)
	}
	log.Infof("pedestrian model initialized, dt=%v, exit tolerance=%v", m.engineDT, m.exitTolerance)
}

// TryAdd 尝试将行人插入引擎
// 功能：计算出发位置与途经点序列，注册引擎行程并插入行人
// 返回：行程注册失败时返回error；插入位置被占用不算失败，
// 行人进入等待状态，在后续Update中重试插入
// 说明：重复插入同一行人是幂等的
func (m *Model) TryAdd(p entity.IPerson) error {
	if _, ok := m.byPerson[p.ID()]; ok {
		return nil
	}
	targets := p.UpcomingWalkingTargets()
	if len(targets) == 0 {
		return fmt.Errorf("person %d has no walking target", p.ID())
	}

	start := p.Lane().GetOffsetPositionByS(p.S(), -p.LateralOffset())
	if _, again := m.departed[p.ID()]; !again {
		if v, ok := p.GetLabel("departure"); ok && v == "random_location" {
			start = m.sampleDeparture(p, start)
		}
	}

	waypoints := make([]geometry.Point, 0, len(targets))
	for _, target := range targets {
		waypoints = append(waypoints, target.Lane.GetPositionByS(target.S))
	}

	journey := jupedsim.NewJourneyDescription()
	var firstStage, lastStage jupedsim.StageID
	for i, wp := range waypoints {
		stage, err := m.sim.AddWaypointStage(toEnginePoint(wp), m.exitTolerance)
		if err != nil {
			return fmt.Errorf("add waypoint stage for person %d: %w", p.ID(), err)
		}
		journey.AddStage(stage)
		if i == 0 {
			firstStage = stage
		} else if err := journey.SetFixedTransition(lastStage, stage); err != nil {
			return fmt.Errorf("set transition for person %d: %w", p.ID(), err)
		}
		lastStage = stage
	}
	journeyID, err := m.sim.AddJourney(journey)
	if err != nil {
		return fmt.Errorf("add journey for person %d: %w", p.ID(), err)
	}

	state := &PState{
		person:           p,
		journey:          journey,
		journeyID:        journeyID,
		stageID:          firstStage,
		position:         start,
		previousPosition: start,
		lane:             p.Lane(),
		s:                p.S(),
		waypoints:        waypoints,
		segments:         p.WalkingAhead(),
	}
	m.states = append(m.states, state)
	m.byPerson[p.ID()] = state
	m.departed[p.ID()] = struct{}{}
	m.activeCount++
	m.tryInsertion(state)
	return nil
}

// tryInsertion 尝试把行人实际插入引擎
// 说明：插入位置被其他行人占用时引擎会拒绝，此时置等待标志，
// 由Update在每个宿主步重试
func (m *Model) tryInsertion(state *PState) {
	agentID, err := m.sim.AddAgent(jupedsim.AgentParameters{
		Position: toEnginePoint(state.position),
		Journey:  state.journeyID,
		Stage:    state.stageID,
		Radius:   radiusOf(state.person),
		V0:       state.person.WalkingSpeed(),
	})
	if err != nil {
		state.waitingToEnter = true
		return
	}
	state.agentID = agentID
	state.waitingToEnter = false
}

// radiusOf 由人的长宽属性推算引擎中的行人半径
func radiusOf(p entity.IPerson) float64 {
	length, width := p.Length(), p.Width()
	switch {
	case length > 0 && width > 0:
		return .25 * (length + width)
	case length > 0:
		return .5 * length
	case width > 0:
		return .5 * width
	default:
		return defaultRadius
	}
}

// sampleDeparture 在TAZ多边形内随机采样出发位置
// 说明：包围盒内拒绝采样，超过次数上限时告警并退回默认出发位置
func (m *Model) sampleDeparture(p entity.IPerson, fallback geometry.Point) geometry.Point {
	tazID, ok := p.GetLabel("taz")
	if !ok {
		log.Warnf("person %d requests random departure but has no taz label", p.ID())
		return fallback
	}
	shape, ok := m.ctx.ShapeManager().Get(tazID)
	if !ok {
		log.Warnf("person %d references unknown taz %s", p.ID(), tazID)
		return fallback
	}
	g := geometryFromShape(shape.Points)
	if g == nil {
		log.Warnf("taz %s is not a simple polygon", tazID)
		return fallback
	}
	min, max := shape.Bounds()
	for i := 0; i < maxSamplingAttempts; i++ {
		pt := geometry.Point{
			X: min.X + (max.X-min.X)*m.generator.Float64(),
			Y: min.Y + (max.Y-min.Y)*m.generator.Float64(),
		}
		if polygon.Contains(*g, pt) {
			return pt
		}
	}
	log.Warnf("failed to sample a random departure in taz %s for person %d", tazID, p.ID())
	return fallback
}

// Update 推进引擎一个宿主步长
// 功能：按引擎步长细分推进，然后按插入顺序回读每个行人的状态
// 算法说明：
//  1. 推进dt/engineDT个引擎子步
//  2. 等待插入的行人重试插入
//  3. 回读位置与朝向，推算速度，前向匹配到步行路径上的车道
//  4. 与下一途经点距离严格小于2倍到达容差时推进途经点，
//     最后一个途经点被消耗时行人到达终点并移出引擎
func (m *Model) Update(dt float64) {
	substeps := int(math.Round(dt / m.engineDT))
	if substeps < 1 {
		substeps = 1
	}
	for i := 0; i < substeps; i++ {
		if err := m.sim.Iterate(); err != nil {
			log.Errorf("engine iterate failed: %v", err)
		}
	}

	remaining := m.states[:0]
	for _, state := range m.states {
		if state.waitingToEnter {
			m.tryInsertion(state)
			remaining = append(remaining, state)
			continue
		}
		position, err := m.sim.AgentPosition(state.agentID)
		if err != nil {
			log.Errorf("failed to read position of person %d: %v", state.person.ID(), err)
			remaining = append(remaining, state)
			continue
		}
		orientation, err := m.sim.AgentOrientation(state.agentID)
		if err != nil {
			log.Errorf("failed to read orientation of person %d: %v", state.person.ID(), err)
			remaining = append(remaining, state)
			continue
		}
		state.previousPosition = state.position
		state.position = geometry.Point{X: position.X, Y: position.Y}
		state.v = distance2D(state.position, state.previousPosition) / dt
		state.angle = math.Atan2(orientation.Y, orientation.X)
		m.matchRoute(state)

		if m.drainReachedWaypoints(state) {
			state.arrived = true
			m.activeCount--
			if err := m.sim.MarkAgentForRemoval(state.agentID); err != nil {
				log.Errorf("failed to remove person %d from engine: %v", state.person.ID(), err)
			}
			// byPerson中保留到达状态，等待person实体消费
			continue
		}
		remaining = append(remaining, state)
	}
	// 去除尾部悬挂引用
	for i := len(remaining); i < len(m.states); i++ {
		m.states[i] = nil
	}
	m.states = remaining
}

// drainReachedWaypoints 依次弹出所有已进入接受范围（严格小于2倍容差）的途经点，
// 返回是否弹出了最后一个途经点（即到达终点）
func (m *Model) drainReachedWaypoints(state *PState) bool {
	arrived := false
	for len(state.waypoints) > 0 &&
		distance2D(state.position, state.nextWaypoint()) < 2*m.exitTolerance {
		if state.advanceNextWaypoint() {
			arrived = true
		}
	}
	return arrived
}

// matchRoute 把引擎坐标前向匹配到步行路径上的车道
// 说明：只在已匹配段之后查找，取投影距离最近且不超过接受阈值的车道；
// 无车道落在阈值内时保持上一次的匹配结果
func (m *Model) matchRoute(state *PState) {
	bestIndex := -1
	bestDistance := math.Inf(1)
	bestS := .0
	for i := state.segIndex; i < len(state.segments); i++ {
		lane := state.segments[i].Lane
		s := lane.ProjectToLane(state.position)
		d := distance2D(state.position, lane.GetPositionByS(s))
		if d < bestDistance {
			bestIndex = i
			bestDistance = d
			bestS = s
		}
	}
	if bestIndex < 0 || bestDistance > maxMatchDistance {
		return
	}
	state.segIndex = bestIndex
	state.lane = state.segments[bestIndex].Lane
	state.s = bestS
}

// Remove 将行人移出引擎并清除其状态
func (m *Model) Remove(p entity.IPerson) {
	state, ok := m.byPerson[p.ID()]
	if !ok {
		return
	}
	if !state.arrived {
		m.activeCount--
		if !state.waitingToEnter {
			if err := m.sim.MarkAgentForRemoval(state.agentID); err != nil {
				log.Errorf("failed to remove person %d from engine: %v", p.ID(), err)
			}
		}
		for i, s := range m.states {
			if s == state {
				m.states = append(m.states[:i], m.states[i+1:]...)
				break
			}
		}
	}
	delete(m.byPerson, p.ID())
	state.release()
}

// Get 查询行人的引擎状态
func (m *Model) Get(personID int32) (entity.IPedestrianState, bool) {
	state, ok := m.byPerson[personID]
	if !ok {
		return nil, false
	}
	return state, true
}

// ActiveCount 引擎内行人数（不含已到达待消费的行人）
func (m *Model) ActiveCount() int {
	return m.activeCount
}

// ClearState 清空全部行人状态，引擎实例保留
func (m *Model) ClearState() {
	for _, state := range m.states {
		if !state.waitingToEnter && !state.arrived {
			if err := m.sim.MarkAgentForRemoval(state.agentID); err != nil {
				log.Errorf("failed to remove person %d from engine: %v", state.person.ID(), err)
			}
		}
	}
	for id, state := range m.byPerson {
		state.release()
		delete(m.byPerson, id)
	}
	m.states = nil
	m.activeCount = 0
	m.departed = make(map[int32]struct{})
}

// Close 按序释放引擎资源
func (m *Model) Close() {
	for _, state := range m.byPerson {
		state.release()
	}
	m.states = nil
	m.byPerson = nil
	if m.sim != nil {
		m.sim.Close()
		m.sim = nil
	}
	if m.model != nil {
		m.model.Close()
		m.model = nil
	}
	if m.geometry != nil {
		m.geometry.Close()
		m.geometry = nil
	}
}

func toEnginePoint(p geometry.Point) jupedsim.Point {
	return jupedsim.Point{X: p.X, Y: p.Y}
}

func toEnginePoints(points []geometry.Point) []jupedsim.Point {
	out := make([]jupedsim.Point, len(points))
	for i, p := range points {
		out[i] = toEnginePoint(p)
	}
	return out
}

func distance2D(a, b geometry.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
