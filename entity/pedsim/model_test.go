package pedsim

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"

	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity/shapes"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/jupedsim"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/config"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/polygon"
)

// stubLane 沿x轴的直线车道
type stubLane struct {
	entity.ILane
	id     int32
	length float64
}

func (l *stubLane) ID() int32 { return l.id }

func (l *stubLane) GetPositionByS(s float64) geometry.Point {
	return geometry.Point{X: s, Y: 0}
}

func (l *stubLane) GetOffsetPositionByS(s, offset float64) geometry.Point {
	return geometry.Point{X: s, Y: offset}
}

func (l *stubLane) ProjectToLane(pos geometry.Point) float64 {
	if pos.X < 0 {
		return 0
	}
	if pos.X > l.length {
		return l.length
	}
	return pos.X
}

// stubPerson 固定属性与步行路径的行人
type stubPerson struct {
	entity.IPerson
	id      int32
	lane    entity.ILane
	s       float64
	targetS float64
	// 后续trip的终点S坐标（与targetS同车道）
	moreTargetS []float64
	speed       float64
	labels      map[string]string
}

func (p *stubPerson) ID() int32              { return p.id }
func (p *stubPerson) Lane() entity.ILane     { return p.lane }
func (p *stubPerson) S() float64             { return p.s }
func (p *stubPerson) Length() float64        { return 0 }
func (p *stubPerson) Width() float64         { return 0 }
func (p *stubPerson) WalkingSpeed() float64  { return p.speed }
func (p *stubPerson) LateralOffset() float64 { return 0 }

func (p *stubPerson) GetLabel(key string) (string, bool) {
	v, ok := p.labels[key]
	return v, ok
}

func (p *stubPerson) WalkingAhead() []entity.WalkingSegment {
	return []entity.WalkingSegment{{Lane: p.lane, Forward: true}}
}

func (p *stubPerson) UpcomingWalkingTargets() []entity.RoutePosition {
	targets := []entity.RoutePosition{{Lane: p.lane, S: p.targetS}}
	for _, s := range p.moreTargetS {
		targets = append(targets, entity.RoutePosition{Lane: p.lane, S: s})
	}
	return targets
}

// stubJunctionManager 空路口管理器
type stubJunctionManager struct{}

func (m *stubJunctionManager) Init([]*mapv2.Junction, entity.ILaneManager, entity.IRoadManager) {}
func (m *stubJunctionManager) Get(int32) entity.IJunction                                       { return nil }
func (m *stubJunctionManager) GetOrError(int32) (entity.IJunction, error)                       { return nil, nil }
func (m *stubJunctionManager) Data() map[int32]entity.IJunction                                 { return nil }

// stubContext 仅提供行人模型所需依赖的任务上下文
type stubContext struct {
	entity.ITaskContext
	shapeManager *shapes.Manager
	cfg          *config.RuntimeConfig
}

func (c *stubContext) ShapeManager() *shapes.Manager            { return c.shapeManager }
func (c *stubContext) RuntimeConfig() *config.RuntimeConfig     { return c.cfg }
func (c *stubContext) JunctionManager() entity.IJunctionManager { return &stubJunctionManager{} }

func square(x1, y1, x2, y2 float64) []geometry.Point {
	return []geometry.Point{{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2}}
}

func newTestContext() *stubContext {
	sm := shapes.NewManager()
	// 覆盖测试车道的可行走区域
	sm.Register(&shapes.Shape{
		ID:     "area",
		Type:   shapes.TypeWalkableArea,
		Points: square(-10, -10, 110, 10),
	})
	return &stubContext{
		shapeManager: sm,
		cfg:          config.NewRuntimeConfig(config.Config{}),
	}
}

func newTestModel(t *testing.T, ctx *stubContext) *Model {
	m := NewModel(ctx, jupedsim.NewLocalEngine())
	m.Init()
	t.Cleanup(m.Close)
	return m
}

func TestInitRegistersNetworkShape(t *testing.T) {
	ctx := newTestContext()
	newTestModel(t, ctx)
	shape, ok := ctx.ShapeManager().Get(shapes.TypePedestrianNetwork)
	assert.True(t, ok)
	assert.Equal(t, shapes.TypePedestrianNetwork, shape.Type)
	assert.GreaterOrEqual(t, len(shape.Points), 3)
}

func TestTryAddIsIdempotent(t *testing.T) {
	m := newTestModel(t, newTestContext())
	lane := &stubLane{id: 1, length: 100}
	p := &stubPerson{id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5}
	assert.Nil(t, m.TryAdd(p))
	assert.Nil(t, m.TryAdd(p))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestWalkToArrival(t *testing.T) {
	m := newTestModel(t, newTestContext())
	lane := &stubLane{id: 1, length: 100}
	p := &stubPerson{id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5}
	assert.Nil(t, m.TryAdd(p))

	arrived := false
	for i := 0; i < 1000; i++ {
		m.Update(.1)
		if state, ok := m.Get(p.ID()); ok && state.Arrived() {
			arrived = true
			break
		}
	}
	assert.True(t, arrived)
	assert.Equal(t, 0, m.ActiveCount())

	// 到达状态保留到被消费
	state, ok := m.Get(p.ID())
	assert.True(t, ok)
	// 到达判定在距终点2倍容差以内触发
	assert.Less(t, distance2D(state.XYZ(), lane.GetPositionByS(95)), 2*m.exitTolerance)
	assert.Equal(t, lane.ID(), state.Lane().ID())
	assert.Greater(t, state.S(), 5.0)

	m.Remove(p)
	_, ok = m.Get(p.ID())
	assert.False(t, ok)
}

func TestMultiWaypointJourney(t *testing.T) {
	m := newTestModel(t, newTestContext())
	lane := &stubLane{id: 1, length: 100}
	p := &stubPerson{id: 1, lane: lane, s: 5, targetS: 50, moreTargetS: []float64{95}, speed: 1.5}
	assert.Nil(t, m.TryAdd(p))
	state := m.byPerson[p.ID()]
	assert.Len(t, state.waypoints, 2)

	// 第一个途经点被消耗时不是终点，行人保持活跃
	for i := 0; i < 1000 && state.CompletedTargets() == 0; i++ {
		m.Update(.1)
	}
	assert.Equal(t, 1, state.CompletedTargets())
	assert.False(t, state.Arrived())
	assert.Equal(t, 1, m.ActiveCount())

	// 第二个途经点才触发到达
	for i := 0; i < 1000 && !state.Arrived(); i++ {
		m.Update(.1)
	}
	assert.True(t, state.Arrived())
	assert.Equal(t, 2, state.CompletedTargets())
	assert.Equal(t, 0, m.ActiveCount())
}

func TestOccupancyConflictRetries(t *testing.T) {
	m := newTestModel(t, newTestContext())
	lane := &stubLane{id: 1, length: 100}
	first := &stubPerson{id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5}
	second := &stubPerson{id: 2, lane: lane, s: 5, targetS: 95, speed: 1.5}
	assert.Nil(t, m.TryAdd(first))
	// 同一位置插入被引擎拒绝，进入等待状态
	assert.Nil(t, m.TryAdd(second))
	assert.Equal(t, 2, m.ActiveCount())
	state := m.byPerson[second.ID()]
	assert.True(t, state.waitingToEnter)

	// 第一个行人走开后重试成功
	inserted := false
	for i := 0; i < 100; i++ {
		m.Update(.1)
		if !state.waitingToEnter {
			inserted = true
			break
		}
	}
	assert.True(t, inserted)
}

func TestRandomDepartureInTaz(t *testing.T) {
	ctx := newTestContext()
	ctx.ShapeManager().Register(&shapes.Shape{
		ID:     "taz1",
		Type:   shapes.TypeTaz,
		Points: square(50, -5, 60, 5),
	})
	m := newTestModel(t, ctx)
	lane := &stubLane{id: 1, length: 100}
	p := &stubPerson{
		id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5,
		labels: map[string]string{"departure": "random_location", "taz": "taz1"},
	}
	assert.Nil(t, m.TryAdd(p))
	state := m.byPerson[p.ID()]
	pos := state.XYZ()
	assert.GreaterOrEqual(t, pos.X, 50.0)
	assert.LessOrEqual(t, pos.X, 60.0)
	assert.GreaterOrEqual(t, pos.Y, -5.0)
	assert.LessOrEqual(t, pos.Y, 5.0)
}

func TestRandomDepartureOnlyFirstDeparture(t *testing.T) {
	ctx := newTestContext()
	ctx.ShapeManager().Register(&shapes.Shape{
		ID:     "taz1",
		Type:   shapes.TypeTaz,
		Points: square(50, -5, 60, 5),
	})
	m := newTestModel(t, ctx)
	lane := &stubLane{id: 1, length: 100}
	p := &stubPerson{
		id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5,
		labels: map[string]string{"departure": "random_location", "taz": "taz1"},
	}
	assert.Nil(t, m.TryAdd(p))
	first := m.byPerson[p.ID()].XYZ()
	assert.GreaterOrEqual(t, first.X, 50.0)

	// 后续trip从实际位置出发，不再随机采样
	m.Remove(p)
	assert.Nil(t, m.TryAdd(p))
	second := m.byPerson[p.ID()].XYZ()
	assert.InDelta(t, 5, second.X, 1e-9)
	assert.InDelta(t, 0, second.Y, 1e-9)
}

func TestRandomDepartureSampling(t *testing.T) {
	ctx := newTestContext()
	ctx.ShapeManager().Register(&shapes.Shape{
		ID:     "unit",
		Type:   shapes.TypeTaz,
		Points: square(0, 0, 1, 1),
	})
	m := newTestModel(t, ctx)
	lane := &stubLane{id: 1, length: 100}
	p := &stubPerson{
		id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5,
		labels: map[string]string{"departure": "random_location", "taz": "unit"},
	}
	fallback := geometry.Point{X: -1, Y: -1}
	for i := 0; i < 1000; i++ {
		pt := m.sampleDeparture(p, fallback)
		assert.Greater(t, pt.X, 0.0)
		assert.Less(t, pt.X, 1.0)
		assert.Greater(t, pt.Y, 0.0)
		assert.Less(t, pt.Y, 1.0)
	}
}

func TestRemoveActivePerson(t *testing.T) {
	m := newTestModel(t, newTestContext())
	lane := &stubLane{id: 1, length: 100}
	p := &stubPerson{id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5}
	assert.Nil(t, m.TryAdd(p))
	m.Remove(p)
	assert.Equal(t, 0, m.ActiveCount())
	_, ok := m.Get(p.ID())
	assert.False(t, ok)
	// 移除后可重新插入
	assert.Nil(t, m.TryAdd(p))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestClearState(t *testing.T) {
	m := newTestModel(t, newTestContext())
	lane := &stubLane{id: 1, length: 100}
	assert.Nil(t, m.TryAdd(&stubPerson{id: 1, lane: lane, s: 5, targetS: 95, speed: 1.5}))
	assert.Nil(t, m.TryAdd(&stubPerson{id: 2, lane: lane, s: 50, targetS: 95, speed: 1.5}))
	m.ClearState()
	assert.Equal(t, 0, m.ActiveCount())
	_, ok := m.Get(1)
	assert.False(t, ok)
	// 清空后仍可继续使用
	assert.Nil(t, m.TryAdd(&stubPerson{id: 3, lane: lane, s: 5, targetS: 95, speed: 1.5}))
	assert.Equal(t, 1, m.ActiveCount())
}

func TestWaypointAcceptanceBoundary(t *testing.T) {
	m := newTestModel(t, newTestContext())
	wp := geometry.Point{X: 10, Y: 0}

	// 正好2倍容差处不算到达
	state := &PState{
		position:  geometry.Point{X: 10 - 2*m.exitTolerance, Y: 0},
		waypoints: []geometry.Point{wp},
	}
	assert.False(t, m.drainReachedWaypoints(state))
	assert.Len(t, state.waypoints, 1)

	// 再近一点即到达
	state.position.X += 1e-9
	assert.True(t, m.drainReachedWaypoints(state))
	assert.Empty(t, state.waypoints)
}

func TestRadiusOf(t *testing.T) {
	lane := &stubLane{id: 1, length: 100}
	base := func() *stubPerson { return &stubPerson{id: 1, lane: lane} }
	assert.InDelta(t, .3, radiusOf(base()), 1e-9)

	long := &stubPersonWithSize{stubPerson: *base(), length: .6}
	assert.InDelta(t, .3, radiusOf(long), 1e-9)
	wide := &stubPersonWithSize{stubPerson: *base(), width: .8}
	assert.InDelta(t, .4, radiusOf(wide), 1e-9)
	both := &stubPersonWithSize{stubPerson: *base(), length: .6, width: .4}
	assert.InDelta(t, .25, radiusOf(both), 1e-9)
}

type stubPersonWithSize struct {
	stubPerson
	length float64
	width  float64
}

func (p *stubPersonWithSize) Length() float64 { return p.length }
func (p *stubPersonWithSize) Width() float64  { return p.width }

func TestBuildNetworkWithObstacle(t *testing.T) {
	ctx := newTestContext()
	// 区域中央挖一个孔
	ctx.ShapeManager().Register(&shapes.Shape{
		ID:     "pit",
		Type:   shapes.TypeObstacle,
		Points: square(40, -5, 60, 5),
	})
	network, err := buildPedestrianNetwork(ctx)
	assert.Nil(t, err)
	components := polygon.Components(network)
	assert.Len(t, components, 1)
	assert.Equal(t, 1, components[0].NumInteriorRings())
	// 障碍物区域不可行走
	assert.False(t, polygon.Contains(network, geometry.Point{X: 50, Y: 0}))
	assert.True(t, polygon.Contains(network, geometry.Point{X: 10, Y: 0}))
}

func TestBuildNetworkSelectsLargestComponent(t *testing.T) {
	sm := shapes.NewManager()
	sm.Register(&shapes.Shape{ID: "big", Type: shapes.TypeWalkableArea, Points: square(0, 0, 100, 100)})
	sm.Register(&shapes.Shape{ID: "small", Type: shapes.TypeWalkableArea, Points: square(200, 0, 210, 10)})
	ctx := &stubContext{shapeManager: sm, cfg: config.NewRuntimeConfig(config.Config{})}
	network, err := buildPedestrianNetwork(ctx)
	assert.Nil(t, err)
	largest, count := selectLargestComponent(network)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 10000, largest.Area(), 1)
}

func TestBuildNetworkEmptyFails(t *testing.T) {
	ctx := &stubContext{shapeManager: shapes.NewManager(), cfg: config.NewRuntimeConfig(config.Config{})}
	_, err := buildPedestrianNetwork(ctx)
	assert.NotNil(t, err)
}

// recordingEngine 包装引擎，记录各句柄的释放顺序
type recordingEngine struct {
	inner jupedsim.Engine
	order []string
}

type recordedGeometry struct {
	jupedsim.Geometry
	rec *recordingEngine
}

func (g *recordedGeometry) Close() {
	g.rec.order = append(g.rec.order, "geometry")
	g.Geometry.Close()
}

type recordedModel struct {
	jupedsim.Model
	rec *recordingEngine
}

func (m *recordedModel) Close() {
	m.rec.order = append(m.rec.order, "model")
	m.Model.Close()
}

type recordedSimulation struct {
	jupedsim.Simulation
	rec *recordingEngine
}

func (s *recordedSimulation) Close() {
	s.rec.order = append(s.rec.order, "simulation")
	s.Simulation.Close()
}

type recordedGeometryBuilder struct {
	jupedsim.GeometryBuilder
	rec *recordingEngine
}

func (b *recordedGeometryBuilder) Build() (jupedsim.Geometry, error) {
	g, err := b.GeometryBuilder.Build()
	if err != nil {
		return nil, err
	}
	return &recordedGeometry{Geometry: g, rec: b.rec}, nil
}

type recordedModelBuilder struct {
	jupedsim.ModelBuilder
	rec *recordingEngine
}

func (b *recordedModelBuilder) Build() (jupedsim.Model, error) {
	m, err := b.ModelBuilder.Build()
	if err != nil {
		return nil, err
	}
	return &recordedModel{Model: m, rec: b.rec}, nil
}

func (e *recordingEngine) NewGeometryBuilder() jupedsim.GeometryBuilder {
	return &recordedGeometryBuilder{GeometryBuilder: e.inner.NewGeometryBuilder(), rec: e}
}

func (e *recordingEngine) NewCollisionFreeSpeedModelBuilder(p jupedsim.CollisionFreeSpeedModelParameters) jupedsim.ModelBuilder {
	return &recordedModelBuilder{ModelBuilder: e.inner.NewCollisionFreeSpeedModelBuilder(p), rec: e}
}

func (e *recordingEngine) NewSimulation(m jupedsim.Model, g jupedsim.Geometry, dt float64) (jupedsim.Simulation, error) {
	sim, err := e.inner.NewSimulation(m.(*recordedModel).Model, g.(*recordedGeometry).Geometry, dt)
	if err != nil {
		return nil, err
	}
	return &recordedSimulation{Simulation: sim, rec: e}, nil
}

func TestCloseReleasesHandlesInOrder(t *testing.T) {
	rec := &recordingEngine{inner: jupedsim.NewLocalEngine()}
	m := NewModel(newTestContext(), rec)
	m.Init()
	lane := &stubLane{id: 1, length: 100}
	for i, s := range []float64{5, 50, 90} {
		p := &stubPerson{id: int32(i + 1), lane: lane, s: s, targetS: 95, speed: 1.5}
		assert.Nil(t, m.TryAdd(p))
	}
	states := append([]*PState(nil), m.states...)
	assert.Len(t, states, 3)

	m.Close()
	// 行人状态先于引擎句柄释放，句柄按依赖序各释放一次
	for _, state := range states {
		assert.Nil(t, state.journey)
	}
	assert.Equal(t, []string{"simulation", "model", "geometry"}, rec.order)
}
