package jupedsim

import (
	"fmt"
	"math"
)

// localEngine 本地参考引擎：行人以期望速度沿直线逼近当前途经点，
// 到达容差内后按固定转移进入下一阶段。不含邻居排斥与几何排斥的
// 动力学，仅用于无外部引擎时的默认后端与测试
type localEngine struct{}

// NewLocalEngine 创建本地参考引擎
func NewLocalEngine() Engine {
	return &localEngine{}
}

type localGeometry struct {
	accessible [][]Point
	excluded   [][]Point
	closed     bool
}

func (g *localGeometry) Close() { g.closed = true }

// contains 偶奇规则判断点是否可行走
func (g *localGeometry) contains(p Point) bool {
	in := false
	for _, ring := range g.accessible {
		if pointInRing(p, ring) {
			in = true
			break
		}
	}
	if !in {
		return false
	}
	for _, ring := range g.excluded {
		if pointInRing(p, ring) {
			return false
		}
	}
	return true
}

func pointInRing(p Point, ring []Point) bool {
	in := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

type localGeometryBuilder struct {
	geo localGeometry
}

func (b *localGeometryBuilder) AddAccessibleArea(ring []Point) {
	b.geo.accessible = append(b.geo.accessible, ring)
}

func (b *localGeometryBuilder) ExcludeFromAccessibleArea(ring []Point) {
	b.geo.excluded = append(b.geo.excluded, ring)
}

func (b *localGeometryBuilder) Build() (Geometry, error) {
	if len(b.geo.accessible) == 0 {
		return nil, fmt.Errorf("jupedsim: geometry has no accessible area")
	}
	for i, ring := range b.geo.accessible {
		if len(ring) < 3 {
			return nil, fmt.Errorf("jupedsim: accessible area %d has %d points", i, len(ring))
		}
	}
	geo := b.geo
	return &geo, nil
}

func (e *localEngine) NewGeometryBuilder() GeometryBuilder {
	return &localGeometryBuilder{}
}

type localModel struct {
	params CollisionFreeSpeedModelParameters
	closed bool
}

func (m *localModel) Close() { m.closed = true }

type localModelBuilder struct {
	params CollisionFreeSpeedModelParameters
}

func (b *localModelBuilder) Build() (Model, error) {
	p := b.params
	if p.RangeNeighborRepulsion < 0 || p.RangeGeometryRepulsion < 0 {
		return nil, fmt.Errorf("jupedsim: negative repulsion range")
	}
	return &localModel{params: p}, nil
}

func (e *localEngine) NewCollisionFreeSpeedModelBuilder(p CollisionFreeSpeedModelParameters) ModelBuilder {
	return &localModelBuilder{params: p}
}

type localStage struct {
	point     Point
	tolerance float64
}

type localAgent struct {
	id          AgentID
	pos         Point
	orientation Point
	journey     *JourneyDescription
	stage       StageID
	radius      float64
	v0          float64
	removed     bool
}

type localSimulation struct {
	geo      *localGeometry
	model    *localModel
	dt       float64
	stages   map[StageID]localStage
	journeys map[JourneyID]*JourneyDescription
	agents   map[AgentID]*localAgent
	order    []AgentID
	nextID   uint64
	closed   bool
}

func (e *localEngine) NewSimulation(m Model, g Geometry, dt float64) (Simulation, error) {
	lm, ok := m.(*localModel)
	if !ok {
		return nil, fmt.Errorf("jupedsim: model is not from the local engine")
	}
	lg, ok := g.(*localGeometry)
	if !ok {
		return nil, fmt.Errorf("jupedsim: geometry is not from the local engine")
	}
	if dt <= 0 {
		return nil, fmt.Errorf("jupedsim: non-positive time step %v", dt)
	}
	return &localSimulation{
		geo:      lg,
		model:    lm,
		dt:       dt,
		stages:   make(map[StageID]localStage),
		journeys: make(map[JourneyID]*JourneyDescription),
		agents:   make(map[AgentID]*localAgent),
		nextID:   1,
	}, nil
}

func (s *localSimulation) AddWaypointStage(p Point, tolerance float64) (StageID, error) {
	if tolerance <= 0 {
		return 0, fmt.Errorf("jupedsim: non-positive waypoint tolerance %v", tolerance)
	}
	id := StageID(s.nextID)
	s.nextID++
	s.stages[id] = localStage{point: p, tolerance: tolerance}
	return id, nil
}

func (s *localSimulation) AddJourney(desc *JourneyDescription) (JourneyID, error) {
	if len(desc.Stages()) == 0 {
		return 0, fmt.Errorf("jupedsim: empty journey")
	}
	for _, st := range desc.Stages() {
		if _, ok := s.stages[st]; !ok {
			return 0, fmt.Errorf("jupedsim: journey references unknown stage %d", st)
		}
	}
	id := JourneyID(s.nextID)
	s.nextID++
	s.journeys[id] = desc
	return id, nil
}

func (s *localSimulation) AddAgent(p AgentParameters) (AgentID, error) {
	journey, ok := s.journeys[p.Journey]
	if !ok {
		return 0, fmt.Errorf("jupedsim: unknown journey %d", p.Journey)
	}
	if _, ok := s.stages[p.Stage]; !ok {
		return 0, fmt.Errorf("jupedsim: unknown stage %d", p.Stage)
	}
	if !s.geo.contains(p.Position) {
		return 0, fmt.Errorf("jupedsim: agent position (%v, %v) is outside walkable area", p.Position.X, p.Position.Y)
	}
	// 占用检查：与已有行人圆盘相交则插入失败
	for _, a := range s.agents {
		dx, dy := a.pos.X-p.Position.X, a.pos.Y-p.Position.Y
		minDist := a.radius + p.Radius
		if dx*dx+dy*dy < minDist*minDist {
			return 0, fmt.Errorf("jupedsim: agent position (%v, %v) is occupied", p.Position.X, p.Position.Y)
		}
	}
	id := AgentID(s.nextID)
	s.nextID++
	s.agents[id] = &localAgent{
		id:          id,
		pos:         p.Position,
		orientation: Point{X: 1, Y: 0},
		journey:     journey,
		stage:       p.Stage,
		radius:      p.Radius,
		v0:          p.V0,
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *localSimulation) agent(id AgentID) (*localAgent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("jupedsim: unknown agent %d", id)
	}
	return a, nil
}

func (s *localSimulation) AgentPosition(id AgentID) (Point, error) {
	a, err := s.agent(id)
	if err != nil {
		return Point{}, err
	}
	return a.pos, nil
}

func (s *localSimulation) AgentOrientation(id AgentID) (Point, error) {
	a, err := s.agent(id)
	if err != nil {
		return Point{}, err
	}
	return a.orientation, nil
}

func (s *localSimulation) MarkAgentForRemoval(id AgentID) error {
	a, err := s.agent(id)
	if err != nil {
		return err
	}
	a.removed = true
	return nil
}

func (s *localSimulation) Iterate() error {
	if s.closed {
		return fmt.Errorf("jupedsim: simulation already closed")
	}
	// 先移出已标记的行人
	kept := s.order[:0]
	for _, id := range s.order {
		if s.agents[id].removed {
			delete(s.agents, id)
		} else {
			kept = append(kept, id)
		}
	}
	s.order = kept
	for _, id := range s.order {
		a := s.agents[id]
		stage, ok := s.stages[a.stage]
		if !ok {
			continue
		}
		dx, dy := stage.point.X-a.pos.X, stage.point.Y-a.pos.Y
		dist := math.Hypot(dx, dy)
		if dist <= stage.tolerance {
			if next, ok := a.journey.Transition(a.stage); ok {
				a.stage = next
			}
			continue
		}
		step := a.v0 * s.dt
		if step > dist {
			step = dist
		}
		a.orientation = Point{X: dx / dist, Y: dy / dist}
		a.pos.X += a.orientation.X * step
		a.pos.Y += a.orientation.Y * step
	}
	return nil
}

func (s *localSimulation) Close() {
	s.agents = nil
	s.order = nil
	s.closed = true
}
