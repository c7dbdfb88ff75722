package jupedsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSimulation(t *testing.T, dt float64) Simulation {
	e := NewLocalEngine()
	gb := e.NewGeometryBuilder()
	gb.AddAccessibleArea([]Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}})
	geo, err := gb.Build()
	assert.Nil(t, err)
	model, err := e.NewCollisionFreeSpeedModelBuilder(CollisionFreeSpeedModelParameters{
		StrengthNeighborRepulsion: 8, RangeNeighborRepulsion: 0.1,
		StrengthGeometryRepulsion: 5, RangeGeometryRepulsion: 0.02,
	}).Build()
	assert.Nil(t, err)
	sim, err := e.NewSimulation(model, geo, dt)
	assert.Nil(t, err)
	return sim
}

func addJourney(t *testing.T, sim Simulation, tolerance float64, waypoints ...Point) (JourneyID, StageID) {
	desc := NewJourneyDescription()
	stages := make([]StageID, 0, len(waypoints))
	for _, w := range waypoints {
		st, err := sim.AddWaypointStage(w, tolerance)
		assert.Nil(t, err)
		desc.AddStage(st)
		stages = append(stages, st)
	}
	for i := 0; i+1 < len(stages); i++ {
		assert.Nil(t, desc.SetFixedTransition(stages[i], stages[i+1]))
	}
	j, err := sim.AddJourney(desc)
	assert.Nil(t, err)
	return j, stages[0]
}

func TestAgentWalksThroughWaypoints(t *testing.T) {
	sim := newTestSimulation(t, 0.1)
	j, first := addJourney(t, sim, 0.5, Point{10, 0}, Point{10, 10})
	id, err := sim.AddAgent(AgentParameters{
		Position: Point{0, 0}, Journey: j, Stage: first, Radius: 0.3, V0: 1.5,
	})
	assert.Nil(t, err)
	for i := 0; i < 2000; i++ {
		assert.Nil(t, sim.Iterate())
	}
	pos, err := sim.AgentPosition(id)
	assert.Nil(t, err)
	assert.InDelta(t, 10, pos.X, 0.6)
	assert.InDelta(t, 10, pos.Y, 0.6)
	// 朝向为单位向量
	o, err := sim.AgentOrientation(id)
	assert.Nil(t, err)
	assert.InDelta(t, 1, o.X*o.X+o.Y*o.Y, 1e-9)
}

func TestAddAgentOccupancyConflict(t *testing.T) {
	sim := newTestSimulation(t, 0.1)
	j, first := addJourney(t, sim, 0.5, Point{10, 10})
	_, err := sim.AddAgent(AgentParameters{Position: Point{5, 5}, Journey: j, Stage: first, Radius: 0.3, V0: 1})
	assert.Nil(t, err)
	// 同一位置再插一个：占用冲突
	_, err = sim.AddAgent(AgentParameters{Position: Point{5, 5}, Journey: j, Stage: first, Radius: 0.3, V0: 1})
	assert.NotNil(t, err)
	// 足够远则成功
	_, err = sim.AddAgent(AgentParameters{Position: Point{6, 5}, Journey: j, Stage: first, Radius: 0.3, V0: 1})
	assert.Nil(t, err)
}

func TestAddAgentOutsideGeometry(t *testing.T) {
	sim := newTestSimulation(t, 0.1)
	j, first := addJourney(t, sim, 0.5, Point{10, 10})
	_, err := sim.AddAgent(AgentParameters{Position: Point{-5, -5}, Journey: j, Stage: first, Radius: 0.3, V0: 1})
	assert.NotNil(t, err)
}

func TestMarkAgentForRemoval(t *testing.T) {
	sim := newTestSimulation(t, 0.1)
	j, first := addJourney(t, sim, 0.5, Point{10, 10})
	id, err := sim.AddAgent(AgentParameters{Position: Point{5, 5}, Journey: j, Stage: first, Radius: 0.3, V0: 1})
	assert.Nil(t, err)
	assert.Nil(t, sim.MarkAgentForRemoval(id))
	// 移除在下一次Iterate生效
	_, err = sim.AgentPosition(id)
	assert.Nil(t, err)
	assert.Nil(t, sim.Iterate())
	_, err = sim.AgentPosition(id)
	assert.NotNil(t, err)
}

func TestExcludedAreaBlocksInsertion(t *testing.T) {
	e := NewLocalEngine()
	gb := e.NewGeometryBuilder()
	gb.AddAccessibleArea([]Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}})
	gb.ExcludeFromAccessibleArea([]Point{{40, 40}, {60, 40}, {60, 60}, {40, 60}})
	geo, err := gb.Build()
	assert.Nil(t, err)
	model, err := e.NewCollisionFreeSpeedModelBuilder(CollisionFreeSpeedModelParameters{}).Build()
	assert.Nil(t, err)
	sim, err := e.NewSimulation(model, geo, 0.02)
	assert.Nil(t, err)
	j, first := addJourney(t, sim, 0.5, Point{10, 10})
	_, err = sim.AddAgent(AgentParameters{Position: Point{50, 50}, Journey: j, Stage: first, Radius: 0.3, V0: 1})
	assert.NotNil(t, err)
}
