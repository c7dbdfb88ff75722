package person

import (
	"fmt"
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	routingv2 "git.fiblab.net/sim/protos/v2/go/city/routing/v2"
	tripv2 "git.fiblab.net/sim/protos/v2/go/city/trip/v2"
	"github.com/stretchr/testify/assert"

	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/clock"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity/person/route"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity/person/schedule"
)

// stubWalkLane 测试用步行车道
type stubWalkLane struct {
	entity.ILane
	id int32
}

func (l *stubWalkLane) ID() int32            { return l.id }
func (l *stubWalkLane) Type() mapv2.LaneType { return mapv2.LaneType_LANE_TYPE_WALKING }

type stubLaneManager struct {
	entity.ILaneManager
	lanes map[int32]entity.ILane
}

func (m *stubLaneManager) Get(id int32) entity.ILane { return m.lanes[id] }

func (m *stubLaneManager) GetOrError(id int32) (entity.ILane, error) {
	if lane, ok := m.lanes[id]; ok {
		return lane, nil
	}
	return nil, fmt.Errorf("no lane %d", id)
}

// stubScheduleContext 仅提供时刻表与导航所需依赖的任务上下文
type stubScheduleContext struct {
	entity.ITaskContext
	clock *clock.Clock
	lanes *stubLaneManager
}

func (c *stubScheduleContext) Clock() *clock.Clock              { return c.clock }
func (c *stubScheduleContext) LaneManager() entity.ILaneManager { return c.lanes }

// walkTrip 构造终点在车道上的步行trip，preRouted时附带单车道的预计算路径
func walkTrip(laneID int32, s float64, preRouted bool) *tripv2.Trip {
	trip := &tripv2.Trip{
		Mode: tripv2.TripMode_TRIP_MODE_WALK_ONLY,
		End: &geov2.Position{
			LanePosition: &geov2.LanePosition{LaneId: laneID, S: s},
		},
	}
	if preRouted {
		trip.Routes = []*routingv2.Journey{{
			Type: routingv2.JourneyType_JOURNEY_TYPE_WALKING,
			Walking: &routingv2.WalkingJourneyBody{
				Route: []*routingv2.WalkingRouteSegment{{
					LaneId:          laneID,
					MovingDirection: routingv2.MovingDirection_MOVING_DIRECTION_FORWARD,
				}},
			},
		}}
	}
	return trip
}

func newSchedulePerson(ctx entity.ITaskContext) *Person {
	p := &Person{
		ctx:        ctx,
		m:          &PersonManager{},
		pedestrian: &pedestrian{},
	}
	p.schedule = schedule.NewSchedule(ctx, nil)
	p.route = route.NewPedestrianRoute(ctx, p)
	return p
}

func newScheduleContext(lanes ...entity.ILane) *stubScheduleContext {
	m := &stubLaneManager{lanes: make(map[int32]entity.ILane)}
	for _, lane := range lanes {
		m.lanes[lane.ID()] = lane
	}
	return &stubScheduleContext{clock: &clock.Clock{}, lanes: m}
}

func TestWaypointConsumptionAdvancesSchedule(t *testing.T) {
	lane1 := &stubWalkLane{id: 1}
	lane2 := &stubWalkLane{id: 2}
	ctx := newScheduleContext(lane1, lane2)
	p := newSchedulePerson(ctx)
	p.schedule.Set([]*tripv2.Schedule{{
		Trips:     []*tripv2.Trip{walkTrip(1, 90, true), walkTrip(2, 50, true)},
		LoopCount: 1,
	}}, 0)
	// 当前trip的导航结果
	p.route.ProcessInputJourney(
		walkTrip(1, 90, true).Routes[0],
		entity.RoutePosition{Lane: lane1, S: 0},
		entity.RoutePosition{Lane: lane1, S: 90},
	)

	// 引擎消耗一个中间途经点后，宿主切换到下一trip及其预计算路径
	p.syncCompletedTrips(1)
	assert.Equal(t, int32(1), p.schedule.TripIndex)
	assert.True(t, p.runtime.IsTripEnd)
	assert.Equal(t, 1, p.pedestrian.consumedTargets)
	end := p.route.GetCurrentEndPosition()
	assert.Equal(t, int32(2), end.Lane.ID())
	assert.InDelta(t, 50, end.S, 1e-9)

	// 引擎计数不变时不重复推进
	p.syncCompletedTrips(1)
	assert.Equal(t, int32(1), p.schedule.TripIndex)
	assert.Equal(t, 1, p.pedestrian.consumedTargets)
}

func TestUpcomingTargetsFollowPreRoutedTrips(t *testing.T) {
	lane1 := &stubWalkLane{id: 1}
	lane2 := &stubWalkLane{id: 2}
	ctx := newScheduleContext(lane1, lane2)
	p := newSchedulePerson(ctx)
	p.route.ProcessInputJourney(
		walkTrip(1, 90, true).Routes[0],
		entity.RoutePosition{Lane: lane1, S: 0},
		entity.RoutePosition{Lane: lane1, S: 90},
	)

	// 未携带预计算路径的后续trip不并入引擎行程
	p.schedule.Set([]*tripv2.Schedule{{
		Trips:     []*tripv2.Trip{walkTrip(1, 90, true), walkTrip(2, 50, false)},
		LoopCount: 1,
	}}, 0)
	assert.Len(t, p.UpcomingWalkingTargets(), 1)
	assert.Len(t, p.WalkingAhead(), 1)

	// 携带预计算路径的后续trip并入引擎行程
	p.schedule.Set([]*tripv2.Schedule{{
		Trips:     []*tripv2.Trip{walkTrip(1, 90, true), walkTrip(2, 50, true)},
		LoopCount: 1,
	}}, 0)
	targets := p.UpcomingWalkingTargets()
	assert.Len(t, targets, 2)
	assert.Equal(t, int32(2), targets[1].Lane.ID())
	assert.InDelta(t, 50, targets[1].S, 1e-9)
	segments := p.WalkingAhead()
	assert.Len(t, segments, 2)
	assert.Equal(t, int32(2), segments[1].Lane.ID())
}
