package person

import (
	"fmt"
	"math"
	"strconv"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/protoutil"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	routingv2 "git.fiblab.net/sim/protos/v2/go/city/routing/v2"
	tripv2 "git.fiblab.net/sim/protos/v2/go/city/trip/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity/person/route"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity/person/schedule"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/container"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/randengine"
)

const (
	// 身体长宽标签，提供给引擎推算行人半径
	labelLength = "pedsim.length"
	labelWidth  = "pedsim.width"
)

// Person 人员实体
// 功能：表示模拟系统中的行人，管理其时刻表、导航与引擎内的运动状态
type Person struct {
	container.IncrementalItemBase
	ctx entity.ITaskContext
	m   *PersonManager

	// 静态属性
	base           *personv2.Person
	id             int32
	attr           *personv2.PersonAttribute     // 人的属性
	pedestrianAttr *personv2.PedestrianAttribute // 行人的属性
	labels         map[string]string             // 人的标签

	generator *randengine.Engine // 随机数生成器，以ID为seed

	// 运行时基本数据，记录位置、速度、方向、状态
	runtime  runtime // 运行时数据
	snapshot runtime // 快照

	pedestrian *pedestrian // 行人

	// 时刻表
	schedule          *schedule.Schedule // 时刻表
	newSchedule       []*tripv2.Schedule // schedule修改buffer
	scheduleResetFlag bool               // 时刻表是否被修改
	interruptWalk     bool               // 新时刻表到达时中断当前步行（引擎状态在update阶段串行清理）

	// 导航
	route *route.PedestrianRoute // 步行导航

	// 重置位置（目前仅支持从Sleep重置）
	resetPos *geov2.Position
}

// newPerson 创建并初始化一个新的Person实例
// 功能：根据基础数据创建Person对象，初始化各种属性和组件
// 参数：ctx-任务上下文，m-人员管理器，base-基础Person数据
// 返回：初始化完成的Person实例
// 说明：步行速度带随机扰动，出发横向偏移由随机数生成器决定
func newPerson(
	ctx entity.ITaskContext,
	m *PersonManager,
	base *personv2.Person,
) *Person {
	p := &Person{
		ctx:            ctx,
		m:              m,
		base:           base,
		id:             base.Id,
		attr:           base.Attribute,
		pedestrianAttr: base.PedestrianAttribute,
		labels:         base.Labels,
		runtime: runtime{
			Status:    personv2.Status_STATUS_SLEEP,
			IsTripEnd: true,
		},
		schedule:    schedule.NewSchedule(ctx, base.GetSchedules()),
		newSchedule: make([]*tripv2.Schedule, 0),
		generator:   randengine.New(uint64(base.Id)),
	}
	p.route = route.NewPedestrianRoute(ctx, p)
	p.SetSchedules(base.GetSchedules())
	// 步行速度与出发横向偏移的随机扰动
	walkV := defaultWalkV
	if base.PedestrianAttribute != nil {
		walkV = base.PedestrianAttribute.Speed
	}
	walkV += maxVNoise * lo.Clamp(.5*p.generator.NormFloat64(), -1, 1)
	walkV = math.Max(minWalkV, walkV)
	p.pedestrian = &pedestrian{
		walkingV: walkV,
		lateralOffset: lo.Clamp(
			p.generator.NormFloat64(),
			-maxPedestrianPositionNoise,
			maxPedestrianPositionNoise,
		),
		length: p.labelFloat(labelLength),
		width:  p.labelFloat(labelWidth),
	}
	// 设置人的初始位置
	home := base.Home
	if home.AoiPosition != nil {
		aoiID := home.AoiPosition.AoiId
		aoi := p.ctx.AoiManager().Get(aoiID)
		p.runtime.Aoi = aoi
		p.runtime.XYZ = aoi.Centroid()
		aoi.AddPerson(p)
	} else if home.LanePosition != nil {
		laneID := home.LanePosition.LaneId
		s := home.LanePosition.S
		lane := p.ctx.LaneManager().Get(laneID)
		p.runtime.Lane = lane
		p.runtime.S = s
		p.runtime.XYZ = lane.GetPositionByS(s)
	} else {
		log.Panicf("person %d has no home position", p.ID())
	}
	return p
}

// labelFloat 解析浮点标签值，缺失或非法时返回0
func (p *Person) labelFloat(key string) float64 {
	raw, ok := p.labels[key]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		log.Warnf("person %d has invalid label %s=%s", p.ID(), key, raw)
		return 0
	}
	return v
}

func (p *Person) prepareNode() {
	if p.runtime.Status == personv2.Status_STATUS_WALKING {
		p.pedestrian.node.S = p.runtime.S
	}
}

// prepare 准备阶段，处理Person的准备工作
// 功能：更新快照数据，重置时刻表
// 说明：使用缓冲区机制提高并发性能，避免在更新阶段进行写操作
func (p *Person) prepare() {
	p.snapshot = p.runtime
	// 优先执行新的schedule
	p.ResetScheduleIfNeed()
}

// update 更新阶段，执行Person的模拟逻辑
// 功能：根据人员状态执行相应的更新逻辑，包括睡眠、等待导航、步行等状态
// 参数：dt-时间步长
func (p *Person) update(
	dt float64,
) {
	// 对resetPos的预检查
	if p.resetPos != nil {
		if p.runtime.Status != personv2.Status_STATUS_SLEEP {
			log.Errorf("person %d reset position %v not in sleep status", p.ID(), p.resetPos)
			p.resetPos = nil
		}
	}
	switch p.runtime.Status {
	case personv2.Status_STATUS_SLEEP:
		if p.resetPos != nil {
			log.Debugf("person %d reset position to %v", p.ID(), p.resetPos)
			if p.runtime.Aoi != nil {
				p.runtime.Aoi.RemovePerson(p)
			}
			p.runtime.resetByPbPosition(p.ctx, p.resetPos)
			// 给Reset到的Aoi或Lane添加人
			if p.runtime.Aoi != nil {
				p.runtime.Aoi.AddPerson(p)
			}
			p.resetPos = nil
		}
		// ATTENTION:一段trip的多个journey之间切换过程中必定满足出发时间触发
		if p.checkDeparture() {
			// 出发
			p.requestRoute()
			p.runtime.Status = personv2.Status_STATUS_WAIT_ROUTE
			return
		}
	case personv2.Status_STATUS_WAIT_ROUTE:
		if _, ok := p.routeSuccessful(); !ok {
			p.runtime.Status = personv2.Status_STATUS_SLEEP
			return
		}
		p.updateGoOut()
	case personv2.Status_STATUS_WALKING:
		if p.interruptWalk {
			// 新时刻表中断步行：人原地转入Sleep，等待新schedule触发
			p.interruptWalk = false
			p.ctx.PedestrianModel().Remove(p)
			if p.snapshot.Lane != nil {
				p.snapshot.Lane.RemovePedestrian(p.pedestrian.node)
			}
			p.runtime.V = 0
			p.runtime.Status = personv2.Status_STATUS_SLEEP
			p.route.Clear()
			return
		}
		p.runtime.IsTripEnd = false
		// 途中trip结束时updatePedestrian会置IsTripEnd并切换到下一trip
		isEnd := p.updatePedestrian(dt)
		if isEnd {
			p.runtime.IsTripEnd = true
			end := p.route.GetCurrentEndPosition()
			// 行人结束路面行为（生命周期结束）的后处理
			// 本行程走完，进入sleep
			endAoi := end.Aoi
			p.schedule.NextTrip(p.ctx.Clock().T)
			p.m.recordTripEnd(p)
			if endAoi != nil {
				p.updateComeIn(endAoi)
			} else {
				p.runtime.Status = personv2.Status_STATUS_SLEEP
			}
		}
	default:
		log.Panicf("unknown person %d status %v when update", p.ID(), p.runtime.Status)
	}
}

// 从室内出来的辅助函数
func (p *Person) updateGoOut() {
	// 修改位置到门口
	start := p.route.GetCurrentStartPosition()
	p.runtime.Lane = start.Lane
	p.runtime.S = start.S
	p.runtime.XYZ = start.Lane.GetOffsetPositionByS(start.S, -p.pedestrian.lateralOffset)
	// 先尝试在引擎中注册行程，失败则跳过本trip
	if err := p.ctx.PedestrianModel().TryAdd(p); err != nil {
		log.Errorf("person %d failed to enter pedestrian model: %v, skip the trip", p.ID(), err)
		p.runtime.Lane = nil
		p.runtime.S = 0
		p.schedule.NextTrip(p.ctx.Clock().T)
		p.runtime.Status = personv2.Status_STATUS_SLEEP
		return
	}
	// 出发
	p.pedestrian.consumedTargets = 0
	p.runtime.Status = personv2.Status_STATUS_WALKING
	if p.runtime.Aoi != nil {
		p.runtime.Aoi.RemovePerson(p)
		p.runtime.Aoi = nil
	}
	p.pedestrian.node = newPedestrianNode(p.runtime.S, p)
	p.runtime.Lane.AddPedestrian(p.pedestrian.node)
}

// 进入室内的辅助函数
func (p *Person) updateComeIn(endAoi entity.IAoi) {
	p.runtime.Aoi = endAoi
	endAoi.AddPerson(p)
	p.runtime.XYZ = endAoi.Centroid()
	p.runtime.Status = personv2.Status_STATUS_SLEEP
	p.runtime.Lane = nil
	p.runtime.S = 0
}

// 获取人的ID
func (p *Person) ID() int32 {
	if p == nil {
		return -1
	}
	return p.id
}

// 获取人的属性
func (p *Person) Attr() *personv2.PersonAttribute {
	return p.attr
}

// 获取人的位置坐标
func (p *Person) XYZ() geometry.Point {
	return p.snapshot.XYZ
}

// 获取人的速度
func (p *Person) V() float64 {
	return p.snapshot.V
}

// 获取人的身体长度
func (p *Person) Length() float64 {
	return p.pedestrian.length
}

// 获取人的身体宽度
func (p *Person) Width() float64 {
	return p.pedestrian.width
}

// 获取人的期望步行速度
func (p *Person) WalkingSpeed() float64 {
	return p.pedestrian.walkingV
}

// 获取出发时相对车道中心线的横向偏移
func (p *Person) LateralOffset() float64 {
	return p.pedestrian.lateralOffset
}

// 获取剩余步行路径段（含当前所在段），以及并入引擎行程的后续trip的路径段
func (p *Person) WalkingAhead() []entity.WalkingSegment {
	if !p.route.Ok() {
		return nil
	}
	segments := p.route.Remaining()
	for _, trip := range p.followingJourneyTrips() {
		journey, _ := p.preRoutedWalkingJourney(trip)
		for _, seg := range journey.Walking.Route {
			segments = append(segments, entity.WalkingSegment{
				Lane:    p.ctx.LaneManager().Get(seg.LaneId),
				Forward: seg.MovingDirection == routingv2.MovingDirection_MOVING_DIRECTION_FORWARD,
			})
		}
	}
	return segments
}

// UpcomingWalkingTargets 获取当前及后续可并入引擎行程的步行trip的终点位置序列
// 功能：队首为当前trip终点，之后为时刻表中紧随其后的步行trip终点
// 说明：AOI终点被换算为其步行出入口位置
func (p *Person) UpcomingWalkingTargets() []entity.RoutePosition {
	if !p.route.Ok() {
		return nil
	}
	targets := []entity.RoutePosition{p.route.GetCurrentEndPosition()}
	for _, trip := range p.followingJourneyTrips() {
		target, _ := p.resolveTripEnd(trip)
		targets = append(targets, target)
	}
	return targets
}

// followingJourneyTrips 获取可并入当前引擎行程的后续trip序列
// 说明：行程注册后途中无法再异步请求导航，
// 只并入携带预计算步行路径且终点可解析的trip，其余留给常规的出发流程
func (p *Person) followingJourneyTrips() []*tripv2.Trip {
	trips := make([]*tripv2.Trip, 0)
	for _, trip := range p.schedule.FollowingTrips() {
		if _, ok := p.preRoutedWalkingJourney(trip); !ok {
			break
		}
		if _, ok := p.resolveTripEnd(trip); !ok {
			break
		}
		trips = append(trips, trip)
	}
	return trips
}

// preRoutedWalkingJourney 获取trip自带的预计算步行导航结果
func (p *Person) preRoutedWalkingJourney(trip *tripv2.Trip) (*routingv2.Journey, bool) {
	if trip == nil || !schedule.IsWalkingTrip(trip) || len(trip.Routes) == 0 {
		return nil, false
	}
	journey := trip.Routes[0]
	if journey.Type != routingv2.JourneyType_JOURNEY_TYPE_WALKING ||
		journey.Walking == nil || len(journey.Walking.Route) == 0 {
		return nil, false
	}
	return journey, true
}

// resolveTripEnd 将trip终点换算为车道位置
func (p *Person) resolveTripEnd(trip *tripv2.Trip) (entity.RoutePosition, bool) {
	end := trip.End
	if end == nil {
		return entity.RoutePosition{}, false
	}
	if lanePos := end.LanePosition; lanePos != nil {
		lane, err := p.ctx.LaneManager().GetOrError(lanePos.LaneId)
		if err != nil {
			return entity.RoutePosition{}, false
		}
		return entity.RoutePosition{Lane: lane, S: lanePos.S}, true
	}
	if aoiPos := end.AoiPosition; aoiPos != nil {
		aoi, err := p.ctx.AoiManager().GetOrError(aoiPos.AoiId)
		if err != nil {
			return entity.RoutePosition{}, false
		}
		// 取编号最小的步行出入口，保证结果确定
		var gate entity.ILane
		for _, lane := range aoi.WalkingLanes() {
			if gate == nil || lane.ID() < gate.ID() {
				gate = lane
			}
		}
		if gate == nil {
			return entity.RoutePosition{}, false
		}
		return entity.RoutePosition{Lane: gate, S: aoi.WalkingS(gate.ID()), Aoi: aoi}, true
	}
	return entity.RoutePosition{}, false
}

// 获取人的空间父对象ID
func (p *Person) ParentID() int32 {
	switch p.snapshot.Status {
	case personv2.Status_STATUS_SLEEP,
		personv2.Status_STATUS_WAIT_ROUTE:
		if p.snapshot.Aoi != nil {
			return p.snapshot.Aoi.ID()
		}
		if p.snapshot.Lane != nil {
			return p.snapshot.Lane.ID()
		}
	case personv2.Status_STATUS_WALKING:
		return p.snapshot.Lane.ID()
	}
	log.Panicf("unknown person %d status %v", p.ID(), p.snapshot.Status)
	return -1
}

// 获取人所在的Aoi
func (p *Person) Aoi() entity.IAoi {
	return p.snapshot.Aoi
}

// 获取人所在的Lane
func (p *Person) Lane() entity.ILane {
	return p.snapshot.Lane
}

// 获取人在Lane上的位置S坐标
func (p *Person) S() float64 {
	return p.snapshot.S
}

// 获取人的状态
func (p *Person) Status() personv2.Status {
	return p.snapshot.Status
}

// 获取指定键的标签值
func (p *Person) GetLabel(key string) (string, bool) {
	value, ok := p.labels[key]
	return value, ok
}

// 设置时刻表
func (p *Person) SetSchedules(schedules []*tripv2.Schedule) {
	p.newSchedule = schedules
	p.scheduleResetFlag = true
}

func (p *Person) ResetScheduleIfNeed() {
	if p.scheduleResetFlag {
		p.schedule.Set(p.newSchedule, p.ctx.Clock().T)
		p.scheduleResetFlag = false
		if p.runtime.Status == personv2.Status_STATUS_WALKING {
			// prepare阶段并行执行，引擎状态留到update阶段串行清理
			p.interruptWalk = true
			return
		}
		// 强制转为Sleep模式，便于触发新的schedule
		p.runtime.Status = personv2.Status_STATUS_SLEEP
		// 清空导航
		p.route.Clear()
	}
}

// 检查是否到达出发时间
func (p *Person) checkDeparture() bool {
	return p.ctx.Clock().T >= p.schedule.GetDepartureTime()
}

// 发出导航请求
func (p *Person) requestRoute() {
	trip := p.schedule.GetTrip()
	// ATTENTION: 决定了出发后人的起始位置
	var startPosition entity.RoutePosition
	if p.runtime.Lane != nil && p.runtime.Aoi != nil {
		log.Panicf("person %d has both lane %v and aoi %v", p.ID(), p.runtime.Lane.ID(), p.runtime.Aoi.ID())
	}
	if p.runtime.Lane == nil && p.runtime.Aoi == nil {
		log.Panicf("person %d has neither lane nor aoi", p.ID())
	}
	// route还没走完 在外部切换到下一个route 不需要导航
	if p.route.Ok() {
		// do nothing
		return
	}
	if p.runtime.Lane != nil {
		// 从上一次的位置出发
		lane := p.runtime.Lane
		s := p.runtime.S
		// 位置修正：修正为同一road上的walking lane，没有则panic
		if !lane.IsWalkLane() {
			var walkingLane entity.ILane
			if lane.ParentRoad() != nil {
				walkingLane, s = lane.ParentRoad().ProjectToNearestWalkingLane(lane, s)
			}
			if walkingLane == nil {
				log.Panicf("person %d fail to request route due to bad walking lane projection %+v", p.ID(), lane)
			}
			lane = walkingLane
		}
		startPosition = entity.RoutePosition{Lane: lane, S: s}
	} else {
		startPosition = entity.RoutePosition{Aoi: p.runtime.Aoi}
	}
	p.route.Clear()
	p.route.ProduceRouting(trip, startPosition, routingv2.RouteType_ROUTE_TYPE_WALKING)
}

// 导航请求是否成功,成功则返回true，否则转到下一trip并返回false
func (p *Person) routeSuccessful() (*tripv2.Trip, bool) {
	trip := p.schedule.GetTrip()
	p.route.Wait()
	if p.route.Ok() {
		return trip, true
	}
	p.schedule.NextTrip(p.ctx.Clock().T)
	return trip, false
}

// 产生人的基础Protobuf
func (p *Person) ToBasePb() *personv2.Person {
	pb := protoutil.Clone(p.base)
	pb.Schedules = lo.Map(p.schedule.Base(), func(s *tripv2.Schedule, _ int) *tripv2.Schedule {
		return protoutil.Clone(s)
	})
	return pb
}

// 产生人的运行时Protobuf
func (p *Person) ToMotionPb() *personv2.PersonMotion {
	return p.snapshot.ToPb(p.ctx, p)
}

// 产生全量人的运行时Protobuf
func (p *Person) ToPersonRuntimePb(returnBase bool) *personv2.PersonRuntime {
	pb := &personv2.PersonRuntime{
		Motion: p.ToMotionPb(),
	}
	if returnBase {
		pb.Base = p.ToBasePb()
	}
	return pb
}

func (p *Person) PersonType() personv2.PersonType {
	return p.base.Type
}

func (p *Person) String() string {
	s := fmt.Sprintf("Person %d", p.ID())
	s += fmt.Sprintf(" Snapshot: %v", &p.snapshot)
	s += fmt.Sprintf(" Runtime: %v", &p.runtime)
	return s
}

func (p *Person) DebugTripIndex() int32 {
	return p.schedule.TripIndex
}
