package route

import (
	"fmt"
	"sync"

	routingv2 "git.fiblab.net/sim/protos/v2/go/city/routing/v2"
	tripv2 "git.fiblab.net/sim/protos/v2/go/city/trip/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
)

// CallbackWaitGroup 路径规划异步回调的等待组
var CallbackWaitGroup sync.WaitGroup

// 行人路径规划结果中的一段
type PedestrianSegment struct {
	Lane      entity.ILane
	Direction routingv2.MovingDirection
}

// 是否沿车道前进方向行走
func (s PedestrianSegment) IsForward() bool {
	return s.Direction == routingv2.MovingDirection_MOVING_DIRECTION_FORWARD
}

// 行人路径规划
type PedestrianRoute struct {
	ctx entity.ITaskContext

	p entity.IPerson // 对应的人

	Start, End entity.RoutePosition        // 导航起点与终点
	base       *routingv2.GetRouteResponse // 导航请求结果
	waitCh     chan struct{}               // 路径规划请求等待通道
	ok         bool                        // 导航请求是否成功
	indexRoute int                         // 当前所在路段的索引
	route      []PedestrianSegment         // 转换为指针形式后的路径
}

// 创建行人路径规划
func NewPedestrianRoute(ctx entity.ITaskContext, p entity.IPerson) *PedestrianRoute {
	return &PedestrianRoute{
		ctx:    ctx,
		p:      p,
		waitCh: nil,
		route:  make([]PedestrianSegment, 0),
	}
}

// 输出路径规划信息以及当前位置前后的segment（总计3段）
func (r *PedestrianRoute) String() string {
	state := fmt.Sprintf("PedestrianRoute: ok=%v, indexRoute=%v, start=(%v), end=(%v)", r.ok, r.indexRoute, r.Start, r.End)
	if r.indexRoute > 0 {
		state += fmt.Sprintf(", [-1]=%v", r.route[r.indexRoute-1])
	}
	state += fmt.Sprintf(", [0]=%v", r.route[r.indexRoute])
	if r.indexRoute+1 < len(r.route) {
		state += fmt.Sprintf(", [1]=%v", r.route[r.indexRoute+1])
	}
	return state
}

// 等待路径规划完成
func (r *PedestrianRoute) Wait() {
	if r.waitCh != nil {
		<-r.waitCh
		r.waitCh = nil
	}
}

// 清空路径规划
func (r *PedestrianRoute) Clear() {
	r.ok = false
}

// 是否有路径规划结果
func (r *PedestrianRoute) Ok() bool {
	return r.ok
}

// 是否到达最后一个路段
func (r *PedestrianRoute) AtLast() bool {
	return r.indexRoute+1 >= len(r.route)
}

// 获取当前路段
func (r *PedestrianRoute) Current() PedestrianSegment {
	return r.route[r.indexRoute]
}

// 获取最后一个路段
func (r *PedestrianRoute) Last() PedestrianSegment {
	return r.route[len(r.route)-1]
}

// 获取从当前路段开始的剩余路径
func (r *PedestrianRoute) Remaining() []entity.WalkingSegment {
	return lo.Map(r.route[r.indexRoute:], func(seg PedestrianSegment, _ int) entity.WalkingSegment {
		return entity.WalkingSegment{Lane: seg.Lane, Forward: seg.IsForward()}
	})
}

// SyncTo 将当前路段索引前移到指定车道
// 说明：只向前查找，路径中找不到该车道时保持原位并返回false
func (r *PedestrianRoute) SyncTo(lane entity.ILane) bool {
	for i := r.indexRoute; i < len(r.route); i++ {
		if r.route[i].Lane == lane {
			r.indexRoute = i
			return true
		}
	}
	return false
}

// isValidPreRoute 检查预计算的路径规划结果是否可从起点直接使用
func (r *PedestrianRoute) isValidPreRoute(trip *tripv2.Trip, startPosition entity.RoutePosition) bool {
	if len(trip.Routes) == 0 {
		return false
	}
	journey := trip.Routes[0]
	if journey.Type != routingv2.JourneyType_JOURNEY_TYPE_WALKING {
		log.Warnf("PedestrianRoute: unsupported pre-route journeyType %v", journey.Type)
		return false
	}
	if len(journey.Walking.Route) == 0 {
		return false
	}
	firstLaneID := journey.Walking.Route[0].LaneId
	if aoi := startPosition.Aoi; aoi != nil {
		if _, ok := aoi.WalkingLanes()[firstLaneID]; !ok {
			return false
		}
	}
	if lane := startPosition.Lane; lane != nil {
		if lane.ID() != firstLaneID {
			return false
		}
	}
	return true
}

// 向导航服务请求路径规划
func (r *PedestrianRoute) ProduceRouting(trip *tripv2.Trip, startPosition entity.RoutePosition, routeType routingv2.RouteType) {
	target := trip.End
	r.Start = startPosition
	// 记录路径规划终点
	r.End = newRoutePosition(r.ctx, target)
	r.ok = false
	// 如果有预计算的路径规划结果，直接使用
	if r.isValidPreRoute(trip, startPosition) {
		r.ProcessRouting(&routingv2.GetRouteResponse{
			Journeys: trip.Routes,
		})
		r.waitCh = nil
		return
	}
	// 没有预计算的路径规划结果，发送请求
	req := &routingv2.GetRouteRequest{
		Type:  routeType,
		Start: newPbPosition(r.Start),
		End:   target,
		Time:  r.ctx.Clock().T,
	}
	// 发送路径规划请求
	r.waitCh = r.ctx.Router().GetRoute(req, r.ProcessRouting)
}

func (r *PedestrianRoute) RegisterWaitCallback(callback func()) {
	CallbackWaitGroup.Add(1)
	go func() {
		defer CallbackWaitGroup.Done()
		if r.waitCh != nil {
			<-r.waitCh
			r.waitCh = nil
		}
		callback()
	}()
}

// 处理路径规划结果
func (r *PedestrianRoute) ProcessRouting(res *routingv2.GetRouteResponse) {
	// 预处理res，移除route为空的无效journey
	res.Journeys = lo.Filter(res.Journeys, func(journey *routingv2.Journey, _ int) bool {
		if journey.Type != routingv2.JourneyType_JOURNEY_TYPE_WALKING {
			log.Panicf("PedestrianRoute: unsupported journeyType %v", journey.Type)
		}
		if len(journey.Walking.Route) == 0 {
			log.Warnf("PedestrianRoute: walking journey with empty route, personID=%v", r.p.ID())
			return false
		}
		return true
	})
	if len(res.Journeys) == 0 {
		r.route = make([]PedestrianSegment, 0)
		r.indexRoute = 0
		r.ok = false
		return
	}
	r.base = res
	// ATTENTION: 步行只有一个journey
	r.processJourney(res.Journeys[0])
	r.ok = true
}

// 处理单个journey并补全起终点
func (r *PedestrianRoute) processJourney(pb *routingv2.Journey) {
	r.indexRoute = 0
	r.route = lo.Map(pb.Walking.Route, func(pb *routingv2.WalkingRouteSegment, _ int) PedestrianSegment {
		lane := r.ctx.LaneManager().Get(pb.LaneId)
		return PedestrianSegment{lane, pb.MovingDirection}
	})
	startLane, endLane := r.route[0].Lane, r.route[len(r.route)-1].Lane
	// 根据导航结果推断补全起点和终点（AOI出入口位置）
	if r.Start.Lane == nil {
		r.Start.Lane = startLane
		r.Start.S = r.Start.Aoi.WalkingS(startLane.ID())
	}
	if r.End.Lane == nil {
		r.End.Lane = endLane
		r.End.S = r.End.Aoi.WalkingS(endLane.ID())
	}
}

// 处理输入的单个journey
func (r *PedestrianRoute) ProcessInputJourney(pb *routingv2.Journey, start, end entity.RoutePosition) bool {
	if pb.Type != routingv2.JourneyType_JOURNEY_TYPE_WALKING {
		log.Panicf("PedestrianRoute: unsupported journeyType %v", pb.Type)
	}
	r.waitCh = nil
	r.Start = start
	r.End = end
	r.processJourney(pb)
	r.ok = true
	r.base = &routingv2.GetRouteResponse{
		Journeys: []*routingv2.Journey{pb},
	}
	return true
}

// 得到当前route的起始位置
func (r *PedestrianRoute) GetCurrentStartPosition() entity.RoutePosition {
	return r.Start
}

// 得到当前route的结束位置
func (r *PedestrianRoute) GetCurrentEndPosition() entity.RoutePosition {
	return r.End
}

// 将PedestrianRoute转为Protobuf格式
func (r *PedestrianRoute) ToPb() *routingv2.Journey {
	pb := &routingv2.Journey{
		Type: routingv2.JourneyType_JOURNEY_TYPE_WALKING,
		Walking: &routingv2.WalkingJourneyBody{
			Route: lo.Map(r.route, func(seg PedestrianSegment, _ int) *routingv2.WalkingRouteSegment {
				return &routingv2.WalkingRouteSegment{
					LaneId:          seg.Lane.ID(),
					MovingDirection: seg.Direction,
				}
			}),
			Eta: r.base.Journeys[0].Walking.Eta,
		},
	}
	return pb
}
