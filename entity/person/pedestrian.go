package person

import (
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
)

const (
	defaultWalkV               = 1.34 // 默认步行速度（米/秒）
	minWalkV                   = 0.5  // 最小步行速度（米/秒）
	maxVNoise                  = .5   // 速度随机扰动最大值（米/秒）
	maxPedestrianPositionNoise = 2    // 出发横向偏移随机扰动最大值（米）
)

// pedestrian 行人实体数据结构
// 功能：管理行人的属性与车道链表节点
type pedestrian struct {
	walkingV      float64 // 期望步行速度（米/秒）
	lateralOffset float64 // 出发时相对车道中心线的横向偏移（米）
	length        float64 // 身体长度（米），0表示未指定
	width         float64 // 身体宽度（米），0表示未指定

	// Lane链表
	node *entity.PedestrianNode // 行人在车道链表中的节点

	// 当前引擎行程中已结清的途经点数，与引擎的消耗计数对齐
	consumedTargets int
}

// updatePedestrian 更新行人状态
// 功能：从行人引擎回读位置、速度与车道匹配结果，维护车道链表索引
// 参数：dt-时间步长
// 返回：isEnd-是否到达终点
// 算法说明：
// 1. 查询引擎状态，不存在时重试插入
// 2. 已到达时把人放到导航终点位置并从引擎移除
// 3. 否则回读位置与速度，车道变化时迁移链表节点
func (p *Person) updatePedestrian(dt float64) (isEnd bool) {
	model := p.ctx.PedestrianModel()
	state, ok := model.Get(p.ID())
	if !ok {
		// 引擎中没有该行人：重新插入，失败则结束本trip
		p.pedestrian.consumedTargets = 0
		if err := model.TryAdd(p); err != nil {
			log.Errorf("person %d lost in pedestrian model: %v, end the trip", p.ID(), err)
			p.endWalking()
			return true
		}
		p.runtime.V = 0
		return false
	}
	if state.Arrived() {
		// 中间途经点对应的trip先行结清，最后一个由到达流程处理
		p.syncCompletedTrips(state.CompletedTargets() - 1)
		p.endWalking()
		model.Remove(p)
		return true
	}
	p.syncCompletedTrips(state.CompletedTargets())

	// 回读引擎状态
	lane := state.Lane()
	s := state.S()
	xyz := lane.GetPositionByS(s)
	xyz.X, xyz.Y = state.XYZ().X, state.XYZ().Y

	// 同步导航进度，维护行走方向
	if p.route.SyncTo(lane) {
		p.runtime.IsForward = p.route.Current().IsForward()
	}
	p.runtime.Lane = lane
	p.runtime.S = s
	p.runtime.XYZ = xyz
	p.runtime.V = state.V()

	// 增量更新车道索引（维护数据）
	if p.snapshot.Lane != p.runtime.Lane {
		if p.snapshot.Lane != nil {
			p.snapshot.Lane.RemovePedestrian(p.pedestrian.node)
		}
		// 换一个新的node来避免remove操作和add操作处理同一个对象需要保证先后顺序
		p.pedestrian.node = newPedestrianNode(p.runtime.S, p)
		p.runtime.Lane.AddPedestrian(p.pedestrian.node)
	}
	// 更新统计
	p.m.recordRunning(dt, p.runtime.V*dt)
	return false
}

// syncCompletedTrips 引擎消耗中间途经点后推进宿主时刻表
// 功能：每消耗一个途经点即结束对应trip，切换到下一trip的预计算路径
// 参数：n-引擎已消耗的途经点总数
// 说明：引擎行程在出发时一次注册了后续trip的途经点（见UpcomingWalkingTargets），
// 宿主侧的trip进度必须跟随引擎的消耗计数推进，否则下一trip会被重复步行
func (p *Person) syncCompletedTrips(n int) {
	for p.pedestrian.consumedTargets < n {
		p.pedestrian.consumedTargets++
		p.m.recordTripEnd(p)
		p.runtime.IsTripEnd = true
		start := p.route.GetCurrentEndPosition()
		p.schedule.NextTrip(p.ctx.Clock().T)
		trip := p.schedule.GetTrip()
		journey, ok := p.preRoutedWalkingJourney(trip)
		if !ok {
			log.Errorf("person %d has no pre-routed walking trip after a waypoint is consumed", p.ID())
			return
		}
		end, ok := p.resolveTripEnd(trip)
		if !ok {
			log.Errorf("person %d cannot resolve the end of trip %v", p.ID(), trip)
			return
		}
		p.route.ProcessInputJourney(journey, start, end)
	}
}

// endWalking 将人放到导航终点并退出车道链表
func (p *Person) endWalking() {
	end := p.route.GetCurrentEndPosition()
	p.runtime.Lane = end.Lane
	p.runtime.S = end.S
	p.runtime.XYZ = end.Lane.GetPositionByS(end.S)
	p.runtime.V = 0
	// 增量更新车道索引（不再维护数据）
	if p.snapshot.Lane != nil {
		p.snapshot.Lane.RemovePedestrian(p.pedestrian.node)
	}
}

func newPedestrianNode(key float64, value entity.IPerson) *entity.PedestrianNode {
	return &entity.PedestrianNode{
		S:     key,
		Value: value,
	}
}

func (p *Person) IsForward() bool {
	return p.snapshot.IsForward
}
