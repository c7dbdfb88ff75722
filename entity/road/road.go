package road

import (
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
)

// Road 道路实体
// 功能：表示地图中的道路，包含车道集合与路口连接信息
type Road struct {
	ctx entity.ITaskContext

	id           int32
	laneIDs      []int32
	name         string
	drivingLanes []entity.ILane         // 行车道，按从左到右排序
	walkingLanes []entity.ILane         // 人行道，按从左到右排序
	lanes        map[int32]entity.ILane // 车道id->车道指针映射表

	drivingPredecessor entity.IJunction // 前驱路口
	drivingSuccessor   entity.IJunction // 后继路口
}

// newRoad 创建并初始化一个新的Road实例
// 功能：根据基础数据创建Road对象，按车道类型分类存储
// 参数：ctx-任务上下文，base-基础Road数据，laneManager-车道管理器
// 返回：初始化完成的Road实例
func newRoad(ctx entity.ITaskContext, base *mapv2.Road, laneManager entity.ILaneManager) *Road {
	r := &Road{
		ctx:     ctx,
		id:      base.Id,
		name:    base.Name,
		laneIDs: base.LaneIds,
		lanes:   make(map[int32]entity.ILane),
	}

	for i, laneID := range r.laneIDs {
		lane := laneManager.Get(laneID)
		r.lanes[laneID] = lane
		lane.SetParentRoadWhenInit(r, i)
		switch lane.Type() {
		case mapv2.LaneType_LANE_TYPE_DRIVING:
			r.drivingLanes = append(r.drivingLanes, lane)
		case mapv2.LaneType_LANE_TYPE_WALKING:
			r.walkingLanes = append(r.walkingLanes, lane)
		case mapv2.LaneType_LANE_TYPE_RAIL_TRANSIT:
		default:
			log.Panicf("Unknown lane type: %d", lane.Type())
		}
	}

	return r
}

// initAfterJunction 在Junction初始化后设置Road的路口连接关系
// 功能：根据车道的连接关系确定Road的前驱和后继路口
// 参数：junctionManager-Junction管理器
// 说明：验证前驱和后继路口的唯一性，确保Road连接关系正确
func (r *Road) initAfterJunction(_ entity.IJunctionManager) {
	// 路口。没有行车道的道路退化为用步行道推断
	lanes := r.drivingLanes
	if len(lanes) == 0 {
		lanes = r.walkingLanes
	}
	for _, lane := range lanes {
		for _, pre := range lane.Predecessors() {
			junc := pre.Lane.ParentJunction()
			if junc == nil {
				log.Panicf("Lane %d:%d's predecessor is not in junction", r.id, pre.Lane.ID())
			}
			if r.drivingPredecessor == nil {
				// 设置前驱路口
				r.drivingPredecessor = junc
			} else if r.drivingPredecessor != junc {
				// 检查前驱路口是否唯一
				log.Panicf("Road %d's predecessor is not unique: %d v.s. %d", r.id, r.drivingPredecessor.ID(), junc.ID())
			}
		}
		for _, suc := range lane.Successors() {
			junc := suc.Lane.ParentJunction()
			if junc == nil {
				log.Panicf("Lane %d:%d's successor is not in junction", r.id, suc.Lane.ID())
			}
			if r.drivingSuccessor == nil {
				// 设置后继路口
				r.drivingSuccessor = junc
			} else if r.drivingSuccessor != junc {
				// 检查后继路口是否唯一
				log.Panicf("Road %d's successor is not unique: %d v.s. %d", r.id, r.drivingSuccessor.ID(), junc.ID())
			}
		}
	}
}

// ID 获取Road的唯一标识符
// 功能：返回Road的ID，用于标识和查找特定的Road
// 返回：Road的ID，如果Road为nil则返回-1
func (r *Road) ID() int32 {
	if r == nil {
		return -1
	}
	return r.id
}

// String 获取Road的字符串表示
// 功能：返回Road的字符串描述，用于调试和日志输出
// 返回：Road的字符串表示
func (r *Road) String() string {
	return fmt.Sprintf("Road %d", r.id)
}

// Lanes 获取Road的所有车道映射
// 功能：返回Road内所有车道的映射表，以车道ID为键
// 返回：车道ID到车道对象的映射
func (r *Road) Lanes() map[int32]entity.ILane {
	return r.lanes
}

// WalkingLanes 获取Road的所有步行道
// 功能：返回Road内按从左到右排序的步行道列表
// 返回：步行道列表
func (r *Road) WalkingLanes() []entity.ILane {
	return r.walkingLanes
}

// DrivingPredecessor 获取前驱Junction
// 功能：返回Road的前驱路口，即进入Road的路口
// 返回：前驱路口对象
func (r *Road) DrivingPredecessor() entity.IJunction {
	return r.drivingPredecessor
}

// DrivingSuccessor 获取后继Junction
// 功能：返回Road的后继路口，即离开Road的路口
// 返回：后继路口对象
func (r *Road) DrivingSuccessor() entity.IJunction {
	return r.drivingSuccessor
}

// ProjectToNearestWalkingLane 从其他车道投影到最近的步行道
// 功能：将Road内任意车道上的位置投影到步行道上，用于导航起终点修正
// 参数：lane-原车道，s-原车道上的位置
// 返回：投影后的步行道和位置，如果无步行道则返回nil和0
// 说明：投影使用第一个步行道作为目标车道
func (r *Road) ProjectToNearestWalkingLane(lane entity.ILane, s float64) (entity.ILane, float64) {
	if lane.ParentRoad() != r {
		log.Panicf("Road %d does not contain Lane %d", r.id, lane.ID())
	}
	if len(r.walkingLanes) == 0 {
		return nil, 0
	}
	walkingLane := r.walkingLanes[0]
	if walkingLane == lane {
		return walkingLane, s
	}
	walkingS := walkingLane.ProjectFromLane(lane, s)
	return walkingLane, walkingS
}

// Name 获取Road的名称
// 功能：返回Road的名称，用于显示和标识
// 返回：Road的名称
func (r *Road) Name() string {
	return r.name
}
