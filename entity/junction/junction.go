package junction

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
)

type Junction struct {
	ctx entity.ITaskContext

	id           int32
	laneIDs      []int32
	lanes        map[int32]entity.ILane // 车道id->车道指针映射表
	walkingLanes []entity.ILane         // 路口内步行道
	crossings    []entity.ILane         // 有冲突点的人行横道
	walkingAreas []entity.ILane         // 无冲突点的步行连接区车道
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：根据基础数据创建Junction对象，初始化车道映射并对步行道分类
// 参数：ctx-任务上下文，base-基础Junction数据，laneManager-车道管理器，roadManager-道路管理器
// 返回：初始化完成的Junction实例
// 说明：路口内步行道按是否携带冲突点区分为人行横道与步行连接区，
// 两类车道在可通行区域构建中使用不同的多边形生成策略
func newJunction(
	ctx entity.ITaskContext,
	base *mapv2.Junction,
	laneManager entity.ILaneManager,
	roadManager entity.IRoadManager,
) *Junction {
	j := &Junction{
		ctx:          ctx,
		id:           base.Id,
		laneIDs:      base.LaneIds,
		lanes:        make(map[int32]entity.ILane),
		walkingLanes: make([]entity.ILane, 0),
		crossings:    make([]entity.ILane, 0),
		walkingAreas: make([]entity.ILane, 0),
	}

	for _, laneID := range j.laneIDs {
		lane := laneManager.Get(laneID)
		lane.SetParentJunctionWhenInit(j)
		j.lanes[laneID] = lane
		if lane.IsWalkLane() {
			j.walkingLanes = append(j.walkingLanes, lane)
			if len(lane.Overlaps()) > 0 {
				j.crossings = append(j.crossings, lane)
			} else {
				j.walkingAreas = append(j.walkingAreas, lane)
			}
		}
	}

	return j
}

// ID 获取Junction的唯一标识符
// 功能：返回Junction的ID，用于标识和查找特定的Junction
// 返回：Junction的ID，如果Junction为nil则返回-1
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

// Lanes 获取Junction内的所有车道映射
// 功能：返回Junction内所有车道的映射表，以车道ID为键
// 返回：车道ID到车道对象的映射
func (j *Junction) Lanes() map[int32]entity.ILane {
	return j.lanes
}

// WalkingLanes 获取Junction内的步行道
func (j *Junction) WalkingLanes() []entity.ILane {
	return j.walkingLanes
}

// Crossings 获取Junction内的人行横道（有冲突点的步行道）
func (j *Junction) Crossings() []entity.ILane {
	return j.crossings
}

// WalkingAreas 获取Junction内的步行连接区车道（无冲突点的步行道）
func (j *Junction) WalkingAreas() []entity.ILane {
	return j.walkingAreas
}
