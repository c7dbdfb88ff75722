package person

import (
	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
)

// runtime 人员运行时数据结构
// 功能：记录人员在模拟过程中的所有运行时状态信息
// 说明：该数据结构需要可以被直接复制，不应产生浅拷贝带来的副作用
type runtime struct {
	// 上一时刻状态，室外由runtime提供，室内由SetSnapshotByAoi触发从runtime复制
	Status personv2.Status

	// 上一时刻的trip是否结束
	IsTripEnd bool

	// 供输出或外部接口调用的人的数据快照，与status对应

	XYZ  geometry.Point // 位置
	V    float64        // 速度
	Lane entity.ILane   // 所在车道id
	S    float64        // 车道上的位置
	Aoi  entity.IAoi    // 所在Aoi

	// 行人的Runtime

	IsForward bool // 是否正向行走
}

// toPbPosition 转换为protobuf位置格式
// 功能：将内部位置数据转换为protobuf格式的位置信息
// 参数：ctx-任务上下文，用于坐标转换
// 返回：protobuf格式的位置信息，包含XY坐标和车道/AOI位置
func (rt *runtime) toPbPosition(ctx entity.ITaskContext) *geov2.Position {
	z := rt.XYZ.Z
	position := &geov2.Position{
		XyPosition: &geov2.XYPosition{X: rt.XYZ.X, Y: rt.XYZ.Y, Z: &z},
	}
	if rt.Lane != nil {
		position.LanePosition = &geov2.LanePosition{LaneId: rt.Lane.ID(), S: rt.S}
	}
	if rt.Aoi != nil {
		position.AoiPosition = &geov2.AoiPosition{AoiId: rt.Aoi.ID()}
	}
	return position
}

// ToPb 转换为protobuf人员运动数据
// 功能：将运行时数据转换为protobuf格式的人员运动信息
// 参数：ctx-任务上下文，self-人员实体
// 返回：protobuf格式的人员运动数据
func (rt *runtime) ToPb(ctx entity.ITaskContext, self entity.IPerson) *personv2.PersonMotion {
	pb := &personv2.PersonMotion{
		Id:       self.ID(),
		Status:   rt.Status,
		Position: rt.toPbPosition(ctx),
		V:        rt.V,
		L:        self.Length(),
	}
	return pb
}

// resetByPbPosition 根据protobuf位置重置运行时数据
// 功能：根据给定的位置信息重置人员的运行时状态
// 参数：ctx-任务上下文，pos-protobuf格式的位置信息
// 说明：
// 1. 重置所有运行时数据为初始状态
// 2. 根据位置类型（车道或AOI）设置相应的位置信息
func (rt *runtime) resetByPbPosition(ctx entity.ITaskContext, pos *geov2.Position) {
	*rt = runtime{}
	rt.Status = personv2.Status_STATUS_SLEEP

	if pos.LanePosition != nil {
		rt.Lane = ctx.LaneManager().Get(pos.LanePosition.LaneId)
		rt.S = pos.LanePosition.S
		rt.XYZ = rt.Lane.GetPositionByS(rt.S)
	} else if pos.AoiPosition != nil {
		aoi := ctx.AoiManager().Get(pos.AoiPosition.AoiId)
		rt.Aoi = aoi
		if pos.XyPosition != nil {
			rt.XYZ = geometry.NewPointFromPb(pos.XyPosition)
		} else {
			rt.XYZ = aoi.Centroid()
		}
	} else {
		log.Panic("person: invalid position")
	}
}
