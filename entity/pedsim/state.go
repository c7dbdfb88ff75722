package pedsim

import (
	"git.fiblab.net/general/common/v2/geometry"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/entity"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/jupedsim"
)

// PState 单个行人在微观引擎中的运行时状态
// 功能：桥接引擎的连续坐标与宿主路网的车道坐标
// 说明：由Add创建，由Update每步修改，行人到达终点或模型销毁时释放
type PState struct {
	person entity.IPerson

	// 引擎关联

	journey   *jupedsim.JourneyDescription
	journeyID jupedsim.JourneyID
	stageID   jupedsim.StageID // 起始stage
	agentID   jupedsim.AgentID // 插入成功前为0
	// 插入等待标志，true表示引擎尚未接受该行人，每步重试插入
	waitingToEnter bool

	// 运动学状态

	position         geometry.Point // 当前引擎坐标
	previousPosition geometry.Point // 上一步引擎坐标，用于推算速度
	angle            float64        // 朝向角（弧度）
	v                float64        // 当前速度
	lane             entity.ILane   // 匹配到的车道
	s                float64        // 车道上的S坐标

	// 剩余途经点，队首为下一个目标
	waypoints []geometry.Point
	// 已消耗的途经点数
	completedTargets int
	// 步行路径段快照与前向匹配下标
	segments []entity.WalkingSegment
	segIndex int

	arrived bool // 是否已到达终点
}

// 获取行人坐标
func (s *PState) XYZ() geometry.Point {
	return s.position
}

// 获取行人速度
func (s *PState) V() float64 {
	return s.v
}

// 获取行人朝向角（弧度）
func (s *PState) Direction() float64 {
	return s.angle
}

// 获取行人当前匹配到的车道
func (s *PState) Lane() entity.ILane {
	return s.lane
}

// 获取行人在当前车道上的S坐标
func (s *PState) S() float64 {
	return s.s
}

// 获取已消耗的途经点数
func (s *PState) CompletedTargets() int {
	return s.completedTargets
}

// 行人是否已到达终点
func (s *PState) Arrived() bool {
	return s.arrived
}

// nextWaypoint 获取下一个途经点
func (s *PState) nextWaypoint() geometry.Point {
	return s.waypoints[0]
}

// advanceNextWaypoint 弹出队首途经点
// 返回：true表示已是最后一个途经点，行人到达终点
func (s *PState) advanceNextWaypoint() bool {
	s.waypoints = s.waypoints[1:]
	s.completedTargets++
	return len(s.waypoints) == 0
}

// release 释放行人状态持有的引擎资源
func (s *PState) release() {
	s.journey = nil
	s.segments = nil
	s.waypoints = nil
}
