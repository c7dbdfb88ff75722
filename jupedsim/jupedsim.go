// Package jupedsim 定义行人动力学引擎的调用契约。
// 宿主仿真通过这里的接口与引擎交互：构建可行走几何、构建运动模型、
// 创建仿真实例、插入行人并逐步推进。引擎实现可以是外部动力学库的
// 绑定，也可以是本包自带的本地参考实现（NewLocalEngine）
package jupedsim

import "fmt"

// Point 引擎平面坐标（米）
type Point struct {
	X float64
	Y float64
}

// StageID 阶段（途经点）句柄
type StageID uint64

// JourneyID 行程句柄
type JourneyID uint64

// AgentID 引擎内行人句柄
type AgentID uint64

// CollisionFreeSpeedModelParameters 无碰撞速度模型的调校参数
type CollisionFreeSpeedModelParameters struct {
	StrengthNeighborRepulsion float64 // 邻居排斥强度
	RangeNeighborRepulsion    float64 // 邻居排斥范围
	StrengthGeometryRepulsion float64 // 几何排斥强度
	RangeGeometryRepulsion    float64 // 几何排斥范围
}

// AgentParameters 行人插入参数
type AgentParameters struct {
	Position Point     // 初始位置
	Journey  JourneyID // 所属行程
	Stage    StageID   // 初始阶段
	Radius   float64   // 行人半径（米）
	V0       float64   // 期望速度（米/秒）
}

// JourneyDescription 行程描述：有序阶段序列与阶段间的固定转移
type JourneyDescription struct {
	stages      []StageID
	transitions map[StageID]StageID
}

// NewJourneyDescription 创建空行程描述
func NewJourneyDescription() *JourneyDescription {
	return &JourneyDescription{transitions: make(map[StageID]StageID)}
}

// AddStage 追加一个阶段
func (d *JourneyDescription) AddStage(stage StageID) {
	d.stages = append(d.stages, stage)
}

// SetFixedTransition 设置阶段from完成后固定转移到阶段to
func (d *JourneyDescription) SetFixedTransition(from, to StageID) error {
	for _, s := range d.stages {
		if s == from {
			d.transitions[from] = to
			return nil
		}
	}
	return fmt.Errorf("jupedsim: stage %d not in journey", from)
}

// Stages 返回阶段序列
func (d *JourneyDescription) Stages() []StageID { return d.stages }

// Transition 查询阶段stage的固定转移目标
func (d *JourneyDescription) Transition(stage StageID) (StageID, bool) {
	to, ok := d.transitions[stage]
	return to, ok
}

// GeometryBuilder 可行走几何构建器。
// 多次调用AddAccessibleArea/ExcludeFromAccessibleArea后Build，
// 环顶点序列不包含重复的闭合点
type GeometryBuilder interface {
	// AddAccessibleArea 添加可行走区域外环
	AddAccessibleArea(ring []Point)
	// ExcludeFromAccessibleArea 挖去障碍区域
	ExcludeFromAccessibleArea(ring []Point)
	// Build 构建几何，失败时返回引擎诊断信息
	Build() (Geometry, error)
}

// Geometry 引擎几何句柄
type Geometry interface {
	Close()
}

// ModelBuilder 运动模型构建器
type ModelBuilder interface {
	Build() (Model, error)
}

// Model 引擎运动模型句柄
type Model interface {
	Close()
}

// Simulation 引擎仿真实例
type Simulation interface {
	// AddWaypointStage 注册一个途经点阶段，tolerance为到达判定半径
	AddWaypointStage(p Point, tolerance float64) (StageID, error)
	// AddJourney 注册行程
	AddJourney(desc *JourneyDescription) (JourneyID, error)
	// AddAgent 插入行人，位置被占用或不可行走时返回error
	AddAgent(p AgentParameters) (AgentID, error)
	// AgentPosition 查询行人当前位置
	AgentPosition(id AgentID) (Point, error)
	// AgentOrientation 查询行人朝向（单位向量）
	AgentOrientation(id AgentID) (Point, error)
	// MarkAgentForRemoval 标记行人在下次Iterate时移出引擎
	MarkAgentForRemoval(id AgentID) error
	// Iterate 推进一个引擎时间步
	Iterate() error
	// Close 释放仿真实例
	Close()
}

// Engine 引擎入口
type Engine interface {
	NewGeometryBuilder() GeometryBuilder
	NewCollisionFreeSpeedModelBuilder(p CollisionFreeSpeedModelParameters) ModelBuilder
	// NewSimulation 创建仿真实例，dt为引擎时间步长（秒）
	NewSimulation(m Model, g Geometry, dt float64) (Simulation, error)
}
