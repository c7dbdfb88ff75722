package entity

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	tripv2 "git.fiblab.net/sim/protos/v2/go/city/trip/v2"
	"github.com/tsinghua-fib-lab/pedsim-jupedsim-oss/utils/container"
)

// 方位常量
const (
	LEFT   = 0 // 左侧
	RIGHT  = 1 // 右侧
	BEFORE = 0 // 后方，等价于prev/behind
	AFTER  = 1 // 前方，等价于next/ahead
)

// 导航起点终点，初始化时lane+s/aoi二选一，最后需要都有
// （aoi需要转换出对应的出门进门的lane和s）
// XY为终点坐标，指示AOI室内导航的终点
type RoutePosition struct {
	Lane ILane
	S    float64
	Aoi  IAoi
	XY   *geometry.Point
}

func (r RoutePosition) String() string {
	return fmt.Sprintf("RoutePosition{Lane=%v, S=%v, Aoi=%v, XY=%v}", r.Lane, r.S, r.Aoi.ID(), r.XY)
}

// 步行路径段，Lane+方向
type WalkingSegment struct {
	Lane    ILane // 途径车道
	Forward bool  // 是否沿车道前进方向行走
}

// entity/person/person.go的依赖倒置
type IPerson interface {
	// 自身属性

	ID() int32                       // 获取人的ID
	Attr() *personv2.PersonAttribute // 获取人的属性

	ParentID() int32                 // 获取人的空间父对象ID
	PersonType() personv2.PersonType // Person类型
	Aoi() IAoi                       // 获取人所在的Aoi
	Lane() ILane                     // 获取人所在的Lane
	S() float64                      // 获取人在Lane上的位置S坐标
	XYZ() geometry.Point             // 获取人的位置坐标
	V() float64                      // 获取人的速度
	Length() float64                 // 获取人的身体长度
	Width() float64                  // 获取人的身体宽度
	Status() personv2.Status         // 获取人的状态
	IsForward() bool                 // 判断人是否朝向车道前进方向
	SetSchedules(schedules []*tripv2.Schedule)
	DebugTripIndex() int32 // 获取调试用的trip index

	WalkingSpeed() float64          // 获取期望步行速度
	LateralOffset() float64         // 获取出发时相对车道中心线的横向偏移
	WalkingAhead() []WalkingSegment // 获取剩余步行路径段（含当前所在段）
	// 获取当前及后续连续步行trip的终点位置序列（首个为当前trip终点）
	UpcomingWalkingTargets() []RoutePosition

	GetLabel(key string) (string, bool) // 获取指定键的标签值

	// print

	String() string

	// 输出

	ToBasePb() *personv2.Person                                // 产生人的基础Protobuf
	ToMotionPb() *personv2.PersonMotion                        // 产生人的运行时Protobuf
	ToPersonRuntimePb(returnBase bool) *personv2.PersonRuntime // 产生人的运行时Protobuf（全量）
}

// Lane连接关系
type Connection struct {
	Lane ILane                    // 连接到的Lane
	Type mapv2.LaneConnectionType // 连接类型
}

// Lane冲突点
type Overlap struct {
	Other     ILane   // 冲突Lane
	OtherS    float64 // 冲突车道的S坐标
	SelfFirst bool    // 是否本Lane优先
}

// 行人链表节点类型
type PedestrianNode = container.ListNode[IPerson, struct{}]

// 行人链表类型
type PedestrianList = container.List[IPerson, struct{}]

// entity/lane/lane.go的依赖倒置
type ILane interface {
	// 初始化

	SetParentRoadWhenInit(parent IRoad, offset int) // 设置lane所在road的指针与偏移量
	SetParentJunctionWhenInit(parent IJunction)     // 设置lane所在junction
	AddAoiWhenInit(aoi IAoi)                        // 添加lane上的aoi

	// Print

	String() string

	// getter

	ID() int32              // 获取Lane ID
	Length() float64        // 获取Lane长度
	Width() float64         // 获取Lane宽度
	Type() mapv2.LaneType   // 获取Lane类型
	Turn() mapv2.LaneTurn   // 获取Lane转向类型
	ParentID() int32        // 获取Lane的父对象(road/junction)的ID
	Line() []geometry.Point // 获取Lane的中心线
	OffsetInRoad() int      // Road Lane在Road中的偏移量，最左侧为0，往右侧递增

	ProjectFromLane(l ILane, s float64) float64 // 对同一道路内的车道按比例"投影"
	GetClosestLane(candidates []ILane) ILane    // 从候选集中选出与本车道最近的车道，要求候选集与本车道都在同一道路中
	GetRelativePosition(lane ILane) int32       // 获取lane相对于本车道的位置，左负右正

	Predecessors() map[int32]Connection                    // 获取Lane的所有前驱Lane与连接关系
	Successors() map[int32]Connection                      // 获取Lane的所有后继Lane与连接关系
	Overlaps() map[float64]Overlap                         // 获取Lane上的冲突点列表
	Aois() map[int32]IAoi                                  // 获取Lane上的Aoi列表
	LeftLane() ILane                                       // 获取左侧的Lane
	RightLane() ILane                                      // 获取右侧的Lane
	NeighborLane(side int) ILane                           // 根据side获取左(side=0)/右(side=1)侧的Lane
	CenterLine() []geometry.Point                          // 获取Lane的中心线
	CenterLineLengths() []float64                          // 获取Lane的中心线长度
	GetPositionByS(s float64) geometry.Point               // 将当前车道s坐标转换为xy坐标
	GetOffsetPositionByS(s, offset float64) geometry.Point // 将当前车道s坐标，沿行进方向平移offset后的坐标转换为xy坐标
	GetDirectionByS(s float64) geometry.PolylineDirection  // 根据本车道s坐标计算切向角度
	ProjectToLane(pos geometry.Point) float64              // 将xy坐标投影到车道上，返回s坐标
	InRoad() bool                                          // 检查Lane是否为Road Lane
	InJunction() bool                                      // 检查Lane是否为Junction Lane
	IsWalkLane() bool                                      // 检查是否是人行道
	IsCrossing() bool                                      // 检查是否是路口内有冲突点的人行横道

	// 行人链表

	Pedestrians() *PedestrianList // 获取车道上的行人

	// 所在道路/路口

	ParentRoad() IRoad         // 获取Lane所在的Road
	ParentJunction() IJunction // 获取Lane所在的Junction

	// Lane链表操作

	AddPedestrian(node *PedestrianNode)    // 向Lane链表中添加行人（Prepare后生效）
	RemovePedestrian(node *PedestrianNode) // 从Lane链表中移除行人（Prepare后生效）
}

// entity/road/road.go的依赖倒置
type IRoad interface {
	String() string

	ID() int32                     // 获取Road ID
	Name() string                  // 获取Road名称
	Lanes() map[int32]ILane        // 获取Road的所有Lane(ID -> Lane)
	WalkingLanes() []ILane         // 获取Road的所有步行道
	DrivingPredecessor() IJunction // 获取前驱Junction
	DrivingSuccessor() IJunction   // 获取后继Junction

	ProjectToNearestWalkingLane(lane ILane, s float64) (walkingLane ILane, newS float64) // 从其他车道投影到最近的步行道
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32              // 获取Junction ID
	Lanes() map[int32]ILane // 获取Junction内的所有车道（Lane ID -> Lane）
	WalkingLanes() []ILane  // 获取Junction内的步行道
	Crossings() []ILane     // 获取Junction内的人行横道（有冲突点的步行道）
	WalkingAreas() []ILane  // 获取Junction内的步行连接区车道（无冲突点的步行道）
}

// entity/aoi/aoi.go的依赖倒置
type IAoi interface {
	// 自身属性

	ID() int32                // 获取Aoi ID
	Centroid() geometry.Point // 获取Aoi中心点坐标

	// 道路连接关系

	WalkingLanes() map[int32]ILane // 获取Aoi连接到的步行道（Lane ID -> ILane）
	WalkingS(laneID int32) float64 // 输入步行道ID，返回对应的S坐标
	LaneSs() map[int32]float64     // 获取Aoi连接到的所有Lane上的位置（Lane ID -> S）

	AddPerson(p IPerson)    // 添加人到Aoi
	RemovePerson(p IPerson) // 从Aoi中移除人
}

// 行人微观模型中单个行人的状态读取接口
type IPedestrianState interface {
	XYZ() geometry.Point // 获取行人坐标
	V() float64          // 获取行人速度
	Direction() float64  // 获取行人朝向角（弧度）
	Lane() ILane         // 获取行人当前匹配到的车道
	S() float64          // 获取行人在当前车道上的S坐标
	// 获取已消耗的途经点数，调用方据此推进宿主侧的行程进度
	CompletedTargets() int
	Arrived() bool // 行人是否已到达终点
}

// 行人微观模型接口，entity/pedsim/model.go的依赖倒置
type IPedestrianModel interface {
	Init() // 构建可通行区域并创建引擎实例

	// 尝试将行人插入引擎，插入失败（目标位置被占用等）返回error，
	// 调用方可在后续步中重试
	TryAdd(p IPerson) error
	// 将行人移出引擎并清除其状态
	Remove(p IPerson)
	// 查询行人的引擎状态
	Get(personID int32) (IPedestrianState, bool)
	// 引擎内行人数
	ActiveCount() int

	Update(dt float64) // 推进引擎一个宿主步长
	Close()            // 按序释放引擎资源
}
