// Package shapes 维护命名多边形注册表。
// 多边形来自附加形状YAML文件（指定行人可行走区域、障碍物、TAZ），
// 也可在运行期注册派生形状（如构建完成的行人网络多边形）
package shapes

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"git.fiblab.net/general/common/v2/geometry"
)

var log = logrus.WithField("module", "shapes")

const (
	// TypeWalkableArea 行人可行走区域（并入可行走集合）
	TypeWalkableArea = "pedsim.walkable_area"
	// TypeObstacle 行人障碍物（从可行走集合中挖去）
	TypeObstacle = "pedsim.obstacle"
	// TypeTaz 交通分析区（随机出发位置的采样区域）
	TypeTaz = "taz"
	// TypePedestrianNetwork 构建完成的行人网络多边形（运行期注册）
	TypePedestrianNetwork = "pedsim.pedestrian_network"
)

// Shape 命名多边形
type Shape struct {
	ID     string             // 形状编号
	Type   string             // 形状类型
	Points []geometry.Point   // 外环顶点（不含闭合点）
	Holes  [][]geometry.Point // 内环顶点（不含闭合点）
}

// Bounds 外环的轴对齐包围盒
func (s *Shape) Bounds() (min, max geometry.Point) {
	min.X, min.Y = s.Points[0].X, s.Points[0].Y
	max = min
	for _, p := range s.Points[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	return
}

type shapeData struct {
	ID     string      `yaml:"id"`
	Type   string      `yaml:"type"`
	Points [][]float64 `yaml:"points"` // [[x,y],...]
}

type additionalsData struct {
	Shapes []shapeData `yaml:"shapes"`
}

// Manager 形状注册表
type Manager struct {
	data   map[string]*Shape
	byType map[string][]*Shape
}

// NewManager 创建空的形状注册表
func NewManager() *Manager {
	return &Manager{
		data:   make(map[string]*Shape),
		byType: make(map[string][]*Shape),
	}
}

// Init 从附加形状YAML文件加载，path为空时不加载
func (m *Manager) Init(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("shapes: read %s: %w", path, err)
	}
	var data additionalsData
	if err := yaml.UnmarshalStrict(raw, &data); err != nil {
		return fmt.Errorf("shapes: parse %s: %w", path, err)
	}
	for _, sd := range data.Shapes {
		if len(sd.Points) < 3 {
			return fmt.Errorf("shapes: shape %s has %d points", sd.ID, len(sd.Points))
		}
		points := make([]geometry.Point, len(sd.Points))
		for i, xy := range sd.Points {
			if len(xy) < 2 {
				return fmt.Errorf("shapes: shape %s point %d is not [x,y]", sd.ID, i)
			}
			points[i] = geometry.Point{X: xy[0], Y: xy[1]}
		}
		m.Register(&Shape{ID: sd.ID, Type: sd.Type, Points: points})
	}
	log.Infof("load %d shapes from %s", len(data.Shapes), path)
	return nil
}

// Register 注册形状，编号重复时覆盖并告警
func (m *Manager) Register(s *Shape) {
	if old, ok := m.data[s.ID]; ok {
		log.Warnf("shape %s redefined, dropping the %s one", s.ID, old.Type)
		byType := m.byType[old.Type]
		for i, o := range byType {
			if o == old {
				m.byType[old.Type] = append(byType[:i], byType[i+1:]...)
				break
			}
		}
	}
	m.data[s.ID] = s
	m.byType[s.Type] = append(m.byType[s.Type], s)
}

// Get 按编号查找形状
func (m *Manager) Get(id string) (*Shape, bool) {
	s, ok := m.data[id]
	return s, ok
}

// ByType 按类型列出形状
func (m *Manager) ByType(typ string) []*Shape {
	return m.byType[typ]
}
