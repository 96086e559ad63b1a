// Package cfg 加载配置文件并转换为带 cfg tag 的结构体
//
// 转换流程：解码 -> 按 cfg tag 赋值 -> def tag 默认值 -> validate tag 校验
package cfg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Load 读取配置文件，格式由扩展名决定
func Load(filename string, object any) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "read config file %s failed", filename)
	}
	return Unmarshal(data, formatOf(filename), object)
}

// Unmarshal 解码配置数据并写入 object
func Unmarshal(data []byte, format string, object any) error {
	node, err := Decode(data, format)
	if err != nil {
		return err
	}
	return node.ConvertTo(object)
}

func formatOf(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// Node 解码后的配置数据，实现了 ref.Convertable，
// 可以直接作为 ref.TypeOptions.Options 延迟转换为构造函数的参数
type Node struct {
	data any
}

func NewNode(data any) *Node {
	return &Node{data: data}
}

func (n *Node) Data() any {
	return n.data
}

// Sub 按点分隔的路径获取子节点，例如 "database.connection"
func (n *Node) Sub(path string) *Node {
	cur := n.data
	for _, key := range strings.Split(path, ".") {
		if key == "" {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return &Node{}
		}
		cur = m[key]
	}
	return &Node{data: cur}
}

// ConvertTo 转换为结构体并设置默认值、校验
func (n *Node) ConvertTo(object any) error {
	if err := convert(n.data, object); err != nil {
		return errors.WithMessage(err, "convert config failed")
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}
	if err := Validate(object); err != nil {
		return errors.WithMessage(err, "validate config failed")
	}
	return nil
}
