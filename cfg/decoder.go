package cfg

import (
	"encoding/json"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decode 按格式解码为 map[string]any 组成的树
// 支持 json, yaml/yml, toml, ini
func Decode(data []byte, format string) (*Node, error) {
	var result any
	var err error
	switch strings.ToLower(format) {
	case "json":
		err = json.Unmarshal(data, &result)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &result)
	case "toml":
		var m map[string]any
		err = toml.Unmarshal(data, &m)
		result = m
	case "ini":
		result, err = decodeIni(data)
	default:
		return nil, errors.Errorf("unsupported config format [%s]", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s failed", format)
	}
	return &Node{data: normalizeKeys(result)}, nil
}

// normalizeKeys yaml 可能产生 map[any]any，统一为 map[string]any
func normalizeKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeKeys(val)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[toString(k)] = normalizeKeys(val)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeKeys(x[i])
		}
		return x
	case []map[string]any:
		list := make([]any, len(x))
		for i := range x {
			list[i] = normalizeKeys(x[i])
		}
		return list
	}
	return v
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// decodeIni section 作为一级 key，默认 section 的键放在顶层
// 值保留为字符串，由转换阶段按目标类型解析
func decodeIni(data []byte) (map[string]any, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, err
	}

	result := map[string]any{}
	for _, section := range f.Sections() {
		target := result
		if section.Name() != ini.DefaultSection {
			target = map[string]any{}
			result[section.Name()] = target
		}
		for _, key := range section.Keys() {
			target[key.Name()] = key.String()
		}
	}
	return result, nil
}
