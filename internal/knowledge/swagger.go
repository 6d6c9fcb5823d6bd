package knowledge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/aihub/testweaver-go/internal/errors"
)

// SwaggerExtractor OpenAPI/Swagger规范提取器
// 每个operation（method+path）和每个schema生成一个独立片段，
// 便于检索时按接口粒度命中
type SwaggerExtractor struct{}

func (p *SwaggerExtractor) SourceType() string { return SourceTypeSwagger }

func (p *SwaggerExtractor) Extract(data []byte, sourceName string) ([]string, error) {
	var spec map[string]interface{}
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, apperrors.NewExtractionError(sourceName, "not valid OpenAPI JSON").WithCause(err)
	}

	var segments []string
	segments = append(segments, operationSegments(spec)...)
	segments = append(segments, schemaSegments(spec)...)

	if len(segments) == 0 {
		return nil, apperrors.NewExtractionError(sourceName, "spec contains no paths or schemas")
	}
	return segments, nil
}

// operationSegments 每个method+path一个片段
func operationSegments(spec map[string]interface{}) []string {
	paths, _ := spec["paths"].(map[string]interface{})

	var segments []string
	for _, path := range sortedKeys(paths) {
		methods, ok := paths[path].(map[string]interface{})
		if !ok {
			continue
		}
		for _, method := range sortedKeys(methods) {
			detail, ok := methods[method].(map[string]interface{})
			if !ok {
				continue
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%s %s", strings.ToUpper(method), path)
			if opID, _ := detail["operationId"].(string); opID != "" {
				fmt.Fprintf(&b, " (operationId=%s)", opID)
			}
			if summary, _ := detail["summary"].(string); summary != "" {
				fmt.Fprintf(&b, "\nsummary: %s", summary)
			}
			if tags, ok := detail["tags"].([]interface{}); ok && len(tags) > 0 {
				fmt.Fprintf(&b, "\ntags: %s", joinAny(tags))
			}

			if params, ok := detail["parameters"].([]interface{}); ok && len(params) > 0 {
				b.WriteString("\nparameters:")
				for _, raw := range params {
					param, ok := raw.(map[string]interface{})
					if !ok {
						continue
					}
					name, _ := param["name"].(string)
					in, _ := param["in"].(string)
					required, _ := param["required"].(bool)
					fmt.Fprintf(&b, "\n  - %s in=%s required=%t", name, in, required)
					if schema, ok := param["schema"].(map[string]interface{}); ok {
						if sig := schemaSignature(schema); sig != "" {
							fmt.Fprintf(&b, " %s", sig)
						}
					}
				}
			}

			if responses, ok := detail["responses"].(map[string]interface{}); ok && len(responses) > 0 {
				b.WriteString("\nresponses:")
				for _, code := range sortedKeys(responses) {
					fmt.Fprintf(&b, "\n  - %s", code)
					if resp, ok := responses[code].(map[string]interface{}); ok {
						if desc, _ := resp["description"].(string); desc != "" {
							fmt.Fprintf(&b, ": %s", desc)
						}
						for _, ref := range collectRefs(resp) {
							fmt.Fprintf(&b, " ref=%s", ref)
						}
					}
				}
			}

			segments = append(segments, b.String())
		}
	}
	return segments
}

// schemaSegments 每个schema定义一个片段，兼容v2 definitions与v3 components
func schemaSegments(spec map[string]interface{}) []string {
	schemas, _ := spec["definitions"].(map[string]interface{})
	if schemas == nil {
		if components, ok := spec["components"].(map[string]interface{}); ok {
			schemas, _ = components["schemas"].(map[string]interface{})
		}
	}

	var segments []string
	for _, name := range sortedKeys(schemas) {
		schema, ok := schemas[name].(map[string]interface{})
		if !ok {
			continue
		}
		segments = append(segments, fmt.Sprintf("schema %s: %s", name, schemaSignature(schema)))
	}
	return segments
}

// schemaSignature 紧凑的schema签名：类型、枚举、引用、属性
// 控制片段体积，避免嵌套定义撑爆embedding输入
func schemaSignature(schema map[string]interface{}) string {
	if ref, ok := schema["$ref"].(string); ok {
		return fmt.Sprintf("ref=%s", ref)
	}

	var parts []string
	if t, ok := schema["type"].(string); ok {
		sig := fmt.Sprintf("type=%s", t)
		if format, ok := schema["format"].(string); ok {
			sig += fmt.Sprintf("(%s)", format)
		}
		parts = append(parts, sig)
	}
	if enum, ok := schema["enum"].([]interface{}); ok && len(enum) > 0 {
		parts = append(parts, fmt.Sprintf("enum=[%s]", joinAny(enum)))
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		parts = append(parts, fmt.Sprintf("items[%s]", schemaSignature(items)))
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		var propBits []string
		for _, name := range sortedKeys(props) {
			prop, ok := props[name].(map[string]interface{})
			if !ok {
				continue
			}
			if ref, ok := prop["$ref"].(string); ok {
				propBits = append(propBits, fmt.Sprintf("%s:ref(%s)", name, ref))
				continue
			}
			t, _ := prop["type"].(string)
			bit := fmt.Sprintf("%s:%s", name, t)
			if format, ok := prop["format"].(string); ok {
				bit += fmt.Sprintf("(%s)", format)
			}
			if enum, ok := prop["enum"].([]interface{}); ok && len(enum) > 0 {
				bit += fmt.Sprintf(" enum=[%s]", joinAny(enum))
			}
			propBits = append(propBits, bit)
		}
		parts = append(parts, "props={"+strings.Join(propBits, ", ")+"}")
	}

	return strings.Join(parts, "; ")
}

// collectRefs 递归收集$ref，去重保序
func collectRefs(obj interface{}) []string {
	var refs []string
	seen := map[string]bool{}

	var walk func(interface{})
	walk = func(node interface{}) {
		switch v := node.(type) {
		case map[string]interface{}:
			if ref, ok := v["$ref"].(string); ok && !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
			for _, key := range sortedKeys(v) {
				walk(v[key])
			}
		case []interface{}:
			for _, item := range v {
				walk(item)
			}
		}
	}
	walk(obj)
	return refs
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinAny(items []interface{}) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	return strings.Join(parts, ", ")
}
