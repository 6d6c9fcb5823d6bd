package knowledge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// 身份方案v1：point id = xxhash64(逻辑ID的UTF-8字节) 掩码到63位非负整数。
// 该哈希已冻结；更换算法会使所有已存储的point id失效，属于破坏性迁移。
const (
	IdentityVersion = "v1"

	pointIDMask = uint64(1<<63 - 1)
)

// LogicalID 生成块的规范逻辑ID：<source_type>:<source_name>:chunk:<index>
func LogicalID(sourceType, sourceName string, index int) string {
	return fmt.Sprintf("%s:%s:chunk:%d", sourceType, sourceName, index)
}

// PointID 从逻辑ID确定性派生向量库主键
// 纯函数：同一逻辑ID永远得到同一point id，重复摄取因此是更新而非新增
func PointID(logicalID string) uint64 {
	return xxhash.Sum64String(logicalID) & pointIDMask
}

// ParseLogicalID 拆出逻辑ID的组成部分
func ParseLogicalID(logicalID string) (sourceType, sourceName string, index int, ok bool) {
	// source_name自身可能含冒号（如URL），从右侧定位chunk:<index>
	marker := ":chunk:"
	pos := strings.LastIndex(logicalID, marker)
	if pos < 0 {
		return "", "", 0, false
	}
	idx, err := strconv.Atoi(logicalID[pos+len(marker):])
	if err != nil || idx < 0 {
		return "", "", 0, false
	}
	head := logicalID[:pos]
	sep := strings.Index(head, ":")
	if sep <= 0 || sep == len(head)-1 {
		return "", "", 0, false
	}
	return head[:sep], head[sep+1:], idx, true
}
