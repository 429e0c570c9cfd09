package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/workshop-voice/internal/model/parts"
)

// CheckInventoryHandler 按 part_id 查询备件库存。
// 未找到的编号也返回包含该编号的明确答复，方便远端复述给用户。
func CheckInventoryHandler(store parts.Store) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		id, _ := args["part_id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			return "", fmt.Errorf("check_parts_inventory: missing part_id")
		}

		part, ok := store.FindByID(id)
		if !ok {
			return fmt.Sprintf("part %s not found in inventory", id), nil
		}
		return part.Describe(), nil
	}
}
