package tools

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const manualSystemPrompt = `你是维修车间的技术资料助手。根据设备名称与故障描述，给出简明的检修步骤。
要求：
1. 最多五个步骤，按顺序编号
2. 只给操作指令，不要寒暄
3. 涉及危险操作时先给出安全提示`

const manualUserPrompt = `设备：{device}
故障描述：{issue}`

// ManualConfig 控制检修手册服务的行为。
type ManualConfig struct {
	Enabled bool
}

// ManualService 使用大模型生成检修步骤，模型不可用时回退到内置手册摘录。
type ManualService struct {
	enabled bool
	chain   compose.Runnable[map[string]any, *schema.Message]
}

// NewManualService 创建检修手册服务。chatModel 可为 nil，此时只使用内置摘录。
func NewManualService(ctx context.Context, chatModel model.ChatModel, cfg ManualConfig) (*ManualService, error) {
	svc := &ManualService{enabled: cfg.Enabled && chatModel != nil}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(manualSystemPrompt),
		schema.UserMessage(manualUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile manual chain: %w", err)
	}

	svc.chain = runnable
	return svc, nil
}

// Enabled 返回是否启用了大模型生成。
func (s *ManualService) Enabled() bool {
	return s != nil && s.enabled && s.chain != nil
}

// Lookup 返回给定设备与故障的检修步骤。任何模型侧失败都回退到内置摘录。
func (s *ManualService) Lookup(ctx context.Context, device, issue string) string {
	if !s.Enabled() {
		return cannedManual(device)
	}

	input := map[string]any{
		"device": strings.TrimSpace(device),
		"issue":  strings.TrimSpace(issue),
	}

	msg, err := s.chain.Invoke(ctx, input)
	if err != nil {
		log.Printf("[tools] manual chain invoke failed, use canned excerpt: %v", err)
		return cannedManual(device)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return cannedManual(device)
	}
	return strings.TrimSpace(msg.Content)
}

// GetManualHandler 把手册服务接入工具分发。
func GetManualHandler(svc *ManualService) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		device, _ := args["device"].(string)
		issue, _ := args["issue"].(string)
		if strings.TrimSpace(device) == "" {
			return "", fmt.Errorf("get_repair_manual: missing device")
		}
		return svc.Lookup(ctx, device, issue), nil
	}
}

// cannedManual 内置的手册摘录，按设备关键词匹配。
func cannedManual(device string) string {
	key := strings.ToLower(strings.TrimSpace(device))
	for kw, text := range cannedExcerpts {
		if strings.Contains(key, kw) {
			return text
		}
	}
	return "1. 断开设备电源并挂牌上锁\n2. 目视检查连接件与管路是否松动渗漏\n3. 参照铭牌型号查阅对应分册后再行拆解"
}

var cannedExcerpts = map[string]string{
	"valve": "1. 关闭上游截止阀并泄压\n2. 拆下阀盖检查阀芯密封面\n3. 更换密封圈后按对角顺序紧固",
	"belt":  "1. 断电并锁定驱动电机\n2. 松开张紧轮拆下旧皮带\n3. 新皮带对中后张紧至规定挠度",
	"pump":  "1. 断电泄压后拆下泵头\n2. 检查叶轮磨损与轴封状态\n3. 回装后手动盘车确认无卡滞",
}
