package live

// 双工通道上传输的消息结构。出站与入站共用一条 WebSocket 连接，
// 一条入站消息的 payload 可能同时携带多类内容，由会话控制器逐类处理。

// 固定的媒体类型标识。
const (
	MimeAudioPCM16k = "audio/pcm;rate=16000"
	MimeJPEG        = "image/jpeg"
)

// MediaFrame 承载一段已编码的媒体数据（音频 PCM 或 JPEG 帧）。
type MediaFrame struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// FunctionResponse 是对一次工具调用的应答，携带原始关联 ID。
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response ResponseResult `json:"response"`
}

// ResponseResult 包装工具执行的文本结果。
type ResponseResult struct {
	Result string `json:"result"`
}

// OutboundMessage 客户端发往远端的消息。
type OutboundMessage struct {
	Media             *MediaFrame        `json:"media,omitempty"`
	FunctionResponses []FunctionResponse `json:"functionResponses,omitempty"`
}

// InlineAudio 入站消息中内联的 base64 PCM 音频（24kHz 单声道）。
type InlineAudio struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolCall 远端发起的一次工具调用请求。
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// InboundMessage 远端发往客户端的消息。各字段相互独立，可同时出现。
type InboundMessage struct {
	Audio            *InlineAudio `json:"audio,omitempty"`
	InputTranscript  string       `json:"inputTranscription,omitempty"`
	OutputTranscript string       `json:"outputTranscription,omitempty"`
	ToolCalls        []ToolCall   `json:"toolCalls,omitempty"`
	Interrupted      bool         `json:"interrupted,omitempty"`
}
