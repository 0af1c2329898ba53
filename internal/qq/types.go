package qq

// Event OneBot v11 消息上报事件（只保留本服务用到的字段）
type Event struct {
	Time        int64   `json:"time"`
	SelfID      int64   `json:"self_id"`
	PostType    string  `json:"post_type"`              // message / meta_event / notice / request
	MessageType string  `json:"message_type,omitempty"` // private / group
	MessageID   int64   `json:"message_id,omitempty"`
	GroupID     int64   `json:"group_id,omitempty"`
	RawMessage  string  `json:"raw_message,omitempty"` // 原始消息文本
	Sender      *Sender `json:"sender,omitempty"`
}

// Sender 消息发送者信息
type Sender struct {
	UserID   int64  `json:"user_id,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Card     string `json:"card,omitempty"` // 群名片
}

// SenderID 返回发送者 QQ 号，缺失时为 0
func (e *Event) SenderID() int64 {
	if e == nil || e.Sender == nil {
		return 0
	}
	return e.Sender.UserID
}
