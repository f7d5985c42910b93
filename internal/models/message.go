package models

import (
	"time"
)

// Message 代表聊天室中的一則訊息
// 訊息只保存在記憶體中，建立後不會被修改或刪除
type Message struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	Seq        uint64 `json:"seq"` // 房間內的伺服器接收順序，從 1 開始
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	// Timestamp 由伺服器在收到訊息時設定，排序一律以 Seq 為準
	Timestamp time.Time `json:"timestamp"`
	// ClientTimestamp 客戶端送出時附帶的時間，只用於顯示
	ClientTimestamp *time.Time `json:"clientTimestamp,omitempty"`
}
