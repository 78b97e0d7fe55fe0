package models

// Contact 关怀圈联系人（有序列表项，position 1 为首选联系人）
// 归属外部关怀圈存储，本引擎只在升级时读取有序快照
type Contact struct {
	ContactID string `json:"contact_id" db:"contact_id"`
	Name      string `json:"name" db:"name"`
	Phone     string `json:"phone" db:"phone"`
	Position  int    `json:"position" db:"position"`
}
