package models

import (
	"gorm.io/gorm"
)

// Category 表示獎項分類，例如 "EduTech Award"
type Category struct {
	gorm.Model
	Name     string    `gorm:"uniqueIndex;not null" json:"name"`
	Position int       `gorm:"not null;default:0" json:"position"` // 列表排序
	SubRooms []SubRoom `gorm:"foreignKey:CategoryID" json:"sub_rooms,omitempty"`
}

// SubRoom 表示分類底下靜態宣告的子聊天室，"General" 不存放在這裡
type SubRoom struct {
	gorm.Model
	CategoryID uint   `gorm:"not null;uniqueIndex:idx_sub_room_category_name" json:"category_id"`
	Name       string `gorm:"not null;uniqueIndex:idx_sub_room_category_name" json:"name"`
	Position   int    `gorm:"not null;default:0" json:"position"`
}

// CategorySeed 啟動時寫入目錄的分類與子聊天室
type CategorySeed struct {
	Name  string
	Rooms []string
}
