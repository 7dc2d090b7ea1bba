package models

import "time"

// Resume 简历读模型。由摄取管道写入，本服务只读。
type Resume struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	FileName    string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Email       string    `gorm:"type:varchar(255);index"`
	PhoneNumber string    `gorm:"type:varchar(64)"`
	FullContent string    `gorm:"type:longtext"`
	ProcessedAt time.Time `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Resume) TableName() string {
	return "resumes"
}
