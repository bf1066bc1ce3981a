package model

import "time"

// ProgressRecord 每个 (用户, 课时, 课程) 组合至多一条记录
type ProgressRecord struct {
	BaseModel
	UserID              uint      `gorm:"uniqueIndex:idx_user_lesson_course;not null;type:bigint unsigned" json:"userId"`
	LessonID            uint      `gorm:"uniqueIndex:idx_user_lesson_course;not null;type:bigint unsigned" json:"lessonId"`
	CourseID            uint      `gorm:"uniqueIndex:idx_user_lesson_course;index;not null;type:bigint unsigned" json:"courseId"`
	LastPositionSeconds int       `gorm:"default:0" json:"lastPositionSeconds"`
	Completed           bool      `gorm:"default:false" json:"completed"`
	LastAccessedAt      time.Time `json:"lastAccessedAt"`
}

func (ProgressRecord) TableName() string {
	return "progress_records"
}

// CourseCompletion 整课完成的触发记录，(用户, 课程) 唯一。
// 唯一索引保证完成通知至多发送一次。
type CourseCompletion struct {
	BaseModel
	UserID         uint       `gorm:"uniqueIndex:idx_user_course;not null;type:bigint unsigned" json:"userId"`
	CourseID       uint       `gorm:"uniqueIndex:idx_user_course;not null;type:bigint unsigned" json:"courseId"`
	NotifiedAt     *time.Time `json:"notifiedAt"`
	CertificateURL string     `gorm:"size:255" json:"certificateUrl"`
	EmailSent      bool       `gorm:"default:false" json:"emailSent"`
}

func (CourseCompletion) TableName() string {
	return "course_completions"
}
