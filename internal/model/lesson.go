package model

type Lesson struct {
	BaseModel
	CourseID        uint   `gorm:"index;not null;type:bigint unsigned" json:"courseId"`
	Title           string `gorm:"size:255;not null" json:"title"`
	Description     string `gorm:"type:text" json:"description"`
	Order           int    `gorm:"default:0" json:"order"`
	Published       bool   `gorm:"default:false;index" json:"published"`
	VideoURL        string `gorm:"size:255" json:"videoUrl"`
	DurationSeconds int    `gorm:"default:0" json:"durationSeconds"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// HasVideo 无视频的课时不做播放进度跟踪
func (l *Lesson) HasVideo() bool {
	return l.VideoURL != ""
}
