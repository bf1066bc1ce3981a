package repository

import (
	"course_platform_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository struct {
	DB *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{DB: db}
}

// ClaimCompletion 插入 (用户, 课程) 完成触发行。
// 返回 created=false 表示该行已存在，通知此前已经发过。
func (r *NotificationRepository) ClaimCompletion(userID, courseID uint) (*model.CourseCompletion, bool, error) {
	cc := &model.CourseCompletion{
		UserID:   userID,
		CourseID: courseID,
	}

	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(cc)
	if res.Error != nil {
		return nil, false, res.Error
	}

	if res.RowsAffected == 0 {
		var existing model.CourseCompletion
		err := r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).
			First(&existing).Error
		if err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}

	return cc, true, nil
}

func (r *NotificationRepository) Save(cc *model.CourseCompletion) error {
	return r.DB.Save(cc).Error
}

func (r *NotificationRepository) ListByUser(userID uint) ([]model.CourseCompletion, error) {
	var list []model.CourseCompletion
	err := r.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}
