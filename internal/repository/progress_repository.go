package repository

import (
	"time"

	"course_platform_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// Find 获取 (用户, 课时, 课程) 的进度记录，不存在时返回 gorm.ErrRecordNotFound
func (r *ProgressRepository) Find(userID, lessonID, courseID uint) (*model.ProgressRecord, error) {
	var rec model.ProgressRecord
	err := r.DB.Where("user_id = ? AND lesson_id = ? AND course_id = ?", userID, lessonID, courseID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert 按唯一键 (user_id, lesson_id, course_id) 创建或覆盖进度。
// completed 单调：一旦落库为 true 不再被降级。
func (r *ProgressRepository) Upsert(rec *model.ProgressRecord) error {
	tx := r.DB.Begin()
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
		}
	}()

	var existing model.ProgressRecord
	err := tx.Where("user_id = ? AND lesson_id = ? AND course_id = ?",
		rec.UserID, rec.LessonID, rec.CourseID).First(&existing).Error

	if err != nil {
		if err != gorm.ErrRecordNotFound {
			tx.Rollback()
			return err
		}
		err = tx.Create(rec).Error
	} else {
		existing.LastPositionSeconds = rec.LastPositionSeconds
		existing.Completed = existing.Completed || rec.Completed
		existing.LastAccessedAt = rec.LastAccessedAt
		err = tx.Save(&existing).Error
		if err == nil {
			rec.Completed = existing.Completed
		}
	}

	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// MarkCompleted 显式置为完成。已有记录只抬升 completed，不回退播放位置。
func (r *ProgressRepository) MarkCompleted(userID, lessonID, courseID uint, at time.Time) error {
	tx := r.DB.Begin()
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
		}
	}()

	var existing model.ProgressRecord
	err := tx.Where("user_id = ? AND lesson_id = ? AND course_id = ?",
		userID, lessonID, courseID).First(&existing).Error

	if err != nil {
		if err != gorm.ErrRecordNotFound {
			tx.Rollback()
			return err
		}
		err = tx.Create(&model.ProgressRecord{
			UserID:         userID,
			LessonID:       lessonID,
			CourseID:       courseID,
			Completed:      true,
			LastAccessedAt: at,
		}).Error
	} else {
		existing.Completed = true
		existing.LastAccessedAt = at
		err = tx.Save(&existing).Error
	}

	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// ListCompletedLessonIDs 某用户在某课程下已完成课时的ID集合
func (r *ProgressRepository) ListCompletedLessonIDs(userID, courseID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.ProgressRecord{}).
		Where("user_id = ? AND course_id = ? AND completed = ?", userID, courseID, true).
		Pluck("lesson_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByCourse 课程进度总览用
func (r *ProgressRepository) ListByCourse(userID, courseID uint) ([]model.ProgressRecord, error) {
	var recs []model.ProgressRecord
	err := r.DB.Where("user_id = ? AND course_id = ?", userID, courseID).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}
