package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"course_platform_backend/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const publishedCacheTTL = 10 * time.Minute

type LessonRepository struct {
	DB  *gorm.DB
	RDB *redis.Client
}

func NewLessonRepository(db *gorm.DB, rdb *redis.Client) *LessonRepository {
	return &LessonRepository{DB: db, RDB: rdb}
}

func (r *LessonRepository) Create(lesson *model.Lesson) error {
	if err := r.DB.Create(lesson).Error; err != nil {
		return err
	}
	r.invalidatePublishedCache(lesson.CourseID)
	return nil
}

func (r *LessonRepository) Save(lesson *model.Lesson) error {
	if err := r.DB.Save(lesson).Error; err != nil {
		return err
	}
	r.invalidatePublishedCache(lesson.CourseID)
	return nil
}

func (r *LessonRepository) FindByID(id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.First(&lesson, id).Error
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *LessonRepository) FindByCourse(courseID uint, publishedOnly bool) ([]model.Lesson, error) {
	var lessons []model.Lesson
	q := r.DB.Where("course_id = ?", courseID).Order("`order` ASC, id ASC")
	if publishedOnly {
		q = q.Where("published = ?", true)
	}
	err := q.Find(&lessons).Error
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

// ListPublishedIDs 课程下已发布课时的ID集合，带Redis缓存。
// 缓存失败只记作未命中，直接回源数据库。
func (r *LessonRepository) ListPublishedIDs(courseID uint) ([]uint, error) {
	ctx := context.Background()
	key := publishedCacheKey(courseID)

	if r.RDB != nil {
		if cached, err := r.RDB.Get(ctx, key).Result(); err == nil {
			var ids []uint
			if err := json.Unmarshal([]byte(cached), &ids); err == nil {
				return ids, nil
			}
		}
	}

	var ids []uint
	err := r.DB.Model(&model.Lesson{}).
		Where("course_id = ? AND published = ?", courseID, true).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}

	if r.RDB != nil {
		if data, err := json.Marshal(ids); err == nil {
			r.RDB.Set(ctx, key, data, publishedCacheTTL)
		}
	}

	return ids, nil
}

func (r *LessonRepository) Delete(id uint) error {
	lesson, err := r.FindByID(id)
	if err != nil {
		return err
	}
	if err := r.DB.Delete(&model.Lesson{}, id).Error; err != nil {
		return err
	}
	r.invalidatePublishedCache(lesson.CourseID)
	return nil
}

func (r *LessonRepository) invalidatePublishedCache(courseID uint) {
	if r.RDB == nil {
		return
	}
	r.RDB.Del(context.Background(), publishedCacheKey(courseID))
}

func publishedCacheKey(courseID uint) string {
	return fmt.Sprintf("course:%d:published_lessons", courseID)
}
