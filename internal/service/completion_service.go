package service

import (
	"fmt"
	"time"

	"course_platform_backend/internal/util"
	"course_platform_backend/pkg/logger"
	"course_platform_backend/pkg/monitoring"
	"course_platform_backend/pkg/scheduler"

	"go.uber.org/zap"
)

// LessonCatalog 课程下已发布课时的枚举，由 repository.LessonRepository 实现
type LessonCatalog interface {
	ListPublishedIDs(courseID uint) ([]uint, error)
}

// CompletionStore 完成编排需要的进度读写
type CompletionStore interface {
	MarkCompleted(userID, lessonID, courseID uint, at time.Time) error
	ListCompletedLessonIDs(userID, courseID uint) ([]uint, error)
}

// CompletionNotifier 整课完成副作用（通知/证书），至多一次由实现方保证
type CompletionNotifier interface {
	DispatchCourseCompletion(userID, courseID uint) error
}

// CompletionService 课时完成后的编排：落库、重算整课完成、触发副作用
type CompletionService struct {
	progress CompletionStore
	lessons  LessonCatalog
	notifier CompletionNotifier
	clock    scheduler.Clock
}

func NewCompletionService(progress CompletionStore, lessons LessonCatalog, notifier CompletionNotifier, clock scheduler.Clock) *CompletionService {
	return &CompletionService{
		progress: progress,
		lessons:  lessons,
		notifier: notifier,
		clock:    clock,
	}
}

// OnLessonCompleted 返回整课是否完成。
// 进度落库失败直接终止，不在未确认的写入之上判断完成；
// 通知发送失败是唯一需要反馈给用户的错误。
func (s *CompletionService) OnLessonCompleted(userID, courseID, lessonID uint) (bool, error) {
	if err := s.progress.MarkCompleted(userID, lessonID, courseID, s.clock.Now()); err != nil {
		logger.Log.Error("mark lesson completed failed",
			zap.Uint("userId", userID),
			zap.Uint("lessonId", lessonID),
			zap.Error(err))
		return false, fmt.Errorf("%w: %v", util.ErrUpsertProgressFailed, err)
	}

	complete, err := s.IsCourseComplete(userID, courseID)
	if err != nil {
		logger.Log.Error("course completion check failed",
			zap.Uint("userId", userID),
			zap.Uint("courseId", courseID),
			zap.Error(err))
		return false, err
	}
	if !complete {
		return false, nil
	}

	monitoring.CourseCompletions.Inc()
	if err := s.notifier.DispatchCourseCompletion(userID, courseID); err != nil {
		logger.Log.Error("dispatch completion notification failed",
			zap.Uint("userId", userID),
			zap.Uint("courseId", courseID),
			zap.Error(err))
		return true, fmt.Errorf("%w: %v", util.ErrNotificationDispatchFailed, err)
	}

	return true, nil
}

// IsCourseComplete 每次从原始数据重算，不信任任何缓存的完成标志。
// 零已发布课时的课程永远视为未完成，避免空课程被空真地判定为已完成。
func (s *CompletionService) IsCourseComplete(userID, courseID uint) (bool, error) {
	lessonIDs, err := s.lessons.ListPublishedIDs(courseID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", util.ErrFetchLessonsFailed, err)
	}
	if len(lessonIDs) == 0 {
		return false, nil
	}

	completedIDs, err := s.progress.ListCompletedLessonIDs(userID, courseID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", util.ErrFetchProgressFailed, err)
	}

	completed := make(map[uint]bool, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = true
	}
	for _, id := range lessonIDs {
		if !completed[id] {
			return false, nil
		}
	}
	return true, nil
}
