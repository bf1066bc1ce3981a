package service

import (
	"course_platform_backend/internal/model"
	"course_platform_backend/internal/repository"
	"course_platform_backend/internal/util"
	"course_platform_backend/pkg/logger"

	"go.uber.org/zap"
)

type CourseService struct {
	CourseRepo   *repository.CourseRepository
	LessonRepo   *repository.LessonRepository
	ProgressRepo *repository.ProgressRepository
}

func NewCourseService(
	courseRepo *repository.CourseRepository,
	lessonRepo *repository.LessonRepository,
	progressRepo *repository.ProgressRepository,
) *CourseService {
	return &CourseService{
		CourseRepo:   courseRepo,
		LessonRepo:   lessonRepo,
		ProgressRepo: progressRepo,
	}
}

func (s *CourseService) ListPublished(page, limit int) ([]model.Course, int64, error) {
	return s.CourseRepo.FindPublished(page, limit)
}

func (s *CourseService) ListAll() ([]model.Course, error) {
	return s.CourseRepo.FindAll()
}

func (s *CourseService) GetCourse(id uint, includeUnpublished bool) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if !course.Published && !includeUnpublished {
		return nil, util.ErrCourseNotFound
	}
	return course, nil
}

func (s *CourseService) CreateCourse(course *model.Course) error {
	return s.CourseRepo.Create(course)
}

func (s *CourseService) UpdateCourse(course *model.Course) error {
	return s.CourseRepo.Save(course)
}

func (s *CourseService) DeleteCourse(id uint) error {
	return s.CourseRepo.Delete(id)
}

func (s *CourseService) GetLessons(courseID uint, publishedOnly bool) ([]model.Lesson, error) {
	return s.LessonRepo.FindByCourse(courseID, publishedOnly)
}

func (s *CourseService) GetLesson(id uint) (*model.Lesson, error) {
	return s.LessonRepo.FindByID(id)
}

func (s *CourseService) CreateLesson(lesson *model.Lesson) error {
	if _, err := s.CourseRepo.FindByID(lesson.CourseID); err != nil {
		return util.ErrCourseNotFound
	}
	return s.LessonRepo.Create(lesson)
}

func (s *CourseService) UpdateLesson(lesson *model.Lesson) error {
	return s.LessonRepo.Save(lesson)
}

func (s *CourseService) DeleteLesson(id uint) error {
	return s.LessonRepo.Delete(id)
}

// AttachVideo 给课时挂接视频并探测时长。
// 探测失败时时长保持0，该课时不会被自动判定完成，只能显式标记。
func (s *CourseService) AttachVideo(lessonID uint, videoURL, localPath string) (*model.Lesson, error) {
	lesson, err := s.LessonRepo.FindByID(lessonID)
	if err != nil {
		return nil, err
	}

	lesson.VideoURL = videoURL
	lesson.DurationSeconds = 0

	if localPath != "" {
		info, err := util.GetVideoInfo(localPath)
		if err != nil {
			logger.Log.Warn("video probe failed",
				zap.Uint("lessonId", lessonID),
				zap.String("path", localPath),
				zap.Error(err))
		} else {
			lesson.DurationSeconds = int(info.Duration)
		}
	}

	if err := s.LessonRepo.Save(lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

// CourseProgressSummary 课程进度总览
type CourseProgressSummary struct {
	CourseID         uint                   `json:"courseId"`
	TotalLessons     int                    `json:"totalLessons"`
	CompletedLessons int                    `json:"completedLessons"`
	Percent          float64                `json:"percent"`
	Records          []model.ProgressRecord `json:"records"`
}

func (s *CourseService) GetProgressSummary(userID, courseID uint) (*CourseProgressSummary, error) {
	lessonIDs, err := s.LessonRepo.ListPublishedIDs(courseID)
	if err != nil {
		return nil, err
	}

	records, err := s.ProgressRepo.ListByCourse(userID, courseID)
	if err != nil {
		return nil, err
	}

	published := make(map[uint]bool, len(lessonIDs))
	for _, id := range lessonIDs {
		published[id] = true
	}

	completed := 0
	for _, rec := range records {
		if rec.Completed && published[rec.LessonID] {
			completed++
		}
	}

	percent := 0.0
	if len(lessonIDs) > 0 {
		percent = float64(completed) / float64(len(lessonIDs)) * 100
	}

	return &CourseProgressSummary{
		CourseID:         courseID,
		TotalLessons:     len(lessonIDs),
		CompletedLessons: completed,
		Percent:          percent,
		Records:          records,
	}, nil
}
