package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"course_platform_backend/internal/model"
	"course_platform_backend/internal/service"
	"course_platform_backend/internal/util"
	"course_platform_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Log = zap.NewNop()
}

type stubCompletionFlow struct {
	complete bool
	err      error
}

func (s *stubCompletionFlow) OnLessonCompleted(userID, courseID, lessonID uint) (bool, error) {
	return s.complete, s.err
}

type stubCatalog struct {
	lesson *model.Lesson
}

func (s *stubCatalog) GetLesson(id uint) (*model.Lesson, error) {
	if s.lesson == nil {
		return nil, util.ErrLessonNotFound
	}
	return s.lesson, nil
}

func (s *stubCatalog) GetProgressSummary(userID, courseID uint) (*service.CourseProgressSummary, error) {
	return &service.CourseProgressSummary{CourseID: courseID}, nil
}

func publishedLesson() *model.Lesson {
	l := &model.Lesson{
		CourseID:        7,
		Title:           "指针与内存",
		Published:       true,
		VideoURL:        "/videos/pointers.mp4",
		DurationSeconds: 100,
	}
	l.ID = 3
	return l
}

func completeLessonContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/api/courses/7/lessons/3/complete", nil)
	ctx.Params = gin.Params{
		{Key: "courseId", Value: "7"},
		{Key: "lessonId", Value: "3"},
	}
	ctx.Set("user", &util.Claims{UserID: 11, Role: model.Student})
	return ctx, w
}

type completeLessonBody struct {
	Code int `json:"code"`
	Data struct {
		CourseCompleted         bool `json:"courseCompleted"`
		CompletionCheckDegraded bool `json:"completionCheckDegraded"`
	} `json:"data"`
}

func TestCompleteLessonReportsCourseCompletion(t *testing.T) {
	c := NewProgressController(nil, &stubCompletionFlow{complete: true}, &stubCatalog{lesson: publishedLesson()})
	ctx, w := completeLessonContext()

	c.CompleteLesson(ctx)

	require.Equal(t, http.StatusOK, w.Code)
	var body completeLessonBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.CourseCompleted)
	assert.False(t, body.Data.CompletionCheckDegraded)
}

func TestCompleteLessonDegradesOnAggregationFailure(t *testing.T) {
	for name, failure := range map[string]error{
		"fetch lessons":  util.ErrFetchLessonsFailed,
		"fetch progress": util.ErrFetchProgressFailed,
	} {
		t.Run(name, func(t *testing.T) {
			flow := &stubCompletionFlow{err: fmt.Errorf("%w: boom", failure)}
			c := NewProgressController(nil, flow, &stubCatalog{lesson: publishedLesson()})
			ctx, w := completeLessonContext()

			c.CompleteLesson(ctx)

			// 课时完成已落库，重算失败降级成功返回，整课状态按未完成处理
			require.Equal(t, http.StatusOK, w.Code)
			var body completeLessonBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Data.CourseCompleted)
			assert.True(t, body.Data.CompletionCheckDegraded)
		})
	}
}

func TestCompleteLessonSurfacesNotificationFailure(t *testing.T) {
	flow := &stubCompletionFlow{
		complete: true,
		err:      fmt.Errorf("%w: sendgrid 503", util.ErrNotificationDispatchFailed),
	}
	c := NewProgressController(nil, flow, &stubCatalog{lesson: publishedLesson()})
	ctx, w := completeLessonContext()

	c.CompleteLesson(ctx)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCompleteLessonUpsertFailureIsInternal(t *testing.T) {
	flow := &stubCompletionFlow{err: fmt.Errorf("%w: db down", util.ErrUpsertProgressFailed)}
	c := NewProgressController(nil, flow, &stubCatalog{lesson: publishedLesson()})
	ctx, w := completeLessonContext()

	c.CompleteLesson(ctx)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
