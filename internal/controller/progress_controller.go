package controller

import (
	"errors"
	"net/http"
	"strconv"

	"course_platform_backend/internal/model"
	"course_platform_backend/internal/service"
	"course_platform_backend/internal/util"
	"course_platform_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CompletionFlow 课时完成后的编排入口，由 service.CompletionService 实现
type CompletionFlow interface {
	OnLessonCompleted(userID, courseID, lessonID uint) (bool, error)
}

// LessonCatalog 进度接口需要的课程侧读取，由 service.CourseService 实现
type LessonCatalog interface {
	GetLesson(id uint) (*model.Lesson, error)
	GetProgressSummary(userID, courseID uint) (*service.CourseProgressSummary, error)
}

type ProgressController struct {
	Tracker       *service.ProgressTracker
	Completion    CompletionFlow
	CourseService LessonCatalog
}

func NewProgressController(
	tracker *service.ProgressTracker,
	completion CompletionFlow,
	courseService LessonCatalog,
) *ProgressController {
	return &ProgressController{
		Tracker:       tracker,
		Completion:    completion,
		CourseService: courseService,
	}
}

type SessionResponse struct {
	SessionID           string `json:"sessionId"`
	LastPositionSeconds int    `json:"lastPositionSeconds"`
	Completed           bool   `json:"completed"`
	SaveIntervalSeconds int    `json:"saveIntervalSeconds"`
}

type HeartbeatRequest struct {
	PositionSeconds int `json:"positionSeconds" binding:"min=0"`
}

// @Summary 打开观看会话
// @Description 打开课时视频时建立进度跟踪会话。管理员默认旁路，带 preview=true 时按学员路径跟踪但不触发完成回调。
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param lessonId path int true "课时ID"
// @Param preview query bool false "管理员预览模式"
// @Success 200 {object} util.Response{data=SessionResponse}
// @Router /api/courses/{courseId}/lessons/{lessonId}/track [post]
func (c *ProgressController) OpenSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID, lessonID, ok := parseCourseLesson(ctx)
	if !ok {
		return
	}

	lesson, err := c.CourseService.GetLesson(lessonID)
	if err != nil || lesson.CourseID != courseID {
		util.Error(ctx, http.StatusNotFound, util.ErrLessonNotFound.Error())
		return
	}
	if !lesson.Published && !user.IsAdmin() {
		util.Error(ctx, http.StatusNotFound, util.ErrLessonNotFound.Error())
		return
	}

	viewer := service.Viewer{UserID: user.UserID, IsAdmin: user.IsAdmin()}

	// 管理员不带 preview 参数时不传回调，会话整体旁路
	var onComplete service.CompletionCallback
	if !viewer.IsAdmin || ctx.Query("preview") == "true" {
		onComplete = func(userID, courseID, lessonID uint) {
			if _, err := c.Completion.OnLessonCompleted(userID, courseID, lessonID); err != nil {
				logger.Log.Warn("lesson completion orchestration failed",
					zap.Uint("userId", userID),
					zap.Uint("lessonId", lessonID),
					zap.Error(err))
			}
		}
	}

	session := c.Tracker.Open(viewer, lesson, onComplete)

	util.Success(ctx, SessionResponse{
		SessionID:           session.ID,
		LastPositionSeconds: session.Position(),
		Completed:           session.Completed(),
		SaveIntervalSeconds: int(service.SaveInterval.Seconds()),
	})
}

// @Summary 进度心跳
// @Description 播放器定期上报当前播放位置
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "会话ID"
// @Param body body HeartbeatRequest true "位置"
// @Success 200 {object} util.Response{data=SessionResponse}
// @Router /api/progress/sessions/{sessionId} [patch]
func (c *ProgressController) Heartbeat(ctx *gin.Context) {
	var req HeartbeatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.Tracker.Heartbeat(ctx.Param("sessionId"), req.PositionSeconds)
	if err != nil {
		util.Error(ctx, http.StatusNotFound, err.Error())
		return
	}

	util.Success(ctx, SessionResponse{
		SessionID:           session.ID,
		LastPositionSeconds: session.Position(),
		Completed:           session.Completed(),
		SaveIntervalSeconds: int(service.SaveInterval.Seconds()),
	})
}

// @Summary 关闭观看会话
// @Description 离开播放页时关闭会话，触发一次尽力而为的最终保存
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/progress/sessions/{sessionId} [delete]
func (c *ProgressController) CloseSession(ctx *gin.Context) {
	if err := c.Tracker.Close(ctx.Param("sessionId")); err != nil {
		util.Error(ctx, http.StatusNotFound, err.Error())
		return
	}
	util.Success(ctx, nil)
}

// @Summary 显式标记课时完成
// @Description 无视频或外部评估的课时由前端显式标记完成，同步返回整课是否完成
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{courseId}/lessons/{lessonId}/complete [post]
func (c *ProgressController) CompleteLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID, lessonID, ok := parseCourseLesson(ctx)
	if !ok {
		return
	}

	lesson, err := c.CourseService.GetLesson(lessonID)
	if err != nil || lesson.CourseID != courseID {
		util.Error(ctx, http.StatusNotFound, util.ErrLessonNotFound.Error())
		return
	}

	courseComplete, err := c.Completion.OnLessonCompleted(user.UserID, courseID, lessonID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrNotificationDispatchFailed):
			// 通知失败是唯一对外报错的失败，课程本身已完成
			util.Error(ctx, http.StatusBadGateway, util.ErrNotificationDispatchFailed.Error())
		case errors.Is(err, util.ErrFetchLessonsFailed), errors.Is(err, util.ErrFetchProgressFailed):
			// 课时完成已落库，整课重算失败不对外报错，状态未知按未完成返回
			util.Success(ctx, gin.H{"courseCompleted": false, "completionCheckDegraded": true})
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"courseCompleted": courseComplete})
}

// @Summary 课程进度总览
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=service.CourseProgressSummary}
// @Router /api/courses/{courseId}/progress [get]
func (c *ProgressController) GetProgressSummary(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID, err := strconv.ParseUint(ctx.Param("courseId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	summary, err := c.CourseService.GetProgressSummary(user.UserID, uint(courseID))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

func parseCourseLesson(ctx *gin.Context) (uint, uint, bool) {
	courseID, err := strconv.ParseUint(ctx.Param("courseId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid course id")
		return 0, 0, false
	}
	lessonID, err := strconv.ParseUint(ctx.Param("lessonId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid lesson id")
		return 0, 0, false
	}
	return uint(courseID), uint(lessonID), true
}
