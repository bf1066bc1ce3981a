package controller

import (
	"net/http"
	"strconv"

	"course_platform_backend/internal/model"
	"course_platform_backend/internal/service"
	"course_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{CourseService: courseService}
}

type CourseRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	CoverURL    string `json:"coverUrl"`
	Published   bool   `json:"published"`
}

type LessonRequest struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	Order           int    `json:"order"`
	VideoURL        string `json:"videoUrl"`
	DurationSeconds int    `json:"durationSeconds"`
	Published       bool   `json:"published"`
}

type AttachVideoRequest struct {
	VideoURL  string `json:"videoUrl" binding:"required"`
	LocalPath string `json:"localPath"`
}

// @Summary 课程列表
// @Description 分页返回已发布课程
// @Tags 课程
// @Produce json
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	courses, total, err := c.CourseService.ListPublished(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"items": courses,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// @Summary 全部课程
// @Description 教学端列表，包含未发布课程
// @Tags 教学管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/admin/courses [get]
func (c *CourseController) ListAllCourses(ctx *gin.Context) {
	courses, err := c.CourseService.ListAll()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, courses)
}

// @Summary 课程详情
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{courseId} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	courseID, ok := parseCourseID(ctx)
	if !ok {
		return
	}

	user := util.GetUserFromContext(ctx)
	includeUnpublished := user != nil && user.IsAdmin()

	course, err := c.CourseService.GetCourse(courseID, includeUnpublished)
	if err != nil {
		util.Error(ctx, http.StatusNotFound, util.ErrCourseNotFound.Error())
		return
	}

	lessons, err := c.CourseService.GetLessons(courseID, !includeUnpublished)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"course":  course,
		"lessons": lessons,
	})
}

// @Summary 创建课程
// @Tags 教学管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param course body CourseRequest true "课程信息"
// @Success 201 {object} util.Response
// @Router /api/admin/courses [post]
func (c *CourseController) CreateCourse(ctx *gin.Context) {
	var req CourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course := &model.Course{
		Title:       req.Title,
		Description: req.Description,
		CoverURL:    req.CoverURL,
		Published:   req.Published,
	}

	if err := c.CourseService.CreateCourse(course); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, course)
}

// @Summary 更新课程
// @Tags 教学管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param course body CourseRequest true "课程信息"
// @Success 200 {object} util.Response
// @Router /api/admin/courses/{courseId} [put]
func (c *CourseController) UpdateCourse(ctx *gin.Context) {
	courseID, ok := parseCourseID(ctx)
	if !ok {
		return
	}

	var req CourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.CourseService.GetCourse(courseID, true)
	if err != nil {
		util.Error(ctx, http.StatusNotFound, util.ErrCourseNotFound.Error())
		return
	}

	course.Title = req.Title
	course.Description = req.Description
	course.CoverURL = req.CoverURL
	course.Published = req.Published

	if err := c.CourseService.UpdateCourse(course); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// @Summary 删除课程
// @Tags 教学管理
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/admin/courses/{courseId} [delete]
func (c *CourseController) DeleteCourse(ctx *gin.Context) {
	courseID, ok := parseCourseID(ctx)
	if !ok {
		return
	}
	if err := c.CourseService.DeleteCourse(courseID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 创建课时
// @Tags 教学管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param lesson body LessonRequest true "课时信息"
// @Success 201 {object} util.Response
// @Router /api/admin/courses/{courseId}/lessons [post]
func (c *CourseController) CreateLesson(ctx *gin.Context) {
	courseID, ok := parseCourseID(ctx)
	if !ok {
		return
	}

	var req LessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson := &model.Lesson{
		CourseID:        courseID,
		Title:           req.Title,
		Description:     req.Description,
		Order:           req.Order,
		VideoURL:        req.VideoURL,
		DurationSeconds: req.DurationSeconds,
		Published:       req.Published,
	}

	if err := c.CourseService.CreateLesson(lesson); err != nil {
		if err == util.ErrCourseNotFound {
			util.Error(ctx, http.StatusNotFound, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, lesson)
}

// @Summary 更新课时
// @Tags 教学管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param lessonId path int true "课时ID"
// @Param lesson body LessonRequest true "课时信息"
// @Success 200 {object} util.Response
// @Router /api/admin/courses/{courseId}/lessons/{lessonId} [put]
func (c *CourseController) UpdateLesson(ctx *gin.Context) {
	courseID, lessonID, ok := parseCourseLesson(ctx)
	if !ok {
		return
	}

	var req LessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson, err := c.CourseService.GetLesson(lessonID)
	if err != nil || lesson.CourseID != courseID {
		util.Error(ctx, http.StatusNotFound, util.ErrLessonNotFound.Error())
		return
	}

	lesson.Title = req.Title
	lesson.Description = req.Description
	lesson.Order = req.Order
	lesson.VideoURL = req.VideoURL
	lesson.DurationSeconds = req.DurationSeconds
	lesson.Published = req.Published

	if err := c.CourseService.UpdateLesson(lesson); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// @Summary 删除课时
// @Tags 教学管理
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param lessonId path int true "课时ID"
// @Success 200 {object} util.Response
// @Router /api/admin/courses/{courseId}/lessons/{lessonId} [delete]
func (c *CourseController) DeleteLesson(ctx *gin.Context) {
	courseID, lessonID, ok := parseCourseLesson(ctx)
	if !ok {
		return
	}

	lesson, err := c.CourseService.GetLesson(lessonID)
	if err != nil || lesson.CourseID != courseID {
		util.Error(ctx, http.StatusNotFound, util.ErrLessonNotFound.Error())
		return
	}

	if err := c.CourseService.DeleteLesson(lessonID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 挂接课时视频
// @Description 设置课时视频地址，本地路径可用时用ffprobe探测时长
// @Tags 教学管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param lessonId path int true "课时ID"
// @Param video body AttachVideoRequest true "视频信息"
// @Success 200 {object} util.Response
// @Router /api/admin/courses/{courseId}/lessons/{lessonId}/video [put]
func (c *CourseController) AttachVideo(ctx *gin.Context) {
	courseID, lessonID, ok := parseCourseLesson(ctx)
	if !ok {
		return
	}

	var req AttachVideoRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson, err := c.CourseService.GetLesson(lessonID)
	if err != nil || lesson.CourseID != courseID {
		util.Error(ctx, http.StatusNotFound, util.ErrLessonNotFound.Error())
		return
	}

	updated, err := c.CourseService.AttachVideo(lessonID, req.VideoURL, req.LocalPath)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, updated)
}

func parseCourseID(ctx *gin.Context) (uint, bool) {
	courseID, err := strconv.ParseUint(ctx.Param("courseId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid course id")
		return 0, false
	}
	return uint(courseID), true
}
