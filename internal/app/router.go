package app

import (
	"course_platform_backend/docs"
	"course_platform_backend/internal/config"
	"course_platform_backend/internal/middleware"
	"course_platform_backend/internal/model"

	"course_platform_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerLearnerRoutes(authGroup, c)
	}

	// 3. 教学管理接口
	a.registerStaffRoutes(router, c, repos, cfg)
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.GET("/courses", c.course.ListCourses)
	}
}

func (a *App) registerLearnerRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	// 课程与课时
	rg.GET("/courses/:courseId", c.course.GetCourse)
	rg.GET("/courses/:courseId/progress", c.progress.GetProgressSummary)

	// 观看会话
	rg.POST("/courses/:courseId/lessons/:lessonId/track", c.progress.OpenSession)
	rg.PATCH("/progress/sessions/:sessionId", c.progress.Heartbeat)
	rg.DELETE("/progress/sessions/:sessionId", c.progress.CloseSession)

	// 显式课时完成
	rg.POST("/courses/:courseId/lessons/:lessonId/complete", c.progress.CompleteLesson)

	// 完成通知
	rg.GET("/notifications", c.notification.ListNotifications)
	rg.GET("/ws/notifications", c.notification.ServeWS)
}

func (a *App) registerStaffRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	staff := router.Group("/api/admin")
	staff.Use(
		middleware.AuthMiddleware(cfg),
		middleware.ActivityMiddleware(repos.user),
		middleware.RoleMiddleware(model.Instructor, model.Admin),
	)
	{
		staff.GET("/courses", c.course.ListAllCourses)
		staff.POST("/courses", c.course.CreateCourse)
		staff.PUT("/courses/:courseId", c.course.UpdateCourse)
		staff.DELETE("/courses/:courseId", c.course.DeleteCourse)

		staff.POST("/courses/:courseId/lessons", c.course.CreateLesson)
		staff.PUT("/courses/:courseId/lessons/:lessonId", c.course.UpdateLesson)
		staff.DELETE("/courses/:courseId/lessons/:lessonId", c.course.DeleteLesson)
		staff.PUT("/courses/:courseId/lessons/:lessonId/video", c.course.AttachVideo)
	}
}
