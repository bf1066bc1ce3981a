package controller

import (
	"course_platform_backend/internal/service"
	"course_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	NotificationService *service.NotificationService
	Hub                 *service.NotificationHub
}

func NewNotificationController(notificationService *service.NotificationService, hub *service.NotificationHub) *NotificationController {
	return &NotificationController{
		NotificationService: notificationService,
		Hub:                 hub,
	}
}

// @Summary 完成通知列表
// @Description 当前用户的整课完成记录（含证书地址）
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/notifications [get]
func (c *NotificationController) ListNotifications(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	items, err := c.NotificationService.ListForUser(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, items)
}

// @Summary 完成事件推送
// @Description WebSocket连接，实时接收整课完成事件
// @Tags 通知
// @Security BearerAuth
// @Router /api/ws/notifications [get]
func (c *NotificationController) ServeWS(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.Hub.ServeWS(ctx.Writer, ctx.Request, user.UserID); err != nil {
		util.LogInternalError(ctx, err)
	}
}
