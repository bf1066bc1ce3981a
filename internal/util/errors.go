package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCourseNotFound     = errors.New("course not found")
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrSessionNotFound    = errors.New("tracking session not found")

	// 完成编排各步骤的错误分类。前三类仅记录日志，不向用户暴露；
	// 通知发送失败是唯一需要反馈给用户的失败。
	ErrUpsertProgressFailed       = errors.New("failed to upsert progress record")
	ErrFetchLessonsFailed         = errors.New("failed to fetch published lessons")
	ErrFetchProgressFailed        = errors.New("failed to fetch completed progress")
	ErrNotificationDispatchFailed = errors.New("failed to dispatch completion notification")
)
