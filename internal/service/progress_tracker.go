package service

import (
	"sync"
	"time"

	"course_platform_backend/internal/model"
	"course_platform_backend/internal/util"
	"course_platform_backend/pkg/logger"
	"course_platform_backend/pkg/monitoring"
	"course_platform_backend/pkg/scheduler"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// SaveInterval 播放进度周期落库间隔
	SaveInterval = 10 * time.Second
	// CompletionThreshold 观看比例达到该百分比即视为完成，
	// 容忍片尾字幕和播放器end事件不可靠
	CompletionThreshold = 90.0
	// SessionIdleTimeout 心跳停止超过该时长的会话由后台回收
	SessionIdleTimeout = 5 * time.Minute
)

// ProgressStore 进度持久化抽象，由 repository.ProgressRepository 实现
type ProgressStore interface {
	Find(userID, lessonID, courseID uint) (*model.ProgressRecord, error)
	Upsert(rec *model.ProgressRecord) error
}

// Viewer 显式传入的观看者身份，不从全局上下文隐式获取
type Viewer struct {
	UserID  uint
	IsAdmin bool
}

// CompletionCallback 课时首次达到完成阈值时触发
type CompletionCallback func(userID, courseID, lessonID uint)

// ProgressTracker 管理所有打开的视频观看会话
type ProgressTracker struct {
	store ProgressStore
	sched scheduler.Scheduler
	clock scheduler.Clock

	mu       sync.Mutex
	sessions map[string]*TrackerSession
}

func NewProgressTracker(store ProgressStore, sched scheduler.Scheduler, clock scheduler.Clock) *ProgressTracker {
	return &ProgressTracker{
		store:    store,
		sched:    sched,
		clock:    clock,
		sessions: make(map[string]*TrackerSession),
	}
}

// TrackerSession 单个课时观看期间的跟踪状态
type TrackerSession struct {
	ID string

	viewer   Viewer
	lessonID uint
	courseID uint
	duration int

	tracker *ProgressTracker

	mu         sync.Mutex
	position   int
	completed  bool
	suppressed bool // 管理员预览且记录已完成：不再触发回调
	inert      bool // 匿名、无视频或管理员旁路：不读不写
	closed     bool
	lastBeat   time.Time
	onComplete CompletionCallback
	stopSave   func()
}

// Open 打开课时时建立跟踪会话并加载既有进度。
//   - 匿名用户或无视频课时：惰性会话，零读写。
//   - 管理员且未提供完成回调：整体旁路，浏览内容不污染学习数据。
//   - 管理员提供了回调（预览完成行为）：正常跟踪，但记录已完成时回调被抑制。
//   - 普通用户且记录已完成：仅在打开时触发一次回调，不再保存。
func (t *ProgressTracker) Open(viewer Viewer, lesson *model.Lesson, onComplete CompletionCallback) *TrackerSession {
	s := &TrackerSession{
		ID:         model.GenerateUUID(),
		viewer:     viewer,
		lessonID:   lesson.ID,
		courseID:   lesson.CourseID,
		duration:   lesson.DurationSeconds,
		tracker:    t,
		lastBeat:   t.clock.Now(),
		onComplete: onComplete,
	}

	if viewer.UserID == 0 || !lesson.HasVideo() || (viewer.IsAdmin && onComplete == nil) {
		s.inert = true
		t.register(s)
		return s
	}

	rec, err := t.store.Find(viewer.UserID, lesson.ID, lesson.CourseID)
	if err != nil && err != gorm.ErrRecordNotFound {
		// 读失败不影响观看，按无记录处理
		logger.Log.Warn("load progress failed",
			zap.Uint("userId", viewer.UserID),
			zap.Uint("lessonId", lesson.ID),
			zap.Error(err))
	}

	if rec != nil {
		s.position = rec.LastPositionSeconds
		if rec.Completed {
			s.completed = true
			if viewer.IsAdmin {
				s.suppressed = true
			} else if onComplete != nil {
				onComplete(viewer.UserID, lesson.CourseID, lesson.ID)
			}
		}
	}

	if !s.completed {
		s.stopSave = t.sched.Every(SaveInterval, func() {
			s.persist()
		})
	}

	t.register(s)
	return s
}

// Heartbeat 播放器位置上报
func (t *ProgressTracker) Heartbeat(sessionID string, positionSeconds int) (*TrackerSession, error) {
	s := t.get(sessionID)
	if s == nil {
		return nil, util.ErrSessionNotFound
	}
	s.updatePosition(positionSeconds)
	return s, nil
}

// Close 关闭会话：先停周期保存，再发起一次尽力而为的最终保存。
// 最终保存不阻塞调用方，与页面跳转竞争时可能丢失，属已接受的限制。
func (t *ProgressTracker) Close(sessionID string) error {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()

	if !ok {
		return util.ErrSessionNotFound
	}
	s.close()
	return nil
}

// ReapIdle 回收心跳超时的会话，返回回收数量
func (t *ProgressTracker) ReapIdle(maxIdle time.Duration) int {
	cutoff := t.clock.Now().Add(-maxIdle)

	t.mu.Lock()
	var stale []*TrackerSession
	for id, s := range t.sessions {
		if s.lastBeatBefore(cutoff) {
			delete(t.sessions, id)
			stale = append(stale, s)
		}
	}
	t.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	return len(stale)
}

func (t *ProgressTracker) register(s *TrackerSession) {
	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()
	monitoring.ActiveTrackerSessions.Inc()
}

func (t *ProgressTracker) get(sessionID string) *TrackerSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[sessionID]
}

func (s *TrackerSession) updatePosition(positionSeconds int) {
	if positionSeconds < 0 {
		positionSeconds = 0
	}
	s.mu.Lock()
	if !s.closed {
		s.position = positionSeconds
		s.lastBeat = s.tracker.clock.Now()
	}
	s.mu.Unlock()
}

// persist 一次保存：算完成比例、落库、处理完成转移。
// 读写失败只记日志，下一个周期即是重试。
func (s *TrackerSession) persist() {
	s.mu.Lock()
	if s.inert || s.completed {
		s.mu.Unlock()
		return
	}
	position := s.position
	duration := s.duration
	s.mu.Unlock()

	pct := 0.0
	if duration > 0 {
		pct = float64(position) / float64(duration) * 100
	}
	isCompleted := pct >= CompletionThreshold

	rec := &model.ProgressRecord{
		UserID:              s.viewer.UserID,
		LessonID:            s.lessonID,
		CourseID:            s.courseID,
		LastPositionSeconds: position,
		Completed:           isCompleted,
		LastAccessedAt:      s.tracker.clock.Now(),
	}

	if err := s.tracker.store.Upsert(rec); err != nil {
		monitoring.ProgressSaves.WithLabelValues("error").Inc()
		logger.Log.Warn("save progress failed",
			zap.Uint("userId", s.viewer.UserID),
			zap.Uint("lessonId", s.lessonID),
			zap.Error(err))
		return
	}
	monitoring.ProgressSaves.WithLabelValues("ok").Inc()

	if !isCompleted {
		return
	}

	s.mu.Lock()
	already := s.completed
	s.completed = true
	stop := s.stopSave
	suppressed := s.suppressed
	cb := s.onComplete
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if already {
		return
	}

	monitoring.LessonCompletions.Inc()
	if cb != nil && !suppressed {
		cb(s.viewer.UserID, s.courseID, s.lessonID)
	}
}

func (s *TrackerSession) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop := s.stopSave
	inert := s.inert
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	monitoring.ActiveTrackerSessions.Dec()

	if inert {
		return
	}
	go s.persist()
}

func (s *TrackerSession) lastBeatBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBeat.Before(cutoff)
}

// Position 当前播放位置（秒）
func (s *TrackerSession) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Completed 本会话观察到的完成状态
func (s *TrackerSession) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}
