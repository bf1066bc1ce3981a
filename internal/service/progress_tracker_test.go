package service

import (
	"sync"
	"testing"
	"time"

	"course_platform_backend/internal/model"
	"course_platform_backend/internal/util"
	"course_platform_backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	logger.Log = zap.NewNop()
}

type progressKey struct {
	userID, lessonID, courseID uint
}

// fakeProgressStore 内存实现，保持与真实仓库一致的 completed 单调语义
type fakeProgressStore struct {
	mu      sync.Mutex
	records map[progressKey]model.ProgressRecord

	findCalls   int
	upsertCalls int
	findErr     error   // 下一次Find返回该错误后清除
	upsertErrs  []error // 每次Upsert弹出一个，空则成功
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{records: make(map[progressKey]model.ProgressRecord)}
}

func (f *fakeProgressStore) Find(userID, lessonID, courseID uint) (*model.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		err := f.findErr
		f.findErr = nil
		return nil, err
	}
	rec, ok := f.records[progressKey{userID, lessonID, courseID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := rec
	return &out, nil
}

func (f *fakeProgressStore) Upsert(rec *model.ProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++

	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		if err != nil {
			return err
		}
	}

	key := progressKey{rec.UserID, rec.LessonID, rec.CourseID}
	if existing, ok := f.records[key]; ok {
		rec.Completed = rec.Completed || existing.Completed
	}
	f.records[key] = *rec
	return nil
}

func (f *fakeProgressStore) get(userID, lessonID, courseID uint) (model.ProgressRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[progressKey{userID, lessonID, courseID}]
	return rec, ok
}

func (f *fakeProgressStore) counts() (finds, upserts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls, f.upsertCalls
}

// manualScheduler 测试里手动推进周期任务
type manualScheduler struct {
	mu   sync.Mutex
	jobs []*manualJob
}

type manualJob struct {
	fn      func()
	stopped bool
}

func (m *manualScheduler) Every(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &manualJob{fn: fn}
	m.jobs = append(m.jobs, job)
	return func() {
		m.mu.Lock()
		job.stopped = true
		m.mu.Unlock()
	}
}

// Tick 触发一轮所有未停止的周期任务
func (m *manualScheduler) Tick() {
	m.mu.Lock()
	var fns []func()
	for _, job := range m.jobs {
		if !job.stopped {
			fns = append(fns, job.fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *manualScheduler) activeJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if !job.stopped {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testLesson(duration int) *model.Lesson {
	l := &model.Lesson{
		CourseID:        7,
		Title:           "数组与切片",
		Published:       true,
		VideoURL:        "/videos/arrays.mp4",
		DurationSeconds: duration,
	}
	l.ID = 3
	return l
}

type trackerFixture struct {
	store *fakeProgressStore
	sched *manualScheduler
	clock *fakeClock

	tracker *ProgressTracker

	mu        sync.Mutex
	callbacks []progressKey
}

func newTrackerFixture() *trackerFixture {
	fx := &trackerFixture{
		store: newFakeProgressStore(),
		sched: &manualScheduler{},
		clock: newFakeClock(),
	}
	fx.tracker = NewProgressTracker(fx.store, fx.sched, fx.clock)
	return fx
}

func (fx *trackerFixture) onComplete(userID, courseID, lessonID uint) {
	fx.mu.Lock()
	fx.callbacks = append(fx.callbacks, progressKey{userID, lessonID, courseID})
	fx.mu.Unlock()
}

func (fx *trackerFixture) callbackCount() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return len(fx.callbacks)
}

func TestTrackerLateThresholdCrossing(t *testing.T) {
	fx := newTrackerFixture()
	viewer := Viewer{UserID: 11}

	s := fx.tracker.Open(viewer, testLesson(100), fx.onComplete)

	for _, pos := range []int{50, 85} {
		_, err := fx.tracker.Heartbeat(s.ID, pos)
		require.NoError(t, err)
		fx.sched.Tick()

		rec, ok := fx.store.get(11, 3, 7)
		require.True(t, ok)
		assert.Equal(t, pos, rec.LastPositionSeconds)
		assert.False(t, rec.Completed, "below threshold at %d", pos)
		assert.Equal(t, 0, fx.callbackCount())
	}

	// 91/100 = 91% 过阈值
	_, err := fx.tracker.Heartbeat(s.ID, 91)
	require.NoError(t, err)
	fx.sched.Tick()

	rec, _ := fx.store.get(11, 3, 7)
	assert.True(t, rec.Completed)
	assert.True(t, s.Completed())
	assert.Equal(t, 1, fx.callbackCount())
}

func TestTrackerCallbackFiresExactlyOnce(t *testing.T) {
	fx := newTrackerFixture()
	s := fx.tracker.Open(Viewer{UserID: 11}, testLesson(100), fx.onComplete)

	fx.tracker.Heartbeat(s.ID, 95)
	fx.sched.Tick()
	fx.sched.Tick()
	fx.sched.Tick()

	assert.Equal(t, 1, fx.callbackCount())
	// 完成后周期保存停止
	assert.Equal(t, 0, fx.sched.activeJobs())
	_, upserts := fx.store.counts()
	assert.Equal(t, 1, upserts, "no further writes after completion")
}

func TestTrackerZeroDurationNeverCompletes(t *testing.T) {
	fx := newTrackerFixture()
	s := fx.tracker.Open(Viewer{UserID: 11}, testLesson(0), fx.onComplete)

	fx.tracker.Heartbeat(s.ID, 3600)
	fx.sched.Tick()

	rec, ok := fx.store.get(11, 3, 7)
	require.True(t, ok)
	assert.False(t, rec.Completed)
	assert.Equal(t, 0, fx.callbackCount())
}

func TestTrackerAdminBypassNoReadsOrWrites(t *testing.T) {
	fx := newTrackerFixture()
	s := fx.tracker.Open(Viewer{UserID: 11, IsAdmin: true}, testLesson(100), nil)

	fx.tracker.Heartbeat(s.ID, 95)
	fx.sched.Tick()
	require.NoError(t, fx.tracker.Close(s.ID))

	require.Never(t, func() bool {
		finds, upserts := fx.store.counts()
		return finds > 0 || upserts > 0
	}, 50*time.Millisecond, 10*time.Millisecond)
}

func TestTrackerAdminPreviewSuppressesCallbackWhenAlreadyComplete(t *testing.T) {
	fx := newTrackerFixture()
	fx.store.records[progressKey{11, 3, 7}] = model.ProgressRecord{
		UserID: 11, LessonID: 3, CourseID: 7,
		LastPositionSeconds: 95, Completed: true,
	}

	fx.tracker.Open(Viewer{UserID: 11, IsAdmin: true}, testLesson(100), fx.onComplete)
	fx.sched.Tick()

	assert.Equal(t, 0, fx.callbackCount())
	_, upserts := fx.store.counts()
	assert.Equal(t, 0, upserts)
}

func TestTrackerResumeCompletedSignalsWithoutSaving(t *testing.T) {
	fx := newTrackerFixture()
	fx.store.records[progressKey{11, 3, 7}] = model.ProgressRecord{
		UserID: 11, LessonID: 3, CourseID: 7,
		LastPositionSeconds: 95, Completed: true,
	}

	s := fx.tracker.Open(Viewer{UserID: 11}, testLesson(100), fx.onComplete)

	// 打开时即触发回调，进度从存储恢复
	assert.Equal(t, 1, fx.callbackCount())
	assert.Equal(t, 95, s.Position())
	assert.True(t, s.Completed())

	fx.sched.Tick()
	assert.Equal(t, 1, fx.callbackCount())
	_, upserts := fx.store.counts()
	assert.Equal(t, 0, upserts)
}

func TestTrackerAnonymousAndNoVideoAreInert(t *testing.T) {
	fx := newTrackerFixture()

	anon := fx.tracker.Open(Viewer{}, testLesson(100), fx.onComplete)

	noVideo := testLesson(100)
	noVideo.VideoURL = ""
	signed := fx.tracker.Open(Viewer{UserID: 11}, noVideo, fx.onComplete)

	fx.tracker.Heartbeat(anon.ID, 95)
	fx.tracker.Heartbeat(signed.ID, 95)
	fx.sched.Tick()

	finds, upserts := fx.store.counts()
	assert.Equal(t, 0, finds)
	assert.Equal(t, 0, upserts)
	assert.Equal(t, 0, fx.callbackCount())
}

func TestTrackerSaveFailureRetriedNextTick(t *testing.T) {
	fx := newTrackerFixture()
	fx.store.upsertErrs = []error{assert.AnError}

	s := fx.tracker.Open(Viewer{UserID: 11}, testLesson(100), fx.onComplete)

	// 第一次保存失败被吞掉
	fx.tracker.Heartbeat(s.ID, 50)
	fx.sched.Tick()
	_, ok := fx.store.get(11, 3, 7)
	assert.False(t, ok)

	// 下一个周期即是重试
	fx.tracker.Heartbeat(s.ID, 60)
	fx.sched.Tick()
	rec, ok := fx.store.get(11, 3, 7)
	require.True(t, ok)
	assert.Equal(t, 60, rec.LastPositionSeconds)
}

func TestTrackerLoadFailureDoesNotDowngradeStoredCompletion(t *testing.T) {
	fx := newTrackerFixture()
	fx.store.records[progressKey{11, 3, 7}] = model.ProgressRecord{
		UserID: 11, LessonID: 3, CourseID: 7,
		LastPositionSeconds: 95, Completed: true,
	}
	fx.store.findErr = assert.AnError

	s := fx.tracker.Open(Viewer{UserID: 11}, testLesson(100), fx.onComplete)

	// 读失败按无记录处理，会话从零开始
	assert.False(t, s.Completed())
	assert.Equal(t, 0, s.Position())

	fx.tracker.Heartbeat(s.ID, 10)
	fx.sched.Tick()

	// 低于阈值的保存只更新位置，不能把已落库的 completed 拉回 false
	rec, ok := fx.store.get(11, 3, 7)
	require.True(t, ok)
	assert.Equal(t, 10, rec.LastPositionSeconds)
	assert.True(t, rec.Completed)
}

func TestTrackerCloseIssuesFinalSave(t *testing.T) {
	fx := newTrackerFixture()
	s := fx.tracker.Open(Viewer{UserID: 11}, testLesson(100), fx.onComplete)

	fx.tracker.Heartbeat(s.ID, 42)
	require.NoError(t, fx.tracker.Close(s.ID))

	// 最终保存是异步尽力而为
	require.Eventually(t, func() bool {
		rec, ok := fx.store.get(11, 3, 7)
		return ok && rec.LastPositionSeconds == 42
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, fx.tracker.Close(s.ID), util.ErrSessionNotFound)
}

func TestTrackerHeartbeatUnknownSession(t *testing.T) {
	fx := newTrackerFixture()
	_, err := fx.tracker.Heartbeat("no-such-session", 10)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestTrackerReapIdleClosesStaleSessions(t *testing.T) {
	fx := newTrackerFixture()
	s := fx.tracker.Open(Viewer{UserID: 11}, testLesson(100), fx.onComplete)
	fx.tracker.Heartbeat(s.ID, 30)

	fx.clock.Advance(SessionIdleTimeout + time.Minute)
	fresh := fx.tracker.Open(Viewer{UserID: 12}, testLesson(100), fx.onComplete)

	reaped := fx.tracker.ReapIdle(SessionIdleTimeout)
	assert.Equal(t, 1, reaped)

	_, err := fx.tracker.Heartbeat(s.ID, 40)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
	_, err = fx.tracker.Heartbeat(fresh.ID, 10)
	assert.NoError(t, err)

	// 被回收的会话也做一次最终保存
	require.Eventually(t, func() bool {
		rec, ok := fx.store.get(11, 3, 7)
		return ok && rec.LastPositionSeconds == 30
	}, time.Second, 5*time.Millisecond)
}
