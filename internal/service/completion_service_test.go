package service

import (
	"sync"
	"testing"
	"time"

	"course_platform_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompletionStore struct {
	mu        sync.Mutex
	completed map[uint]map[uint]bool // courseID -> lessonID -> done

	markErr error
	listErr error
}

func newFakeCompletionStore() *fakeCompletionStore {
	return &fakeCompletionStore{completed: make(map[uint]map[uint]bool)}
}

func (f *fakeCompletionStore) MarkCompleted(userID, lessonID, courseID uint, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	if f.completed[courseID] == nil {
		f.completed[courseID] = make(map[uint]bool)
	}
	f.completed[courseID][lessonID] = true
	return nil
}

func (f *fakeCompletionStore) ListCompletedLessonIDs(userID, courseID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []uint
	for id := range f.completed[courseID] {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeCatalog struct {
	ids map[uint][]uint
	err error
}

func (f *fakeCatalog) ListPublishedIDs(courseID uint) ([]uint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids[courseID], nil
}

type dispatchCall struct {
	userID, courseID uint
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (f *fakeNotifier) DispatchCourseCompletion(userID, courseID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, dispatchCall{userID, courseID})
	return nil
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newCompletionFixture(lessons map[uint][]uint) (*CompletionService, *fakeCompletionStore, *fakeNotifier) {
	store := newFakeCompletionStore()
	notifier := &fakeNotifier{}
	svc := NewCompletionService(store, &fakeCatalog{ids: lessons}, notifier, newFakeClock())
	return svc, store, notifier
}

func TestPartialThenFullCompletion(t *testing.T) {
	svc, _, notifier := newCompletionFixture(map[uint][]uint{7: {1, 2}})

	complete, err := svc.OnLessonCompleted(11, 7, 1)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 0, notifier.callCount())

	complete, err = svc.OnLessonCompleted(11, 7, 2)
	require.NoError(t, err)
	assert.True(t, complete)
	require.Equal(t, 1, notifier.callCount())
	assert.Equal(t, dispatchCall{11, 7}, notifier.calls[0])
}

func TestCourseCompletionExactness(t *testing.T) {
	svc, store, _ := newCompletionFixture(map[uint][]uint{7: {1, 2, 3}})

	store.completed[7] = map[uint]bool{1: true, 2: true}
	complete, err := svc.IsCourseComplete(11, 7)
	require.NoError(t, err)
	assert.False(t, complete, "2 of 3 is not complete")

	store.completed[7][3] = true
	complete, err = svc.IsCourseComplete(11, 7)
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestEmptyCourseNeverComplete(t *testing.T) {
	svc, store, notifier := newCompletionFixture(map[uint][]uint{7: {}})

	// 即使有残留的完成记录（课时下架后）也不算完成
	store.completed[7] = map[uint]bool{9: true}

	complete, err := svc.OnLessonCompleted(11, 7, 9)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 0, notifier.callCount())
}

func TestUpsertFailureAborts(t *testing.T) {
	svc, store, notifier := newCompletionFixture(map[uint][]uint{7: {1}})
	store.markErr = assert.AnError

	complete, err := svc.OnLessonCompleted(11, 7, 1)
	assert.False(t, complete)
	assert.ErrorIs(t, err, util.ErrUpsertProgressFailed)
	assert.Equal(t, 0, notifier.callCount())
}

func TestAggregationFailures(t *testing.T) {
	t.Run("fetch lessons", func(t *testing.T) {
		store := newFakeCompletionStore()
		svc := NewCompletionService(store, &fakeCatalog{err: assert.AnError}, &fakeNotifier{}, newFakeClock())

		_, err := svc.OnLessonCompleted(11, 7, 1)
		assert.ErrorIs(t, err, util.ErrFetchLessonsFailed)
	})

	t.Run("fetch progress", func(t *testing.T) {
		store := newFakeCompletionStore()
		store.listErr = assert.AnError
		svc := NewCompletionService(store, &fakeCatalog{ids: map[uint][]uint{7: {1}}}, &fakeNotifier{}, newFakeClock())

		_, err := svc.OnLessonCompleted(11, 7, 1)
		assert.ErrorIs(t, err, util.ErrFetchProgressFailed)
	})
}

func TestNotificationFailureKeepsCompletionState(t *testing.T) {
	svc, _, notifier := newCompletionFixture(map[uint][]uint{7: {1}})
	notifier.err = assert.AnError

	complete, err := svc.OnLessonCompleted(11, 7, 1)

	// 完成状态与通知是否成功无关
	assert.True(t, complete)
	assert.ErrorIs(t, err, util.ErrNotificationDispatchFailed)

	// 数据未回滚，重算仍为完成
	again, err2 := svc.IsCourseComplete(11, 7)
	require.NoError(t, err2)
	assert.True(t, again)
}

func TestRepeatedLessonCompletionIsIdempotent(t *testing.T) {
	svc, _, notifier := newCompletionFixture(map[uint][]uint{7: {1}})

	complete, err := svc.OnLessonCompleted(11, 7, 1)
	require.NoError(t, err)
	assert.True(t, complete)

	// 再次标记同一课时：编排本身无状态，至多一次由通知方的触发行保证
	complete, err = svc.OnLessonCompleted(11, 7, 1)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, 2, notifier.callCount())
}
