package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/caching"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/observability/logging"
	"github.com/kadunajudiciary/courtsync-go/internal/infrastructure/realtime"
)

func TestMutationInvalidationTargets(t *testing.T) {
	policy := NewPolicy(logging.NewTestLogger())

	tests := []struct {
		mutation string
		id       string
		want     []caching.Prefix
	}{
		{MutationCaseCreate, "", []caching.Prefix{caching.CasesListPrefix()}},
		{MutationCaseUpdate, "KDH/2024/100", []caching.Prefix{caching.CaseDetailPrefix("KDH/2024/100"), caching.CasesListPrefix()}},
		{MutationHearingSchedule, "KDH/2024/100", []caching.Prefix{caching.CaseDetailPrefix("KDH/2024/100"), caching.CalendarPrefix()}},
		{MutationMotionApprove, "M-7", []caching.Prefix{caching.MotionDetailPrefix("M-7"), caching.MotionsListPrefix()}},
		{MutationMotionDeny, "M-7", []caching.Prefix{caching.MotionDetailPrefix("M-7"), caching.MotionsListPrefix()}},
		{MutationOrderSign, "O-3", []caching.Prefix{caching.OrdersPrefix()}},
		{MutationDocumentUpload, "KDH/2024/100", []caching.Prefix{caching.DocumentsPrefix(), caching.CaseDetailPrefix("KDH/2024/100")}},
		{MutationChatSend, "", []caching.Prefix{caching.ChatPrefix()}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.ForMutation(tt.mutation, tt.id), tt.mutation)
	}
}

func TestUnknownMutationInvalidatesNothing(t *testing.T) {
	policy := NewPolicy(logging.NewTestLogger())
	assert.Nil(t, policy.ForMutation("case:teleport", "KDH/2024/100"))
}

func TestCaseUpdatedEventWithoutIDWidensToWholeResource(t *testing.T) {
	policy := NewPolicy(logging.NewTestLogger())

	narrow := policy.ForEvent(realtime.EventCaseUpdated, "KDH/2024/100")
	assert.Equal(t, []caching.Prefix{
		caching.CaseDetailPrefix("KDH/2024/100"),
		caching.CasesListPrefix(),
		caching.CalendarPrefix(),
	}, narrow)

	wide := policy.ForEvent(realtime.EventCaseUpdated, "")
	assert.Equal(t, []caching.Prefix{caching.CasesPrefix(), caching.CalendarPrefix()}, wide)
}

func TestApplyMarksMatchingEntriesStale(t *testing.T) {
	logger := logging.NewTestLogger()
	policy := NewPolicy(logger)
	store := caching.NewStore(caching.Options{
		StaleTTL: 5 * time.Minute,
		GCTTL:    10 * time.Minute,
	}, logger)

	store.Set(caching.MotionDetail("M-7"), "detail")
	store.Set(caching.PendingMotions(), "queue")
	store.Set(caching.CasesList(nil), "cases")

	policy.Apply(store, policy.ForMutation(MutationMotionApprove, "M-7"))

	now := time.Now().UTC()
	for _, key := range []caching.Key{caching.MotionDetail("M-7"), caching.PendingMotions()} {
		e, ok := store.Get(key)
		require.True(t, ok)
		assert.True(t, e.IsStale(now))
	}
	e, _ := store.Get(caching.CasesList(nil))
	assert.False(t, e.IsStale(now))
}
