package rewards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishScheduleOnce(t *testing.T) {

	h := newHarness(t)

	s, err := h.store.GetSchedule(testDay)
	require.NoError(t, err)
	assert.Equal(t, daySchedule().Tiers, s.Tiers)
	assert.Equal(t, daySchedule().RewardPerTier, s.RewardPerTier)
	assert.False(t, s.PublishedAt.IsZero())

	replacement := daySchedule()
	replacement.RewardPerTier = []uint64{5000, 20, 5}
	_, err = h.store.PublishSchedule(*replacement)
	assert.ErrorIs(t, err, ErrSchedulePublished)

	s, err = h.store.GetSchedule(testDay)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), s.RewardPerTier[0])
}

func TestPublishScheduleValidates(t *testing.T) {

	h := newHarness(t)

	_, err := h.store.PublishSchedule(Schedule{Day: 7, Tiers: []uint64{100, 1000}, RewardPerTier: []uint64{1, 2}})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = h.store.GetSchedule(7)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestRecordActivityAccumulates(t *testing.T) {

	h := newHarness(t)
	p := addr(t, "bettor")

	h.activity(t, p, 400)
	h.activity(t, p, 250)

	e := h.entry(t, p)
	assert.Equal(t, uint64(650), e.Metric)
	assert.Equal(t, p, e.Participant)
	assert.Equal(t, uint64(testDay), e.Day)
	assert.False(t, e.Claimed)

	expected, err := h.store.EntryAddress(testDay, p)
	require.NoError(t, err)
	assert.Equal(t, expected, e.Address)

	_, err = h.store.RecordActivity(testDay, p, 0)
	assert.ErrorIs(t, err, ErrInvalidActivity)

	_, err = h.store.RecordActivity(testDay, p, ^uint64(0))
	assert.ErrorIs(t, err, ErrInvalidActivity)
	assert.Equal(t, uint64(650), h.entry(t, p).Metric)
}

func TestEntriesAreScopedByDay(t *testing.T) {

	h := newHarness(t)
	p := addr(t, "daily")

	today, err := h.store.EntryAddress(testDay, p)
	require.NoError(t, err)
	tomorrow, err := h.store.EntryAddress(testDay+1, p)
	require.NoError(t, err)
	assert.NotEqual(t, today, tomorrow)

	h.activity(t, p, 10)

	_, err = h.store.GetEntry(testDay+1, p)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	h.activity(t, addr(t, "other"), 20)

	entries, err := h.store.ListEntries(testDay)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = h.store.ListEntries(testDay + 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
