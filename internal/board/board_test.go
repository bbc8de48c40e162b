package board

import (
	"testing"
	"time"

	"github.com/gravitas-games/screwsort/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout() RowLayout {
	return RowLayout{ContainerWidth: 100, SlotSpacing: 20, HoleSpacing: 50, ContainerRowY: 10, HoleRowY: 90}
}

func newTestBoard(holes int) *Board {
	return New(holes, testLayout(), nil, nil)
}

func TestReserveCommitFillsContainer(t *testing.T) {
	b := newTestBoard(2)
	c, err := b.AddContainer(models.Red, 2)
	require.NoError(t, err)

	d1, err := b.ReserveSlot(c.ID, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DestContainer, d1.Kind)
	assert.Equal(t, models.Vec2{X: 40, Y: 10}, d1.Position)

	_, err = b.ReserveSlot(c.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, -1, c.FirstFreeSlot())

	now := time.Unix(100, 0)
	filled, err := b.CommitSlot(c.ID, 0, 1, now)
	require.NoError(t, err)
	assert.False(t, filled)
	assert.False(t, c.Full(), "reserved-only slots never make a container full")

	filled, err = b.CommitSlot(c.ID, 1, 2, now)
	require.NoError(t, err)
	assert.True(t, filled)
	assert.True(t, c.Full())
	assert.Equal(t, now, c.FilledAt())
	require.NoError(t, b.Audit())
}

func TestReserveSlotRejectsClaimedSlot(t *testing.T) {
	b := newTestBoard(0)
	c, _ := b.AddContainer(models.Blue, 1)

	_, err := b.ReserveSlot(c.ID, 0, 1)
	require.NoError(t, err)

	_, err = b.ReserveSlot(c.ID, 0, 2)
	require.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, models.ItemID(1), c.Slot(0).Item)
}

func TestCommitOccupiedSlotIsInvariantViolation(t *testing.T) {
	b := newTestBoard(0)
	c, _ := b.AddContainer(models.Blue, 2)
	_, _ = b.ReserveSlot(c.ID, 0, 1)
	_, err := b.CommitSlot(c.ID, 0, 1, time.Now())
	require.NoError(t, err)

	_, err = b.CommitSlot(c.ID, 0, 2, time.Now())
	require.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, models.ItemID(1), c.Slot(0).Item)
}

func TestCommitWithoutReservation(t *testing.T) {
	b := newTestBoard(1)
	c, _ := b.AddContainer(models.Blue, 1)

	_, err := b.CommitSlot(c.ID, 0, 5, time.Now())
	require.ErrorIs(t, err, ErrReservationLost)

	err = b.CommitHole(1, 5)
	require.ErrorIs(t, err, ErrReservationLost)

	_, err = b.CommitSlot(99, 0, 5, time.Now())
	require.ErrorIs(t, err, ErrUnknownContainer)
}

func TestHoleLifecycle(t *testing.T) {
	b := newTestBoard(3)

	d, err := b.ReserveHole(2, 7)
	require.NoError(t, err)
	assert.Equal(t, models.HoleID(2), d.Hole)
	assert.Equal(t, models.Vec2{X: 75, Y: 90}, d.Position)

	_, err = b.ReserveHole(2, 8)
	require.ErrorIs(t, err, ErrSlotTaken)

	require.NoError(t, b.CommitHole(2, 7))
	h, _ := b.Hole(2)
	assert.Equal(t, models.ItemID(7), h.Occupant())
	assert.Zero(t, h.ReservedBy())
	assert.Equal(t, 1, b.OccupiedHoles())

	require.ErrorIs(t, b.VacateHole(2, 8), ErrInvariant)
	require.NoError(t, b.VacateHole(2, 7))
	assert.True(t, h.Free())

	_, err = b.ReserveHole(4, 1)
	require.ErrorIs(t, err, ErrUnknownHole)
}

func TestReleaseReturnsSlotToPool(t *testing.T) {
	b := newTestBoard(1)
	c, _ := b.AddContainer(models.Green, 1)

	d, err := b.ReserveSlot(c.ID, 0, 3)
	require.NoError(t, err)
	assert.True(t, b.Holds(d, 3))
	assert.False(t, b.Holds(d, 4))

	require.ErrorIs(t, b.Release(d, 4), ErrReservationLost)
	require.NoError(t, b.Release(d, 3))
	assert.Equal(t, 0, c.FirstFreeSlot())
	assert.False(t, b.Holds(d, 3))

	hd, _ := b.ReserveHole(1, 3)
	require.NoError(t, b.Release(hd, 3))
	h, _ := b.Hole(1)
	assert.True(t, h.Free())
}

func TestRemoveContainerRequiresFull(t *testing.T) {
	b := newTestBoard(0)
	c, _ := b.AddContainer(models.Red, 1)

	require.ErrorIs(t, b.RemoveContainer(c.ID), ErrInvariant)
	_, err := b.MarkForRemoval(c.ID)
	require.ErrorIs(t, err, ErrInvariant)

	_, _ = b.ReserveSlot(c.ID, 0, 1)
	_, _ = b.CommitSlot(c.ID, 0, 1, time.Now())

	marked, err := b.MarkForRemoval(c.ID)
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = b.MarkForRemoval(c.ID)
	require.NoError(t, err)
	assert.False(t, marked, "second mark is a no-op")

	require.NoError(t, b.RemoveContainer(c.ID))
	_, ok := b.Container(c.ID)
	assert.False(t, ok)
	require.ErrorIs(t, b.RemoveContainer(c.ID), ErrUnknownContainer)
}

func TestLanesAreReused(t *testing.T) {
	b := newTestBoard(0)
	a, _ := b.AddContainer(models.Red, 1)
	c2, _ := b.AddContainer(models.Blue, 1)
	assert.Equal(t, 0, a.Lane)
	assert.Equal(t, 1, c2.Lane)

	_, _ = b.ReserveSlot(a.ID, 0, 1)
	_, _ = b.CommitSlot(a.ID, 0, 1, time.Now())
	require.NoError(t, b.RemoveContainer(a.ID))

	c3, _ := b.AddContainer(models.Green, 1)
	assert.Equal(t, 0, c3.Lane)
	assert.Greater(t, c3.ID, c2.ID)
	assert.Equal(t, map[models.Color]int{models.Blue: 1, models.Green: 1}, b.LiveColors())
}

func TestAddContainerRejectsZeroSlots(t *testing.T) {
	b := newTestBoard(0)
	_, err := b.AddContainer(models.Red, 0)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestAuditClean(t *testing.T) {
	b := newTestBoard(2)
	c, _ := b.AddContainer(models.Red, 3)
	_, _ = b.ReserveSlot(c.ID, 0, 1)
	_, _ = b.ReserveHole(1, 2)
	_, _ = b.ReserveHole(2, 3)
	_ = b.CommitHole(2, 3)
	// item 3 sits in hole 2 and reserves a container slot, as during a promotion
	_, _ = b.ReserveSlot(c.ID, 1, 3)

	require.NoError(t, b.Audit())
}
