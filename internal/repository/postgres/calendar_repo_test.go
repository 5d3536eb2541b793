package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/repository/postgres"
	"github.com/dom/shared-calendar/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCalendarRepository(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	t.Run("share code is unique", func(t *testing.T) {
		testDB.Truncate(t)

		first := &domain.Calendar{ID: uuid.New(), Name: "One", ShareCode: "DUPL1234", CreatedAt: time.Now()}
		require.NoError(t, repos.Calendar.Create(ctx, first))

		exists, err := repos.Calendar.ShareCodeExists(ctx, "DUPL1234")
		require.NoError(t, err)
		assert.True(t, exists)

		second := &domain.Calendar{ID: uuid.New(), Name: "Two", ShareCode: "DUPL1234", CreatedAt: time.Now()}
		assert.ErrorIs(t, repos.Calendar.Create(ctx, second), gorm.ErrDuplicatedKey)
	})

	t.Run("lookup by id and share code", func(t *testing.T) {
		testDB.Truncate(t)
		cal := testutil.NewCalendarBuilder().WithShareCode("LOOK1234").Build(t, testDB.DB)

		byID, err := repos.Calendar.GetByID(ctx, cal.ID)
		require.NoError(t, err)
		assert.Equal(t, "LOOK1234", byID.ShareCode)

		byCode, err := repos.Calendar.GetByShareCode(ctx, "LOOK1234")
		require.NoError(t, err)
		assert.Equal(t, cal.ID, byCode.ID)

		_, err = repos.Calendar.GetByShareCode(ctx, "MISSING0")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("summarize", func(t *testing.T) {
		testDB.Truncate(t)
		owner := testutil.NewUserBuilder().WithUsername("owner").Build(t, testDB.DB)
		bob := testutil.NewUserBuilder().WithUsername("bob").Build(t, testDB.DB)
		cal := testutil.NewCalendarBuilder().WithOwner(owner).WithMembers(bob).Build(t, testDB.DB)

		base := time.Now().UTC().Add(24 * time.Hour)
		for i, title := range []string{"first", "second", "third", "fourth"} {
			testutil.NewEventBuilder(cal).
				WithTitle(title).
				StartingAt(base.Add(time.Duration(i) * time.Hour)).
				Build(t, testDB.DB)
		}

		summary, err := repos.Calendar.Summarize(ctx, cal)
		require.NoError(t, err)
		assert.Equal(t, int64(4), summary.EventsCount)
		assert.Equal(t, int64(2), summary.MembersCount)
		assert.Equal(t, []string{"owner", "bob"}, summary.MemberNames)
		assert.Equal(t, []string{"fourth", "third", "second"}, summary.RecentEventTitles)
	})

	t.Run("delete cascades", func(t *testing.T) {
		testDB.Truncate(t)
		owner := testutil.NewUserBuilder().Build(t, testDB.DB)
		cal := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)
		event := testutil.NewEventBuilder(cal).Build(t, testDB.DB)

		require.NoError(t, repos.Calendar.Delete(ctx, cal.ID))

		_, err := repos.Event.GetByID(ctx, event.ID)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
		_, err = repos.Reminder.GetByEventID(ctx, event.ID)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
		count, err := repos.Membership.CountByCalendarID(ctx, cal.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
