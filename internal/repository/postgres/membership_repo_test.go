package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/repository"
	"github.com/dom/shared-calendar/internal/repository/postgres"
	"github.com/dom/shared-calendar/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMembershipRepository(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	t.Run("members ordered by join time", func(t *testing.T) {
		testDB.Truncate(t)
		owner := testutil.NewUserBuilder().WithUsername("owner").Build(t, testDB.DB)
		bob := testutil.NewUserBuilder().WithUsername("bob").Build(t, testDB.DB)
		carol := testutil.NewUserBuilder().WithUsername("carol").Build(t, testDB.DB)
		cal := testutil.NewCalendarBuilder().WithOwner(owner).WithMembers(bob, carol).Build(t, testDB.DB)

		members, err := repos.Membership.ListMembers(ctx, cal.ID)
		require.NoError(t, err)
		require.Len(t, members, 3)
		assert.Equal(t, owner.ID, members[0].UserID)
		assert.True(t, members[0].IsOwner)
		assert.Equal(t, "bob", members[1].Username)
		assert.Equal(t, "carol", members[2].Username)

		next, err := repos.Membership.NextOwnerCandidate(ctx, cal.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, next.UserID)

		owned, err := repos.Membership.GetOwner(ctx, cal.ID)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, owned.UserID)
	})

	t.Run("duplicate membership rejected", func(t *testing.T) {
		testDB.Truncate(t)
		owner := testutil.NewUserBuilder().Build(t, testDB.DB)
		cal := testutil.NewCalendarBuilder().WithOwner(owner).Build(t, testDB.DB)

		err := repos.Membership.Create(ctx, &domain.Membership{
			ID: uuid.New(), UserID: owner.ID, CalendarID: cal.ID, JoinedAt: time.Now(),
		})
		assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	})

	t.Run("second owner rejected at commit", func(t *testing.T) {
		testDB.Truncate(t)
		owner := testutil.NewUserBuilder().Build(t, testDB.DB)
		bob := testutil.NewUserBuilder().Build(t, testDB.DB)
		cal := testutil.NewCalendarBuilder().WithOwner(owner).WithMembers(bob).Build(t, testDB.DB)

		err := repos.Tx.WithinTransaction(ctx, func(tx *repository.Repositories) error {
			m, err := tx.Membership.Get(ctx, cal.ID, bob.ID)
			if err != nil {
				return err
			}
			return tx.Membership.SetOwner(ctx, m.ID, true)
		})
		assert.Error(t, err)

		owned, err := repos.Membership.GetOwner(ctx, cal.ID)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, owned.UserID)
	})

	t.Run("promote then remove in one transaction", func(t *testing.T) {
		testDB.Truncate(t)
		owner := testutil.NewUserBuilder().Build(t, testDB.DB)
		bob := testutil.NewUserBuilder().Build(t, testDB.DB)
		cal := testutil.NewCalendarBuilder().WithOwner(owner).WithMembers(bob).Build(t, testDB.DB)

		err := repos.Tx.WithinTransaction(ctx, func(tx *repository.Repositories) error {
			current, err := tx.Membership.GetOwner(ctx, cal.ID)
			if err != nil {
				return err
			}
			next, err := tx.Membership.NextOwnerCandidate(ctx, cal.ID, owner.ID)
			if err != nil {
				return err
			}
			if err := tx.Membership.SetOwner(ctx, next.ID, true); err != nil {
				return err
			}
			return tx.Membership.Delete(ctx, current.ID)
		})
		require.NoError(t, err)

		owned, err := repos.Membership.GetOwner(ctx, cal.ID)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, owned.UserID)
	})

	t.Run("list by user loads calendars", func(t *testing.T) {
		testDB.Truncate(t)
		user := testutil.NewUserBuilder().Build(t, testDB.DB)
		a := testutil.NewCalendarBuilder().WithName("A").WithOwner(user).Build(t, testDB.DB)
		other := testutil.NewUserBuilder().Build(t, testDB.DB)
		testutil.NewCalendarBuilder().WithName("B").WithOwner(other).WithMembers(user).Build(t, testDB.DB)

		memberships, err := repos.Membership.ListByUserID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, memberships, 2)
		for _, m := range memberships {
			require.NotNil(t, m.Calendar)
			assert.Equal(t, m.Calendar.ID == a.ID, m.IsOwner)
		}
	})
}
