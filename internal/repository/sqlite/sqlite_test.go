package sqlite_test

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/repository"
	"github.com/baharkarakas/pixelmart/internal/repository/sqlite/sqlitetest"
)

func newSettlement(t *testing.T, repos repository.Repositories, token string) (models.Settlement, models.User, models.User) {
	t.Helper()
	buyer := sqlitetest.User(t, repos, "buyer_"+token, "")
	s1 := sqlitetest.User(t, repos, "s1_"+token, "acct_s1")
	s2 := sqlitetest.User(t, repos, "s2_"+token, "acct_s2")
	i1 := sqlitetest.Item(t, repos, s1, 1000)
	i2 := sqlitetest.Item(t, repos, s2, 2000)

	s, err := repos.Settlements.Create(context.Background(), models.Settlement{
		BuyerID: buyer.ID,
		Items: []models.SettlementItem{
			{ItemID: i1.ID, SellerID: s1.ID, Price: 1000},
			{ItemID: i2.ID, SellerID: s2.ID, Price: 2000},
		},
		TotalPrice:       3000,
		PlatformFee:      30,
		ProcessingFee:    120,
		Payouts:          []models.Payout{{SellerID: s1.ID, Amount: 950}, {SellerID: s2.ID, Amount: 1900}},
		CorrelationToken: token,
	})
	require.NoError(t, err)
	return s, s1, s2
}

func TestSettlementRoundTrip(t *testing.T) {
	repos := sqlitetest.New(t)
	s, s1, s2 := newSettlement(t, repos, "tg_a")

	got, err := repos.Settlements.GetByCorrelationToken(context.Background(), "tg_a")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, []string{s1.ID, s2.ID}, got.SellerIDs())
	assert.Len(t, got.Items, 2)
	assert.True(t, got.Balanced())
	assert.Equal(t, models.SettlementPending, got.State())
	assert.Empty(t, got.SessionID)
	assert.Equal(t, []string{}, got.FailedTransfers)
}

func TestCreateRejectsDuplicateToken(t *testing.T) {
	repos := sqlitetest.New(t)
	s, _, _ := newSettlement(t, repos, "tg_dup")

	_, err := repos.Settlements.Create(context.Background(), models.Settlement{
		BuyerID:          s.BuyerID,
		CorrelationToken: "tg_dup",
	})
	assert.True(t, errors.Is(err, errors.AlreadyExists), "got %v", err)
}

func TestGetMissing(t *testing.T) {
	repos := sqlitetest.New(t)
	_, err := repos.Settlements.GetByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = repos.Items.GetByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = repos.Users.GetByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestAttachSessionOnce(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	s, _, _ := newSettlement(t, repos, "tg_b")

	require.NoError(t, repos.Settlements.AttachSession(ctx, s.ID, "cs_1"))
	err := repos.Settlements.AttachSession(ctx, s.ID, "cs_2")
	assert.True(t, errors.Is(err, errors.AlreadyExists), "got %v", err)

	err = repos.Settlements.AttachSession(ctx, "missing", "cs_3")
	assert.True(t, errors.Is(err, errors.NotFound))

	got, err := repos.Settlements.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", got.SessionID)
}

func TestMarkPaidClaimsOnce(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	s, _, _ := newSettlement(t, repos, "tg_c")

	claimed, err := repos.Settlements.MarkPaid(ctx, "tg_c", "cs_1")
	require.NoError(t, err)
	assert.False(t, claimed, "no session attached yet")

	require.NoError(t, repos.Settlements.AttachSession(ctx, s.ID, "cs_1"))

	claimed, err = repos.Settlements.MarkPaid(ctx, "tg_c", "cs_other")
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = repos.Settlements.MarkPaid(ctx, "tg_c", "cs_1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repos.Settlements.MarkPaid(ctx, "tg_c", "cs_1")
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = repos.Settlements.MarkPaid(ctx, "tg_unknown", "cs_1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRecordAndClearTransfers(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	s, s1, s2 := newSettlement(t, repos, "tg_d")

	_, err := repos.Settlements.RecordTransfers(ctx, s.ID, nil)
	assert.True(t, errors.Is(err, errors.NotValid), "unpaid record: %v", err)

	require.NoError(t, repos.Settlements.AttachSession(ctx, s.ID, "cs_d"))
	_, err = repos.Settlements.MarkPaid(ctx, "tg_d", "cs_d")
	require.NoError(t, err)

	got, err := repos.Settlements.RecordTransfers(ctx, s.ID, []string{s2.ID})
	require.NoError(t, err)
	assert.Equal(t, models.SettlementPartialFailure, got.State())
	assert.Equal(t, []string{s2.ID}, got.FailedTransfers)

	outstanding, err := repos.Settlements.ListOutstanding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	assert.Equal(t, s.ID, outstanding[0].ID)

	_, err = repos.Settlements.ClearFailedTransfer(ctx, s.ID, s1.ID)
	assert.True(t, errors.Is(err, errors.NotFound), "s1 never failed: %v", err)

	got, err = repos.Settlements.ClearFailedTransfer(ctx, s.ID, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSettled, got.State())
	assert.Empty(t, got.FailedTransfers)

	outstanding, err = repos.Settlements.ListOutstanding(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, outstanding)
}

func TestClaimFailedTransfer(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	s, s1, s2 := newSettlement(t, repos, "tg_claim")
	require.NoError(t, repos.Settlements.AttachSession(ctx, s.ID, "cs_claim"))
	_, err := repos.Settlements.MarkPaid(ctx, "tg_claim", "cs_claim")
	require.NoError(t, err)
	_, err = repos.Settlements.RecordTransfers(ctx, s.ID, []string{s2.ID})
	require.NoError(t, err)

	claimed, err := repos.Settlements.ClaimFailedTransfer(ctx, s.ID, s1.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "s1 never failed")

	claimed, err = repos.Settlements.ClaimFailedTransfer(ctx, s.ID, s2.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = repos.Settlements.ClaimFailedTransfer(ctx, s.ID, s2.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "already held")

	got, err := repos.Settlements.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s2.ID}, got.FailedTransfers, "a held leg is still failed")

	require.NoError(t, repos.Settlements.ReleaseTransferClaim(ctx, s.ID, s2.ID))
	err = repos.Settlements.ReleaseTransferClaim(ctx, s.ID, s2.ID)
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)

	claimed, err = repos.Settlements.ClaimFailedTransfer(ctx, s.ID, s2.ID)
	require.NoError(t, err)
	assert.True(t, claimed, "released legs can be claimed again")

	got, err = repos.Settlements.ClearFailedTransfer(ctx, s.ID, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSettled, got.State())
	claimed, err = repos.Settlements.ClaimFailedTransfer(ctx, s.ID, s2.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestListByParty(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	s, s1, _ := newSettlement(t, repos, "tg_e")

	byBuyer, err := repos.Settlements.ListByBuyer(ctx, s.BuyerID, 10, 0)
	require.NoError(t, err)
	require.Len(t, byBuyer, 1)

	bySeller, err := repos.Settlements.ListBySeller(ctx, s1.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, bySeller, 1)
	assert.Equal(t, s.ID, bySeller[0].ID)

	none, err := repos.Settlements.ListBySeller(ctx, s.BuyerID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	owner := sqlitetest.User(t, repos, "owner", "acct")

	var created models.Item
	err := repos.Tx.WithTx(ctx, func(tx repository.Repositories) error {
		var err error
		created, err = tx.Items.Create(ctx, models.Item{OwnerID: owner.ID, URL: "https://x.test/1"})
		if err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = repos.Items.GetByID(ctx, created.ID)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestItemsPriceAndSoftDelete(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	owner := sqlitetest.User(t, repos, "owner", "acct")
	other := sqlitetest.User(t, repos, "other", "")
	it := sqlitetest.Item(t, repos, owner, 500)

	require.NoError(t, repos.Items.UpdatePrice(ctx, it.ID, 700, "price_new"))
	got, err := repos.Items.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.Price)
	assert.Equal(t, "price_new", got.PriceHandle)

	n, err := repos.Items.SoftDelete(ctx, other.ID, []string{it.ID})
	require.NoError(t, err)
	assert.Zero(t, n, "only the owner may delete")

	n, err = repos.Items.SoftDelete(ctx, owner.ID, []string{it.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = repos.Items.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	listed, err := repos.Items.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	err = repos.Items.UpdatePrice(ctx, it.ID, 800, "price_x")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestOwnershipCopyKeepsBackReference(t *testing.T) {
	ctx := context.Background()
	repos := sqlitetest.New(t)
	seller := sqlitetest.User(t, repos, "seller", "acct")
	buyer := sqlitetest.User(t, repos, "buyer", "")
	it := sqlitetest.Item(t, repos, seller, 900)

	cp, err := repos.Items.Create(ctx, it.OwnershipCopy(buyer.ID))
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, cp.OwnerID)
	assert.Equal(t, seller.ID, cp.OriginalUser)
	assert.Zero(t, cp.Price)
	assert.False(t, cp.IsPublic)
	assert.Empty(t, cp.PriceHandle)

	many, err := repos.Items.GetMany(ctx, []string{it.ID, cp.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, many, 2)
}

func TestDuplicateUser(t *testing.T) {
	repos := sqlitetest.New(t)
	sqlitetest.User(t, repos, "dup", "")
	_, err := repos.Users.Create(context.Background(), models.User{Username: "dup", Email: "dup2@example.test"})
	assert.True(t, errors.Is(err, errors.AlreadyExists), "got %v", err)
}
