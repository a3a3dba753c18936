package affiliate

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	marketers map[string]*Marketer // keyed by upper-cased code
	upserts   []Commission
}

func (m *mockRepo) FindActiveByCode(_ context.Context, code string) (*Marketer, error) {
	mk, ok := m.marketers[strings.ToUpper(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return mk, nil
}

func (m *mockRepo) UpsertCommission(_ context.Context, c Commission) error {
	m.upserts = append(m.upserts, c)
	return nil
}

func newRepo(marketers ...Marketer) *mockRepo {
	m := &mockRepo{marketers: make(map[string]*Marketer)}
	for i := range marketers {
		m.marketers[strings.ToUpper(marketers[i].Code)] = &marketers[i]
	}
	return m
}

func TestAccrue(t *testing.T) {
	repo := newRepo(Marketer{
		ID:                   "aff-1",
		Code:                 "JORDAN15",
		CommissionPercentage: decimal.NewFromInt(5),
		Active:               true,
	})
	a := NewAccruer(repo)

	// Commission computes on the pre-discount value: 5% of 250.00.
	id, err := a.Accrue(context.Background(), "o1", "JORDAN15", decimal.NewFromInt(250))
	require.NoError(t, err)
	assert.Equal(t, "aff-1", id)

	require.Len(t, repo.upserts, 1)
	c := repo.upserts[0]
	assert.Equal(t, "o1", c.OrderID)
	assert.Equal(t, "aff-1", c.AffiliateID)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("12.50")), "amount %s", c.Amount)
}

func TestAccrue_RoundsToCents(t *testing.T) {
	repo := newRepo(Marketer{
		ID:                   "aff-1",
		Code:                 "CODE",
		CommissionPercentage: decimal.RequireFromString("3.5"),
		Active:               true,
	})
	a := NewAccruer(repo)

	_, err := a.Accrue(context.Background(), "o1", "CODE", decimal.RequireFromString("99.99"))
	require.NoError(t, err)

	// 99.99 * 3.5% = 3.49965, rounded to 3.50.
	assert.True(t, repo.upserts[0].Amount.Equal(decimal.RequireFromString("3.50")))
}

func TestAccrue_NoVoucher(t *testing.T) {
	repo := newRepo()
	a := NewAccruer(repo)

	id, err := a.Accrue(context.Background(), "o1", "", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, repo.upserts)
}

func TestAccrue_UnmatchedVoucherIsNoop(t *testing.T) {
	repo := newRepo()
	a := NewAccruer(repo)

	// A plain discount voucher with no marketer behind it accrues nothing.
	id, err := a.Accrue(context.Background(), "o1", "SUMMER20", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, repo.upserts)
}
