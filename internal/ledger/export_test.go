package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/domain"
)

func TestToCSV(t *testing.T) {
	txs := sampleLedger()

	out, err := ToCSV(txs)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, len(txs)+1)
	assert.Equal(t, "Date,Type,Asset,Amount,Direction,Status,ID", lines[0])
	assert.Equal(t, "2024-05-03T02:00:00.000Z,trade,SOL,10,in,FILLED,ord-1", lines[1])

	for i, line := range lines[1:] {
		cols := strings.Split(line, ",")
		require.Len(t, cols, 7)
		assert.Equal(t, txs[i].ID, cols[6])
	}
}

func TestToCSV_LineCountMatchesRows(t *testing.T) {
	all := sampleLedger()
	for n := 1; n <= len(all); n++ {
		out, err := ToCSV(all[:n])
		require.NoError(t, err)
		assert.Equal(t, n+1, strings.Count(out, "\n"))
	}
}

func TestToCSV_QuotesSeparators(t *testing.T) {
	out, err := ToCSV([]domain.Transaction{{ID: "a,b", Date: day}})
	require.NoError(t, err)
	assert.Contains(t, out, `"a,b"`)
}

func TestToCSV_ControlCharactersStayOnOneLine(t *testing.T) {
	out, err := ToCSV([]domain.Transaction{{ID: "tx\n1", Status: "PEND\r\nING", Asset: "BTC\t", Date: day}})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "PEND  ING,tx 1")
}

func TestToCSV_EmptyIsRejected(t *testing.T) {
	_, err := ToCSV(nil)
	assert.ErrorIs(t, err, ErrEmptyExport)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "transactions-2024-05-01.csv", ExportFilename(day.Add(15*time.Hour)))
}

type stubCollections struct {
	transfers   []domain.Transfer
	orders      []domain.Order
	conversions []domain.Conversion
	err         error
	loads       int
	subscriber  func(collections.Kind)
}

func (s *stubCollections) Transfers(context.Context) ([]domain.Transfer, error) {
	s.loads++
	return s.transfers, s.err
}

func (s *stubCollections) Orders(context.Context) ([]domain.Order, error) {
	return s.orders, s.err
}

func (s *stubCollections) Conversions(context.Context) ([]domain.Conversion, error) {
	return s.conversions, s.err
}

func (s *stubCollections) Subscribe(fn func(collections.Kind)) func() {
	s.subscriber = fn
	return func() { s.subscriber = nil }
}

func TestBook_RecomputesAfterInvalidation(t *testing.T) {
	src := &stubCollections{
		transfers: []domain.Transfer{{ID: "t1", Asset: "BTC", Direction: domain.DirectionIn, CreatedAt: at(1)}},
	}
	book := NewBook(src)
	ctx := context.Background()

	txs, err := book.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	_, err = book.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.loads)

	// Executions do not feed the ledger.
	src.subscriber(collections.KindExecutions)
	_, _ = book.Transactions(ctx)
	assert.Equal(t, 1, src.loads)

	src.orders = []domain.Order{{ID: "o1", Market: "ETH-USD", Side: domain.SideSell, Status: domain.OrderStatusFilled, CreatedAt: at(2)}}
	src.subscriber(collections.KindOrders)

	txs, err = book.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.loads)
	require.Len(t, txs, 2)
	assert.Equal(t, "o1", txs[0].ID)

	book.Close()
	assert.Nil(t, src.subscriber)
}

func TestBook_FetchErrorKeepsPreviousView(t *testing.T) {
	src := &stubCollections{
		transfers: []domain.Transfer{{ID: "t1", Direction: domain.DirectionIn, CreatedAt: at(1)}},
	}
	book := NewBook(src)
	ctx := context.Background()

	_, err := book.Transactions(ctx)
	require.NoError(t, err)

	src.err = errors.New("upstream down")
	book.Refresh()

	txs, err := book.Transactions(ctx)
	require.Error(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "t1", txs[0].ID)
}

func TestBook_Export(t *testing.T) {
	src := &stubCollections{
		transfers: []domain.Transfer{
			{ID: "d1", Asset: "BTC", Amount: dec("1"), Direction: domain.DirectionIn, Status: domain.TransferStatusCompleted, CreatedAt: at(1)},
			{ID: "w1", Asset: "BTC", Amount: dec("1"), Direction: domain.DirectionOut, Status: domain.TransferStatusCompleted, CreatedAt: at(2)},
		},
	}
	book := NewBook(src, WithClock(clock.NewFake(time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC))))

	name, data, err := book.Export(context.Background(), Filter{Tab: TabWithdrawals})
	require.NoError(t, err)
	assert.Equal(t, "transactions-2024-06-02.csv", name)
	assert.Equal(t, 2, strings.Count(data, "\n"))
	assert.Contains(t, data, ",w1\n")

	_, _, err = book.Export(context.Background(), Filter{Tab: TabTrades})
	assert.ErrorIs(t, err, ErrEmptyExport)
}
