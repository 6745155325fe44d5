package csv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSemicolonExport(t *testing.T) {
	data := strings.Join([]string{
		"MusteriID;UrunKodu;Tarih;Miktar;BirimFiyat;Kategori",
		"C1;P1;2024-01-05 10:30:00;2;12,50;Toys",
		"C2;P2;05.01.2024;1;3,2;Toys",
		"C1;P3;2024-02-01;0;5,00;Toys",
		"C3;P1;2024-02-03;1;-1;Toys",
		"C4;P1;not a date;1;1;Toys",
		";P1;2024-02-03;1;1;Toys",
	}, "\n")

	r, err := newReader(strings.NewReader(data))
	require.NoError(t, err)

	txs, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "C1", txs[0].CustomerID)
	assert.Equal(t, "P1", txs[0].ProductID)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC), txs[0].Timestamp)
	assert.InDelta(t, 12.5, txs[0].UnitPrice, 1e-12)
	assert.InDelta(t, 25, txs[0].TotalAmount, 1e-12)
	assert.InDelta(t, 6.25, txs[0].NetProfit, 1e-12)
	assert.Nil(t, txs[0].UnitCost)

	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), txs[1].Timestamp)
	assert.InDelta(t, 3.2, txs[1].UnitPrice, 1e-12)

	assert.Equal(t, Stats{Rows: 6, Kept: 2, Malformed: 2, NonPositive: 2}, r.Stats())
}

func TestReaderEnglishHeadersWithCost(t *testing.T) {
	data := "CustomerID,StockCode,InvoiceDate,Quantity,UnitPrice,Cost\n" +
		"17850,85123A,12/1/2010 8:26,6,2.55,1.55\n" +
		"17850,71053,12/1/2010 8:26,6,3.39,0\n"

	r, err := newReader(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{ColumnCustomer, ColumnProduct, ColumnDate, ColumnQuantity, ColumnUnitPrice, ColumnUnitCost}, r.Headers())

	txs, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].UnitCost)
	assert.InDelta(t, 1.55, *txs[0].UnitCost, 1e-12)
	assert.InDelta(t, 15.3, txs[0].TotalAmount, 1e-12)
	assert.InDelta(t, 6, txs[0].NetProfit, 1e-12)
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), txs[0].Timestamp)
}

func TestReaderMissingColumn(t *testing.T) {
	_, err := newReader(strings.NewReader("customer id,date,quantity,price\nC1,2024-01-01,1,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"product"`)
}

func TestReaderCancelled(t *testing.T) {
	r, err := newReader(strings.NewReader("customer id,product id,date,quantity,price\nC1,P1,2024-01-01,1,1\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReaderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("customer id;product id;date;quantity;price\nC1;P1;2024-01-01;1;9,99\n"), 0o600))

	r, err := NewReader(path, WithLocation(time.UTC))
	require.NoError(t, err)
	defer r.Close()

	txs, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.InDelta(t, 9.99, txs[0].TotalAmount, 1e-12)

	_, err = NewReader(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
