package catalog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockReader(t *testing.T) (*Reader, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	return NewReader(gdb, ReaderConfig{
		Prefix:        "ps_",
		LangID:        1,
		ImageBasePath: "/img/p",
	}), mock
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	l := zerolog.New(zerolog.NewTestWriter(t))
	return l.WithContext(context.Background())
}

func TestExtract(t *testing.T) {
	reader, mock := newMockReader(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT p\.id_product AS id, p\.reference, pl\.name, sa\.quantity`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "name", "quantity"}).
			AddRow(10, "SKU-10", "Blue Shirt", "7").
			AddRow(11, "", "Red Mug", "not-a-number").
			AddRow(12, "SKU-12", "???", "3").
			AddRow(13, "SKU-13", "Green Hat", nil))
	mock.ExpectQuery(`SELECT i\.id_image, i\.id_product, i\.position`).
		WillReturnRows(sqlmock.NewRows([]string{"id_image", "id_product", "position"}).
			AddRow(101, 10, 1).
			AddRow(102, 10, 2).
			AddRow(201, 11, 1))
	mock.ExpectCommit()

	products, err := reader.Extract(testCtx(t))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// Product 12 has an empty slug and is skipped; extraction continues.
	require.Len(t, products, 3)

	assert.Equal(t, "blue-shirt", products[0].Slug)
	assert.Equal(t, "SKU-10", products[0].SKU)
	assert.Equal(t, 7, products[0].Stock)
	require.Len(t, products[0].Images, 2)
	assert.Equal(t, "/img/p/1/0/1/101.jpg", products[0].Images[0].RemotePath)
	assert.Equal(t, "/img/p/1/0/2/102.jpg", products[0].Images[1].RemotePath)

	// Unparseable stock defaults to zero, record is kept.
	assert.Equal(t, "red-mug", products[1].Slug)
	assert.Equal(t, 0, products[1].Stock)

	// NULL stock row means no stock record.
	assert.Equal(t, "green-hat", products[2].Slug)
	assert.Equal(t, 0, products[2].Stock)
	assert.Empty(t, products[2].Images)
}

func TestExtractQueryFailureIsFatal(t *testing.T) {
	reader, mock := newMockReader(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT p\.id_product`).
		WithArgs(1).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := reader.Extract(testCtx(t))
	require.Error(t, err)

	var dberr *DatabaseError
	require.ErrorAs(t, err, &dberr)
	assert.Equal(t, "querying products", dberr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImagePath(t *testing.T) {
	r := NewReader(nil, ReaderConfig{ImageBasePath: "/img/p/"})

	assert.Equal(t, "/img/p/7/7.jpg", r.imagePath(7))
	assert.Equal(t, "/img/p/1/2/3/123.jpg", r.imagePath(123))
}
