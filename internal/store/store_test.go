package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/seamark/payrecon/internal/domain"
	"github.com/seamark/payrecon/internal/order"
)

func testOrder() *order.Order {
	return &order.Order{
		ID:       "ord_1",
		TenantID: "acme",
		Number:   "SM-1001",
		Status:   order.StatusPending,
		Items: []order.Item{
			{ProductID: "prod_1", Name: "Widget", Quantity: 2, UnitPriceCents: 1999, LineTotalCents: 3998},
			{ProductID: "prod_2", Name: "Gadget", Quantity: 1, UnitPriceCents: 999, LineTotalCents: 999},
		},
		SubtotalCents: 4997,
		ShippingCents: 599,
		TotalCents:    5596,
		Currency:      "USD",
		CustomerEmail: "jo@example.com",
		CustomerName:  "Jo Doe",
		ShippingAddress: order.Address{
			Line1: "1 Main St", City: "Springfield", Region: "OR", PostalCode: "97477", Country: "US",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestInsertOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	s := New(db)
	assert.NoError(t, s.InsertOrder(context.Background(), testOrder()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOrder_ItemFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s := New(db)
	err = s.InsertOrder(context.Background(), testOrder())
	assert.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusIf(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("ord_1", order.StatusPaid, order.StatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(db)
	applied, err := s.UpdateStatusIf(context.Background(), "ord_1", order.StatusPaid, order.StatusPending)
	assert.NoError(t, err)
	assert.True(t, applied)
}

func TestUpdateStatusIf_LostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// Another delivery already moved the row; the guard matches zero rows.
	mock.ExpectExec("UPDATE orders SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := New(db)
	applied, err := s.UpdateStatusIf(context.Background(), "ord_1", order.StatusPaid, order.StatusPending)
	assert.NoError(t, err)
	assert.False(t, applied)
}

func TestClaimStockDecrement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE orders SET stock_decremented").
		WithArgs("ord_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE orders SET stock_decremented").
		WithArgs("ord_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := New(db)
	won, err := s.ClaimStockDecrement(context.Background(), "ord_1")
	assert.NoError(t, err)
	assert.True(t, won)

	won, err = s.ClaimStockDecrement(context.Background(), "ord_1")
	assert.NoError(t, err)
	assert.False(t, won)
}

func TestDecrementStock_Insufficient(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET stock_quantity").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products SET stock_quantity").
		WillReturnResult(sqlmock.NewResult(0, 0)) // second line under-stocked
	mock.ExpectRollback()

	s := New(db)
	err = s.DecrementStock(context.Background(), testOrder().Items)
	assert.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAuthorizationRef_SetAtMostOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE orders SET authorization_ref").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := New(db)
	err = s.SetAuthorizationRef(context.Background(), "ord_1", "auth_2")
	assert.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestGetOrder_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("ord_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s := New(db)
	_, err = s.GetOrder(context.Background(), "ord_missing")
	assert.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
