package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:ledger_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Transaction{}, &models.TransactionItem{}, &models.LedgerEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestService_RecordEvent(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	lineID := uuid.New()
	input := Entry{
		OrderID:       uuid.New(),
		TransactionID: uuid.New(),
		OrderLineID:   &lineID,
		Type:          enums.LedgerEventPayoutInitiated,
		AmountCents:   18000,
		Reference:     "tr_123",
		Metadata:      map[string]any{"commission_bps": 1000},
	}

	got, err := svc.RecordEvent(context.Background(), conn, input)
	if err != nil {
		t.Fatalf("RecordEvent error: %v", err)
	}
	if got == nil || got.ID == uuid.Nil {
		t.Fatalf("expected persisted event, got %+v", got)
	}
	var meta map[string]any
	if err := json.Unmarshal(got.Metadata, &meta); err != nil || meta["commission_bps"] != float64(1000) {
		t.Fatalf("unexpected metadata %s (%v)", got.Metadata, err)
	}

	dup, err := svc.RecordEvent(context.Background(), conn, input)
	if err != nil {
		t.Fatalf("duplicate RecordEvent error: %v", err)
	}
	if dup != nil {
		t.Fatalf("duplicate reference should be skipped")
	}

	has, err := svc.HasEvent(context.Background(), input.OrderID, enums.LedgerEventPayoutInitiated)
	if err != nil || !has {
		t.Fatalf("expected HasEvent true, got %v %v", has, err)
	}
	has, err = svc.HasEvent(context.Background(), input.OrderID, enums.LedgerEventRefundInitiated)
	if err != nil || has {
		t.Fatalf("expected HasEvent false, got %v %v", has, err)
	}
}

func TestService_RecordEventValidation(t *testing.T) {
	svc, err := NewService(NewRepository(newTestDB(t)))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	base := Entry{
		OrderID:       uuid.New(),
		TransactionID: uuid.New(),
		Type:          enums.LedgerEventRefundInitiated,
		Reference:     "re_1",
	}

	cases := map[string]func(in *Entry){
		"missing order":       func(in *Entry) { in.OrderID = uuid.Nil },
		"missing transaction": func(in *Entry) { in.TransactionID = uuid.Nil },
		"bad type":            func(in *Entry) { in.Type = "bogus" },
		"missing reference":   func(in *Entry) { in.Reference = " " },
	}
	for name, mutate := range cases {
		in := base
		mutate(&in)
		if _, err := svc.RecordEvent(context.Background(), nil, in); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := NewService(nil); err == nil {
		t.Fatal("expected missing repository error")
	}
}

func TestRepository_TransactionLookups(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	lineID := uuid.New()
	txn := &models.Transaction{
		OrderID:          uuid.New(),
		CustomerID:       uuid.New(),
		Reference:        "cs_test_1",
		AuthorizationURL: "https://checkout.stripe.com/pay/cs_test_1",
		AmountCents:      29000,
		Currency:         "usd",
		Status:           enums.TransactionStatusPending,
		Items: []models.TransactionItem{{
			OrderLineID:  lineID,
			SellerID:     uuid.New(),
			AmountCents:  20000,
			PayoutStatus: enums.PayoutStatusPending,
			RefundStatus: enums.RefundStatusNone,
		}},
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	byOrder, err := repo.FindTransactionByOrderID(ctx, txn.OrderID)
	if err != nil {
		t.Fatalf("find by order: %v", err)
	}
	item := byOrder.ItemForLine(lineID)
	if item == nil {
		t.Fatal("expected item for line")
	}

	ref := "re_123"
	if err := repo.UpdateItem(ctx, item.ID, map[string]any{"refund_reference": ref, "refund_status": enums.RefundStatusPending}); err != nil {
		t.Fatalf("update item: %v", err)
	}
	found, err := repo.FindItemByRefundReference(ctx, ref)
	if err != nil {
		t.Fatalf("find by refund reference: %v", err)
	}
	if found.RefundStatus != enums.RefundStatusPending {
		t.Fatalf("unexpected refund status %s", found.RefundStatus)
	}

	if _, err := repo.FindTransactionByReference(ctx, "cs_test_1"); err != nil {
		t.Fatalf("find by reference: %v", err)
	}
}
