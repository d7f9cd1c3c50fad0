package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(&models.Listing{}); err != nil {
		t.Fatalf("migrate listings: %v", err)
	}
	return conn
}

func seedListing(t *testing.T, conn *gorm.DB, status enums.VerificationStatus, inventory int) models.Listing {
	t.Helper()
	listing := models.Listing{
		SellerID:           uuid.New(),
		Title:              "Denim jacket",
		PriceCents:         10000,
		VerificationStatus: status,
		Inventory:          inventory,
	}
	if err := conn.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func loadListing(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Listing {
	t.Helper()
	var listing models.Listing
	if err := conn.First(&listing, "id = ?", id).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	return listing
}

func TestReserveDecrementsAndFlagsSold(t *testing.T) {
	conn := newTestDB(t)
	coord := NewCoordinator(NewRepository(conn))
	a := seedListing(t, conn, enums.VerificationStatusVerified, 5)
	b := seedListing(t, conn, enums.VerificationStatusVerified, 1)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return coord.Reserve(context.Background(), tx, []Reservation{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 1},
		})
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	gotA := loadListing(t, conn, a.ID)
	if gotA.Inventory != 3 || gotA.IsSold || gotA.OrderCount != 1 {
		t.Fatalf("unexpected listing a state: %+v", gotA)
	}
	gotB := loadListing(t, conn, b.ID)
	if gotB.Inventory != 0 || !gotB.IsSold || gotB.OrderCount != 1 {
		t.Fatalf("unexpected listing b state: %+v", gotB)
	}
}

func TestReserveRejectsUnavailableListings(t *testing.T) {
	conn := newTestDB(t)
	coord := NewCoordinator(NewRepository(conn))

	short := seedListing(t, conn, enums.VerificationStatusVerified, 1)
	unverified := seedListing(t, conn, enums.VerificationStatusPending, 10)
	sold := seedListing(t, conn, enums.VerificationStatusVerified, 3)
	if err := conn.Model(&models.Listing{}).Where("id = ?", sold.ID).Update("is_sold", true).Error; err != nil {
		t.Fatalf("flag sold: %v", err)
	}

	for name, productID := range map[string]uuid.UUID{
		"insufficient": short.ID,
		"unverified":   unverified.ID,
		"sold":         sold.ID,
		"missing":      uuid.New(),
	} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return coord.Reserve(context.Background(), tx, []Reservation{{ProductID: productID, Quantity: 2}})
		})
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeConflict {
			t.Fatalf("%s: expected conflict, got %v", name, err)
		}
		details, ok := typed.Details().(map[string]any)
		if !ok || details["productId"] != productID.String() {
			t.Fatalf("%s: conflict must name the product, got %+v", name, typed.Details())
		}
	}
}

func TestReserveIsAllOrNothing(t *testing.T) {
	conn := newTestDB(t)
	client := db.NewFromConn(conn, time.Second)
	coord := NewCoordinator(NewRepository(conn))

	s1 := seedListing(t, conn, enums.VerificationStatusVerified, 1)
	s2 := seedListing(t, conn, enums.VerificationStatusVerified, 4)

	err := client.WithTx(context.Background(), func(_ context.Context, tx *gorm.DB) error {
		return coord.Reserve(context.Background(), tx, []Reservation{
			{ProductID: s2.ID, Quantity: 1},
			{ProductID: s1.ID, Quantity: 2},
		})
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := loadListing(t, conn, s2.ID); got.Inventory != 4 || got.OrderCount != 0 {
		t.Fatalf("sibling reservation must roll back, got %+v", got)
	}
	if got := loadListing(t, conn, s1.ID); got.Inventory != 1 {
		t.Fatalf("failing listing must be untouched, got %+v", got)
	}
}

func TestConcurrentReservationsOnLastUnit(t *testing.T) {
	conn := newTestDB(t)
	client := db.NewFromConn(conn, 5*time.Second)
	coord := NewCoordinator(NewRepository(conn))
	listing := seedListing(t, conn, enums.VerificationStatusVerified, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.WithTx(context.Background(), func(_ context.Context, tx *gorm.DB) error {
				return coord.Reserve(context.Background(), tx, []Reservation{{ProductID: listing.ID, Quantity: 1}})
			})
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected one success and one conflict, got %d/%d", successes, conflicts)
	}
	if got := loadListing(t, conn, listing.ID); got.Inventory != 0 || !got.IsSold {
		t.Fatalf("unexpected final listing state: %+v", got)
	}
}

func TestRestoreReturnsStock(t *testing.T) {
	conn := newTestDB(t)
	coord := NewCoordinator(NewRepository(conn))
	listing := seedListing(t, conn, enums.VerificationStatusVerified, 1)

	if err := conn.Transaction(func(tx *gorm.DB) error {
		return coord.Reserve(context.Background(), tx, []Reservation{{ProductID: listing.ID, Quantity: 1}})
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := conn.Transaction(func(tx *gorm.DB) error {
		return coord.Restore(context.Background(), tx, listing.ID, 1)
	}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := loadListing(t, conn, listing.ID); got.Inventory != 1 || got.IsSold {
		t.Fatalf("unexpected restored listing: %+v", got)
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return coord.Restore(context.Background(), tx, uuid.New(), 1)
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConsistency) {
		t.Fatalf("expected consistency error for missing listing, got %v", err)
	}
}

func TestMarkSoldIfExhausted(t *testing.T) {
	conn := newTestDB(t)
	coord := NewCoordinator(NewRepository(conn))
	empty := seedListing(t, conn, enums.VerificationStatusVerified, 0)
	stocked := seedListing(t, conn, enums.VerificationStatusVerified, 2)

	for _, id := range []uuid.UUID{empty.ID, stocked.ID} {
		if err := coord.MarkSoldIfExhausted(context.Background(), conn, id); err != nil {
			t.Fatalf("mark sold: %v", err)
		}
	}
	if !loadListing(t, conn, empty.ID).IsSold {
		t.Fatal("exhausted listing should be sold")
	}
	if loadListing(t, conn, stocked.ID).IsSold {
		t.Fatal("stocked listing should stay available")
	}
}
