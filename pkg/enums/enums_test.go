package enums

import "testing"

func TestParseLineStatus(t *testing.T) {
	got, err := ParseLineStatus("out_for_delivery")
	if err != nil || got != LineStatusOutForDelivery {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseLineStatus("Shipped"); err == nil {
		t.Fatalf("parsing is case sensitive")
	}
}

func TestParseUserRole(t *testing.T) {
	for _, raw := range []string{"buyer", "seller", "admin"} {
		if _, err := ParseUserRole(raw); err != nil {
			t.Fatalf("role %s: %v", raw, err)
		}
	}
	if _, err := ParseUserRole("guest"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestIsValid(t *testing.T) {
	if !EventRefundCompleted.IsValid() || OutboxEventType("bogus").IsValid() {
		t.Fatalf("outbox event validity is wrong")
	}
	if !NotificationTypePayoutSent.IsValid() || NotificationType("").IsValid() {
		t.Fatalf("notification validity is wrong")
	}
	if !LedgerEventRefundInitiated.IsValid() || LedgerEventType("payout_completed").IsValid() {
		t.Fatalf("ledger event validity is wrong")
	}
}
