package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const TestPassword = "password123"

func hashPassword(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

// SeedMerchant inserts an active merchant, its zeroed balance row and an
// owner user.
func SeedMerchant(t *testing.T, db *sql.DB, name string, currency domain.Currency) (*domain.Merchant, *domain.User) {
	t.Helper()

	m := &domain.Merchant{
		ID:        uuid.New(),
		Name:      name,
		Currency:  currency,
		Status:    domain.MerchantStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO merchants (id, name, currency, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.Currency, m.Status, m.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed merchant %s: %v", name, err)
	}

	_, err = db.Exec(
		`INSERT INTO merchant_balances (merchant_id, currency) VALUES ($1, $2)`,
		m.ID, m.Currency,
	)
	if err != nil {
		t.Fatalf("seed balance for %s: %v", name, err)
	}

	owner := seedUser(t, db, uuid.NewString()+"@merchant.test", name+" Owner", domain.RoleMerchantOwner, &m.ID)
	return m, owner
}

func SeedAdmin(t *testing.T, db *sql.DB, email string) *domain.User {
	t.Helper()
	return seedUser(t, db, email, "Admin", domain.RoleAdmin, nil)
}

func seedUser(t *testing.T, db *sql.DB, email, name string, role domain.Role, merchantID *uuid.UUID) *domain.User {
	t.Helper()

	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hashPassword(t),
		Role:         role,
		MerchantID:   merchantID,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, merchant_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.MerchantID, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func SeedPaymentMethod(t *testing.T, db *sql.DB, merchantID uuid.UUID, isDefault, verified bool) *domain.PaymentMethod {
	t.Helper()

	provider := "MTN"
	pm := &domain.PaymentMethod{
		ID:            uuid.New(),
		MerchantID:    merchantID,
		Type:          domain.PaymentMethodMobileMoney,
		AccountName:   "Test Account",
		AccountNumber: "0240000000",
		Provider:      &provider,
		IsDefault:     isDefault,
		IsVerified:    verified,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO payment_methods (id, merchant_id, type, account_name, account_number, provider, is_default, is_verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pm.ID, pm.MerchantID, pm.Type, pm.AccountName, pm.AccountNumber, pm.Provider, pm.IsDefault, pm.IsVerified, pm.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment method for %s: %v", merchantID, err)
	}
	return pm
}

// CreditBalance puts collected funds on a merchant balance directly, along
// with the matching credit record.
func CreditBalance(t *testing.T, db *sql.DB, merchantID uuid.UUID, amount int64) {
	t.Helper()

	_, err := db.Exec(
		`UPDATE merchant_balances
		 SET available_balance = available_balance + $2, total_collected = total_collected + $2, version = version + 1
		 WHERE merchant_id = $1`,
		merchantID, amount,
	)
	if err != nil {
		t.Fatalf("credit balance %s: %v", merchantID, err)
	}
	_, err = db.Exec(
		`INSERT INTO balance_credits (merchant_id, source_transaction_id, amount, collected_at) VALUES ($1, $2, $3, now())`,
		merchantID, "seed-"+uuid.NewString(), amount,
	)
	if err != nil {
		t.Fatalf("record seed credit %s: %v", merchantID, err)
	}
}

// SetFeePercentage appends a fee policy version.
func SetFeePercentage(t *testing.T, db *sql.DB, pct string) int64 {
	t.Helper()

	var version int64
	err := db.QueryRow(
		`INSERT INTO fee_policies (version, percentage, updated_by)
		 SELECT MAX(version) + 1, $1, 'test' FROM fee_policies
		 RETURNING version`,
		decimal.RequireFromString(pct),
	).Scan(&version)
	if err != nil {
		t.Fatalf("set fee percentage %s: %v", pct, err)
	}
	return version
}

func GetBalance(t *testing.T, db *sql.DB, merchantID uuid.UUID) domain.Balance {
	t.Helper()

	var b domain.Balance
	err := db.QueryRow(
		`SELECT merchant_id, currency, available_balance, total_collected, total_withdrawn, pending_withdrawals_total, version, updated_at
		 FROM merchant_balances WHERE merchant_id = $1`, merchantID,
	).Scan(&b.MerchantID, &b.Currency, &b.AvailableBalance, &b.TotalCollected, &b.TotalWithdrawn, &b.PendingWithdrawalsTotal, &b.Version, &b.UpdatedAt)
	if err != nil {
		t.Fatalf("get balance %s: %v", merchantID, err)
	}
	return b
}

func CountLedgerEntries(t *testing.T, db *sql.DB, withdrawalID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE withdrawal_id = $1`, withdrawalID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for withdrawal %s: %v", withdrawalID, err)
	}
	return count
}

func CountOutbox(t *testing.T, db *sql.DB, eventType string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM outbox_events WHERE event_type = $1`, eventType).Scan(&count)
	if err != nil {
		t.Fatalf("count outbox %s: %v", eventType, err)
	}
	return count
}
