package market

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"mjolobid-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Commission returns amount x rate rounded half-to-even to cents
func Commission(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).RoundBank(2)
}

// Settle splits a held amount into the payee's payout and the platform's commission
func Settle(amount, rate decimal.Decimal) (payout, commission decimal.Decimal) {
	commission = Commission(amount, rate)
	return amount.Sub(commission), commission
}

// Hold freezes amount on the payer's wallet
func Hold(payer *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: escrow amount must be positive", models.ErrValidation)
	}
	if payer.Available().LessThan(amount) {
		return fmt.Errorf("%w: available %s, need %s", models.ErrInsufficientFunds, payer.Available().StringFixed(2), amount.StringFixed(2))
	}
	payer.FrozenBalance = payer.FrozenBalance.Add(amount)
	return nil
}

// Release moves a held amount from payer to payee, keeping the commission
func Release(payer, payee *models.Wallet, amount, commission decimal.Decimal) error {
	if !amount.IsPositive() || commission.IsNegative() || commission.GreaterThan(amount) {
		return fmt.Errorf("%w: bad settlement %s/%s", models.ErrValidation, amount, commission)
	}
	if payer.FrozenBalance.LessThan(amount) || payer.Balance.LessThan(amount) {
		return fmt.Errorf("%w: held funds missing on payer wallet", models.ErrInsufficientFunds)
	}
	payer.FrozenBalance = payer.FrozenBalance.Sub(amount)
	payer.Balance = payer.Balance.Sub(amount)
	payee.Balance = payee.Balance.Add(amount.Sub(commission))
	return nil
}

// Refund unfreezes a held amount
func Refund(payer *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: refund amount must be positive", models.ErrValidation)
	}
	if payer.FrozenBalance.LessThan(amount) {
		return fmt.Errorf("%w: held funds missing on payer wallet", models.ErrInsufficientFunds)
	}
	payer.FrozenBalance = payer.FrozenBalance.Sub(amount)
	return nil
}

// Debit takes amount from the available balance
func Debit(w *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if w.Available().LessThan(amount) {
		return fmt.Errorf("%w: available %s, need %s", models.ErrInsufficientFunds, w.Available().StringFixed(2), amount.StringFixed(2))
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Credit adds amount to the balance
func Credit(w *models.Wallet, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

// NewReference returns a ledger reference like TXN_3F9A0C11B2D4
func NewReference() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return "TXN_" + strings.ToUpper(hex.EncodeToString(b))
}
