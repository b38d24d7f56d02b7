package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mjolobid-backend/internal/gateway"
	"mjolobid-backend/internal/market"
	"mjolobid-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Gateways resolves an enabled payment gateway by name. *gateway.Registry implements it.
type Gateways interface {
	Get(name string) (gateway.Gateway, error)
	Names() []string
}

// PaymentService manages wallets, gateway payments, subscriptions and withdrawals
type PaymentService struct {
	payments PaymentStore
	users    UserStore
	gateways Gateways
	notifier Notifier
	rules    market.Rules
	siteURL  string
	now      func() time.Time
}

// NewPaymentService creates a new payment service. siteURL is the public base URL used for
// gateway callbacks.
func NewPaymentService(payments PaymentStore, users UserStore, gateways Gateways, notifier Notifier, rules market.Rules, siteURL string) *PaymentService {
	return &PaymentService{
		payments: payments,
		users:    users,
		gateways: gateways,
		notifier: notifier,
		rules:    rules,
		siteURL:  strings.TrimRight(siteURL, "/"),
		now:      time.Now,
	}
}

// CheckoutResult tells the client how to finish a gateway payment
type CheckoutResult struct {
	Reference    string               `json:"reference"`
	Gateway      string               `json:"gateway"`
	Amount       decimal.Decimal      `json:"amount"`
	Status       string               `json:"status"`
	RedirectURL  string               `json:"redirect_url,omitempty"`
	Instructions string               `json:"instructions,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Wallet returns the user's balances
func (s *PaymentService) Wallet(ctx context.Context, userID string) (*models.Wallet, error) {
	return s.payments.GetWallet(ctx, userID)
}

// History returns the user's ledger, newest first
func (s *PaymentService) History(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	limit, offset = page(limit, offset, 20, 100)
	list, err := s.payments.ListTransactions(ctx, userID, strings.ToUpper(txType), limit, offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Transaction{}
	}
	return list, nil
}

// AddPaymentMethod stores a payout or funding account
func (s *PaymentService) AddPaymentMethod(ctx context.Context, userID, paymentType, accountNumber, accountName string) (*models.PaymentMethod, error) {
	paymentType = strings.ToUpper(strings.TrimSpace(paymentType))
	if !models.PaymentTypes[paymentType] {
		return nil, validationError("unsupported payment type %q", paymentType)
	}
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, validationError("account number is required")
	}
	if paymentType == "ECOCASH" || paymentType == "ONEMONEY" {
		accountNumber = gateway.FormatPhone(accountNumber)
	}
	pm := &models.PaymentMethod{
		ID:            uuid.New().String(),
		UserID:        userID,
		PaymentType:   paymentType,
		AccountNumber: accountNumber,
		AccountName:   strings.TrimSpace(accountName),
		CreatedAt:     s.now(),
	}
	if err := s.payments.AddPaymentMethod(ctx, pm); err != nil {
		return nil, err
	}
	return pm, nil
}

func (s *PaymentService) PaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	list, err := s.payments.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.PaymentMethod{}
	}
	return list, nil
}

func (s *PaymentService) SetPrimaryPaymentMethod(ctx context.Context, userID, id string) error {
	return s.payments.SetPrimaryPaymentMethod(ctx, userID, id)
}

func (s *PaymentService) DeletePaymentMethod(ctx context.Context, userID, id string) error {
	return s.payments.DeletePaymentMethod(ctx, userID, id)
}

// Deposit starts a wallet top-up through a gateway
func (s *PaymentService) Deposit(ctx context.Context, userID, gatewayName string, amount decimal.Decimal, phone string) (*CheckoutResult, error) {
	if !amount.IsPositive() {
		return nil, validationError("amount must be positive")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := s.pendingEntry(userID, models.TxDeposit, amount, gatewayName, "Wallet deposit")
	return s.checkout(ctx, user, gatewayName, phone, t, nil)
}

// Subscribe buys a subscription or premium upgrade. An empty gatewayName pays from the wallet.
func (s *PaymentService) Subscribe(ctx context.Context, userID, subType, gatewayName, phone string) (*CheckoutResult, error) {
	subType = strings.ToUpper(subType)
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkSubscriptionType(user, subType); err != nil {
		return nil, err
	}
	fee, err := s.rules.FeeFor(subType)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if gatewayName == "" || strings.EqualFold(gatewayName, "wallet") {
		sub, t, err := s.payments.PurchaseWithWallet(ctx, userID, subType, s.rules, now)
		if err != nil {
			return nil, err
		}
		log.Info().Str("user_id", userID).Str("subscription_type", subType).Msg("Subscription paid from wallet")
		return &CheckoutResult{
			Reference:    t.Reference,
			Gateway:      "wallet",
			Amount:       fee,
			Status:       t.Status,
			Subscription: sub,
		}, nil
	}

	txType := models.TxSubscription
	desc := "Women access subscription"
	if subType != models.SubWomenAccess {
		txType = models.TxPremiumUpgrade
		desc = "Premium upgrade"
	}
	t := s.pendingEntry(userID, txType, fee.Neg(), gatewayName, desc)
	sub := &models.Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      subType,
		Amount:    fee,
		StartDate: now,
		EndDate:   now.Add(s.rules.SubscriptionPeriod),
		CreatedAt: now,
	}
	return s.checkout(ctx, user, gatewayName, phone, t, sub)
}

func checkSubscriptionType(user *models.User, subType string) error {
	switch subType {
	case models.SubWomenAccess, models.SubPremiumWomen:
		if !user.IsFemale() {
			return fmt.Errorf("%w: %s is for female users", models.ErrForbidden, subType)
		}
	case models.SubPremiumMen:
		if !user.IsMale() {
			return fmt.Errorf("%w: %s is for male users", models.ErrForbidden, subType)
		}
	default:
		return validationError("unknown subscription type %q", subType)
	}
	return nil
}

func (s *PaymentService) pendingEntry(userID, txType string, amount decimal.Decimal, gatewayName, desc string) *models.Transaction {
	now := s.now()
	return &models.Transaction{
		ID:          uuid.New().String(),
		Reference:   market.NewReference(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Currency:    s.rules.Currency,
		Status:      models.TxPending,
		Gateway:     strings.ToLower(gatewayName),
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// checkout stores the pending row and asks the gateway to collect the money
func (s *PaymentService) checkout(ctx context.Context, user *models.User, gatewayName, phone string, t *models.Transaction, sub *models.Subscription) (*CheckoutResult, error) {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	if phone == "" {
		phone = user.PhoneNumber
	}
	if err := s.payments.CreatePendingPayment(ctx, t, sub); err != nil {
		return nil, err
	}

	res, err := gw.Initiate(ctx, gateway.PaymentRequest{
		Amount:      t.Amount.Abs(),
		Currency:    t.Currency,
		Reference:   t.Reference,
		Phone:       phone,
		Email:       user.Email,
		Description: t.Description,
		CallbackURL: s.siteURL + "/api/v1/payments/webhooks/" + gw.Name(),
		ReturnURL:   s.siteURL + "/payments/return?reference=" + t.Reference,
	})
	if err != nil {
		if _, cerr := s.payments.ConfirmPayment(ctx, t.Reference, false, nil, s.rules, s.now()); cerr != nil {
			log.Error().Err(cerr).Str("reference", t.Reference).Msg("Failed to mark payment failed")
		}
		return nil, fmt.Errorf("failed to initiate %s payment: %w", gw.Name(), err)
	}
	if err := s.payments.SetGatewayReference(ctx, t.Reference, res.GatewayReference, res.Raw); err != nil {
		return nil, err
	}

	log.Info().
		Str("reference", t.Reference).
		Str("gateway", gw.Name()).
		Str("type", t.Type).
		Str("amount", t.Amount.StringFixed(2)).
		Msg("Payment initiated")

	return &CheckoutResult{
		Reference:    t.Reference,
		Gateway:      gw.Name(),
		Amount:       t.Amount.Abs(),
		Status:       t.Status,
		RedirectURL:  res.RedirectURL,
		Instructions: res.Instructions,
		Subscription: sub,
	}, nil
}

// HandleWebhook applies a gateway callback. Unsigned callbacks are re-checked with the gateway
// before the ledger is touched.
func (s *PaymentService) HandleWebhook(ctx context.Context, gatewayName string, body []byte) (*models.PaymentConfirmation, error) {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}
	status, err := gw.ParseWebhook(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}
	t, err := s.payments.GetTransactionByReference(ctx, status.Reference)
	if err != nil {
		return nil, err
	}
	if t.Gateway != gw.Name() {
		return nil, fmt.Errorf("%w: payment %s was not made through %s", models.ErrValidation, t.Reference, gw.Name())
	}
	if !status.Verified {
		if status, err = gw.Verify(ctx, gatewayRef(t)); err != nil {
			return nil, err
		}
	}
	return s.settle(ctx, t, status)
}

// VerifyPayment polls the gateway for the caller's pending payment
func (s *PaymentService) VerifyPayment(ctx context.Context, userID, reference string) (*models.PaymentConfirmation, error) {
	t, err := s.payments.GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, fmt.Errorf("transaction: %w", models.ErrNotFound)
	}
	if t.Status != models.TxPending && t.Status != models.TxProcessing {
		return &models.PaymentConfirmation{Transaction: t}, nil
	}
	gw, err := s.gateways.Get(t.Gateway)
	if err != nil {
		return nil, err
	}
	status, err := gw.Verify(ctx, gatewayRef(t))
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, t, status)
}

func gatewayRef(t *models.Transaction) string {
	if t.GatewayReference != "" {
		return t.GatewayReference
	}
	return t.Reference
}

// settle confirms the ledger row once the gateway reports a final status
func (s *PaymentService) settle(ctx context.Context, t *models.Transaction, status *gateway.PaymentStatus) (*models.PaymentConfirmation, error) {
	if status.Status == models.TxPending {
		return &models.PaymentConfirmation{Transaction: t}, nil
	}
	completed := status.Status == models.TxCompleted
	if completed && !status.Amount.IsZero() && !status.Amount.Equal(t.Amount.Abs()) {
		log.Warn().
			Str("reference", t.Reference).
			Str("expected", t.Amount.Abs().StringFixed(2)).
			Str("paid", status.Amount.StringFixed(2)).
			Msg("Gateway reported a different amount")
		completed = false
	}

	conf, err := s.payments.ConfirmPayment(ctx, t.Reference, completed, status.Raw, s.rules, s.now())
	if err != nil {
		return nil, err
	}
	if !conf.Applied {
		return conf, nil
	}
	log.Info().Str("reference", t.Reference).Str("status", conf.Transaction.Status).Msg("Payment confirmed")

	if conf.Transaction.Status == models.TxCompleted {
		notify(ctx, s.notifier, NotificationInput{
			UserID:            t.UserID,
			Type:              models.NotifPaymentReceived,
			Title:             "Payment Update",
			Message:           fmt.Sprintf("%s: $%s", t.Description, t.Amount.Abs().StringFixed(2)),
			RelatedObjectType: "transaction",
			RelatedObjectID:   t.ID,
		})
	}
	return conf, nil
}

// Withdraw requests a payout of wallet funds to one of the user's payment methods
func (s *PaymentService) Withdraw(ctx context.Context, userID, paymentMethodID string, amount decimal.Decimal, notes string) (*models.WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, validationError("amount must be positive")
	}
	req := &models.WithdrawalRequest{
		ID:              uuid.New().String(),
		UserID:          userID,
		Amount:          amount,
		PaymentMethodID: paymentMethodID,
		Notes:           strings.TrimSpace(notes),
	}
	if _, err := s.payments.CreateWithdrawal(ctx, req, s.rules, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, validationError("unknown payment method")
		}
		return nil, err
	}
	log.Info().Str("withdrawal_id", req.ID).Str("user_id", userID).Str("amount", amount.StringFixed(2)).Msg("Withdrawal requested")
	return req, nil
}

// Withdrawals lists the user's payout requests
func (s *PaymentService) Withdrawals(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	list, err := s.payments.ListWithdrawalsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.WithdrawalRequest{}
	}
	return list, nil
}

// ProcessWithdrawal completes or fails a pending payout on behalf of an admin
func (s *PaymentService) ProcessWithdrawal(ctx context.Context, adminID, id string, complete bool, notes string) (*models.WithdrawalRequest, error) {
	req, err := s.payments.ProcessWithdrawal(ctx, id, adminID, complete, notes, s.rules.Currency, s.now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("withdrawal_id", id).Str("status", req.Status).Str("admin_id", adminID).Msg("Withdrawal processed")

	msg := fmt.Sprintf("Your withdrawal of $%s has been paid out", req.Amount.StringFixed(2))
	if !complete {
		msg = fmt.Sprintf("Your withdrawal of $%s failed and was returned to your wallet", req.Amount.StringFixed(2))
	}
	notify(ctx, s.notifier, NotificationInput{
		UserID:            req.UserID,
		Type:              models.NotifWithdrawalProcessed,
		Title:             "Withdrawal Update",
		Message:           msg,
		RelatedObjectType: "withdrawal",
		RelatedObjectID:   req.ID,
	})
	return req, nil
}

// PendingWithdrawals lists requests waiting for an admin
func (s *PaymentService) PendingWithdrawals(ctx context.Context) ([]models.WithdrawalRequest, error) {
	list, err := s.payments.ListWithdrawals(ctx, models.WithdrawalPending)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.WithdrawalRequest{}
	}
	return list, nil
}

// Escrow returns the escrow of a bid or offer to one of its two parties
func (s *PaymentService) Escrow(ctx context.Context, userID, subjectType, subjectID string) (*models.Escrow, error) {
	if subjectType != models.SubjectBid && subjectType != models.SubjectOffer {
		return nil, validationError("subject must be bid or offer")
	}
	e, err := s.payments.GetEscrow(ctx, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	if e.PayerID != userID && e.PayeeID != userID {
		return nil, fmt.Errorf("%w: only the parties can see this escrow", models.ErrForbidden)
	}
	return e, nil
}

// Subscriptions lists the user's subscriptions
func (s *PaymentService) Subscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	list, err := s.payments.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Subscription{}
	}
	return list, nil
}

// Gateways lists the enabled gateway names
func (s *PaymentService) Gateways() []string {
	return s.gateways.Names()
}
