package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"usdqs-ledger/internal/domain"
	"usdqs-ledger/internal/repository"
)

// Directory answers whether a username belongs to a registered user.
type Directory interface {
	Exists(ctx context.Context, username string) bool
}

// LedgerService owns every account and its history. Each mutation is applied
// to a copy, persisted as a whole collection, and only then made visible, so a
// rejected or failed call leaves no trace.
type LedgerService interface {
	Load(ctx context.Context) error
	// GetAccount returns a snapshot of the user's account. If the user is
	// registered but has no account yet, an empty one is created and persisted.
	GetAccount(ctx context.Context, username string) (domain.Account, error)
	Buy(ctx context.Context, username string, amount decimal.Decimal) (domain.Transaction, error)
	Sell(ctx context.Context, username string, amount decimal.Decimal) (domain.Transaction, error)
	Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (sent, received domain.Transaction, err error)
}

type LedgerOption func(*ledgerService)

// WithClock overrides the source of transaction timestamps.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *ledgerService) { s.now = now }
}

// WithIDGenerator overrides how transaction ids are minted.
func WithIDGenerator(next func() (string, error)) LedgerOption {
	return func(s *ledgerService) { s.newID = next }
}

type ledgerService struct {
	repo   repository.AccountRepository
	users  Directory
	logger *logrus.Logger
	now    func() time.Time
	newID  func() (string, error)

	// all writers hold mu exclusively: every save rewrites the full collection
	mu    sync.RWMutex
	book  map[string]*domain.Account
	order []string
}

func NewLedgerService(repo repository.AccountRepository, users Directory, logger *logrus.Logger, opts ...LedgerOption) LedgerService {
	if logger == nil {
		logger = logrus.New()
	}
	s := &ledgerService{
		repo:   repo,
		users:  users,
		logger: logger,
		now:    time.Now,
		newID:  newTransactionID,
		book:   make(map[string]*domain.Account),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTransactionID returns a time-ordered UUIDv7, unique even for calls within
// the same clock tick.
func newTransactionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseAmount converts user input into a validated, strictly positive amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// MaxAmount caps a single purchase, sale or transfer.
var MaxAmount = decimal.New(1, 12)

// MaxAmountScale is the finest precision an amount may carry.
const MaxAmountScale = 18

// validateAmount only inspects sign and exponent before comparing, so an
// absurd exponent is rejected without ever expanding the value.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if amount.Exponent() < -MaxAmountScale {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, MaxAmountScale)
	}
	if amount.Exponent() > MaxAmount.Exponent() || amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: exceeds the maximum of %s", ErrInvalidAmount, MaxAmount)
	}
	return nil
}

func (s *ledgerService) Load(ctx context.Context) error {
	accounts, err := s.repo.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	book := make(map[string]*domain.Account, len(accounts))
	order := make([]string, 0, len(accounts))
	for i := range accounts {
		acct := accounts[i]
		if _, dup := book[acct.Username]; dup {
			return fmt.Errorf("%w: duplicate account %q", ErrCorruptLedger, acct.Username)
		}
		if err := acct.Reconcile(); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptLedger, err)
		}
		book[acct.Username] = &acct
		order = append(order, acct.Username)
	}

	s.mu.Lock()
	s.book = book
	s.order = order
	s.mu.Unlock()

	s.logger.Infof("loaded %d accounts", len(accounts))
	return nil
}

func (s *ledgerService) GetAccount(ctx context.Context, username string) (domain.Account, error) {
	s.mu.RLock()
	if acct, ok := s.book[username]; ok {
		snapshot := acct.Clone()
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, created, err := s.accountLocked(ctx, username)
	if err != nil {
		return domain.Account{}, err
	}
	if created {
		if err := s.commitLocked(ctx, acct); err != nil {
			return domain.Account{}, err
		}
		s.logger.WithField("username", username).Info("account opened")
	}
	return acct.Clone(), nil
}

func (s *ledgerService) Buy(ctx context.Context, username string, amount decimal.Decimal) (domain.Transaction, error) {
	log := s.logger.WithFields(logrus.Fields{"op": "buy", "username": username})
	if err := validateAmount(amount); err != nil {
		log.WithError(err).Debug("rejected")
		return domain.Transaction{}, err
	}
	log = log.WithField("amount", amount.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, _, err := s.accountLocked(ctx, username)
	if err != nil {
		log.WithError(err).Debug("rejected")
		return domain.Transaction{}, err
	}

	tx, err := s.newTransaction(domain.TransactionPurchase, amount, domain.SystemCounterparty, username, s.now().UTC())
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := acct.Post(tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("post purchase: %w", err)
	}
	if err := s.commitLocked(ctx, acct); err != nil {
		log.WithError(err).Error("purchase rolled back")
		return domain.Transaction{}, err
	}

	log.WithField("tx_id", tx.ID).Info("purchase applied")
	return tx, nil
}

func (s *ledgerService) Sell(ctx context.Context, username string, amount decimal.Decimal) (domain.Transaction, error) {
	log := s.logger.WithFields(logrus.Fields{"op": "sell", "username": username})
	if err := validateAmount(amount); err != nil {
		log.WithError(err).Debug("rejected")
		return domain.Transaction{}, err
	}
	log = log.WithField("amount", amount.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, _, err := s.accountLocked(ctx, username)
	if err != nil {
		log.WithError(err).Debug("rejected")
		return domain.Transaction{}, err
	}
	if acct.Balance.LessThan(amount) {
		log.WithField("balance", acct.Balance.String()).Debug("rejected: insufficient balance")
		return domain.Transaction{}, ErrInsufficientBalance
	}

	tx, err := s.newTransaction(domain.TransactionSale, amount, username, domain.SystemCounterparty, s.now().UTC())
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := acct.Post(tx); err != nil {
		return domain.Transaction{}, fmt.Errorf("post sale: %w", err)
	}
	if err := s.commitLocked(ctx, acct); err != nil {
		log.WithError(err).Error("sale rolled back")
		return domain.Transaction{}, err
	}

	log.WithField("tx_id", tx.ID).Info("sale applied")
	return tx, nil
}

// Transfer checks, in order: amount, self transfer, sender balance, recipient
// existence. The recipient lookup only happens once the cheaper checks pass.
func (s *ledgerService) Transfer(ctx context.Context, sender, recipient string, amount decimal.Decimal) (domain.Transaction, domain.Transaction, error) {
	log := s.logger.WithFields(logrus.Fields{"op": "transfer", "username": sender, "recipient": recipient})
	if err := validateAmount(amount); err != nil {
		log.WithError(err).Debug("rejected")
		return domain.Transaction{}, domain.Transaction{}, err
	}
	log = log.WithField("amount", amount.String())
	if sender == recipient {
		log.Debug("rejected: self transfer")
		return domain.Transaction{}, domain.Transaction{}, ErrSelfTransfer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, _, err := s.accountLocked(ctx, sender)
	if err != nil {
		log.WithError(err).Debug("rejected")
		return domain.Transaction{}, domain.Transaction{}, err
	}
	if from.Balance.LessThan(amount) {
		log.WithField("balance", from.Balance.String()).Debug("rejected: insufficient balance")
		return domain.Transaction{}, domain.Transaction{}, ErrInsufficientBalance
	}

	to, _, err := s.accountLocked(ctx, recipient)
	if errors.Is(err, ErrUserNotFound) {
		log.Debug("rejected: recipient not found")
		return domain.Transaction{}, domain.Transaction{}, ErrRecipientNotFound
	}
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, err
	}

	now := s.now().UTC()
	sent, err := s.newTransaction(domain.TransactionTransferSent, amount, sender, recipient, now)
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, err
	}
	received, err := s.newTransaction(domain.TransactionTransferReceived, amount, sender, recipient, now)
	if err != nil {
		return domain.Transaction{}, domain.Transaction{}, err
	}

	if err := from.Post(sent); err != nil {
		return domain.Transaction{}, domain.Transaction{}, fmt.Errorf("post transfer debit: %w", err)
	}
	if err := to.Post(received); err != nil {
		return domain.Transaction{}, domain.Transaction{}, fmt.Errorf("post transfer credit: %w", err)
	}
	if err := s.commitLocked(ctx, from, to); err != nil {
		log.WithError(err).Error("transfer rolled back")
		return domain.Transaction{}, domain.Transaction{}, err
	}

	log.WithFields(logrus.Fields{"tx_id": sent.ID, "counter_tx_id": received.ID}).Info("transfer applied")
	return sent, received, nil
}

// accountLocked returns a private working copy of the user's account. created
// reports that the account did not exist yet and the copy is a fresh one.
func (s *ledgerService) accountLocked(ctx context.Context, username string) (domain.Account, bool, error) {
	if acct, ok := s.book[username]; ok {
		return acct.Clone(), false, nil
	}
	if username == "" || username == domain.SystemCounterparty || !s.users.Exists(ctx, username) {
		return domain.Account{}, false, ErrUserNotFound
	}
	return *domain.NewAccount(username, s.now().UTC()), true, nil
}

func (s *ledgerService) newTransaction(typ domain.TransactionType, amount decimal.Decimal, from, to string, at time.Time) (domain.Transaction, error) {
	id, err := s.newID()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("generate transaction id: %w", err)
	}
	return domain.Transaction{
		ID:        id,
		Type:      typ,
		Amount:    amount,
		From:      from,
		To:        to,
		Timestamp: at,
	}, nil
}

// commitLocked persists the collection with changed replacing (or adding to)
// the current accounts, then installs changed in memory. On a save error the
// in-memory book is untouched.
func (s *ledgerService) commitLocked(ctx context.Context, changed ...domain.Account) error {
	pending := make(map[string]domain.Account, len(changed))
	for _, acct := range changed {
		pending[acct.Username] = acct
	}

	next := make([]domain.Account, 0, len(s.order)+len(changed))
	for _, name := range s.order {
		if acct, ok := pending[name]; ok {
			next = append(next, acct)
			delete(pending, name)
			continue
		}
		next = append(next, *s.book[name])
	}

	var added []string
	for _, acct := range changed {
		if _, ok := pending[acct.Username]; ok {
			next = append(next, acct)
			added = append(added, acct.Username)
		}
	}

	if err := s.repo.SaveAccounts(ctx, next); err != nil {
		return fmt.Errorf("%w: save accounts: %w", ErrPersistence, err)
	}

	for i := range changed {
		acct := changed[i]
		s.book[acct.Username] = &acct
	}
	s.order = append(s.order, added...)
	return nil
}
