package correlator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arclight-network/al-withdrawals-api/database/models"
	"github.com/ethereum/go-ethereum/common"
)

// WithdrawalEvent is one ingested L2 to L1 event together with the L2
// transaction it was emitted in.
type WithdrawalEvent struct {
	Event  models.Event
	TxHash string
}

// FinalizationNotice is one notification from the submission side: a
// finalization attempt, or its confirmation once the finalizing
// transaction lands on L1. The withdrawal is identified either by id
// or by the originating event's position.
type FinalizationNotice struct {
	WithdrawalID   string
	EventKey       *models.EventKey
	Sender         string
	FinalizationTx string
}

// Store is the storage surface the correlator drives. All operations
// are idempotent, so a notice replayed after a transient failure is
// safe.
type Store interface {
	CreateEvent(ctx context.Context, event models.Event) error
	RegisterWithdrawal(ctx context.Context, key models.EventKey, txHash string) (string, error)
	RecordFinalizationAttempt(ctx context.Context, withdrawalID string, sender string, key models.EventKey) error
	ConfirmFinalization(ctx context.Context, withdrawalID string, txHash string) error
	WithdrawalByEventKey(ctx context.Context, key models.EventKey) (models.Withdrawal, error)
	WithdrawalByID(ctx context.Context, id string) (models.Withdrawal, error)
	GetLastIndexedBlock(ctx context.Context, chain string) (uint64, error)
	UpdateLastIndexedBlock(ctx context.Context, chain string, blockNumber uint64) error
}

// EventSource streams ingested withdrawal events.
type EventSource interface {
	Events(ctx context.Context) (<-chan WithdrawalEvent, error)
}

// FinalizationSource streams finalization notices.
type FinalizationSource interface {
	Notices(ctx context.Context) (<-chan FinalizationNotice, error)
}

type Correlator struct {
	store         Store
	events        EventSource
	finalizations FinalizationSource
	logger        *slog.Logger

	lastIndexed uint64
}

type CorrelatorOpts struct {
	Store         Store
	Events        EventSource
	Finalizations FinalizationSource
	Logger        *slog.Logger
}

func NewCorrelator(opts CorrelatorOpts) (*Correlator, error) {
	if opts.Store == nil {
		return nil, errors.New("correlator requires a store")
	}
	if opts.Events == nil || opts.Finalizations == nil {
		return nil, errors.New("correlator requires event and finalization sources")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Correlator{
		store:         opts.Store,
		events:        opts.Events,
		finalizations: opts.Finalizations,
		logger:        opts.Logger,
	}, nil
}

// Run consumes both sources until the context is cancelled or either
// consumer fails. The first error wins and stops the other consumer.
func (c *Correlator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)

	go func() {
		errChan <- c.consumeEvents(ctx)
	}()

	go func() {
		errChan <- c.consumeNotices(ctx)
	}()

	// Wait for both consumers to finish
	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	return firstErr
}

func (c *Correlator) consumeEvents(ctx context.Context) error {
	ch, err := c.events.Events(ctx)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}

	lastIndexed, err := c.store.GetLastIndexedBlock(ctx, "l2")
	if err != nil {
		return fmt.Errorf("failed to get last indexed block: %w", err)
	}
	c.lastIndexed = lastIndexed

	c.logger.Info("starting event consumer", "lastIndexedBlock", c.lastIndexed)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("shutting down event consumer")
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := c.handleEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (c *Correlator) consumeNotices(ctx context.Context) error {
	ch, err := c.finalizations.Notices(ctx)
	if err != nil {
		return fmt.Errorf("failed to open finalization stream: %w", err)
	}

	c.logger.Info("starting finalization consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("shutting down finalization consumer")
			return nil
		case notice, ok := <-ch:
			if !ok {
				return nil
			}
			if err := c.handleNotice(ctx, notice); err != nil {
				return err
			}
		}
	}
}

func (c *Correlator) handleEvent(ctx context.Context, event WithdrawalEvent) error {
	// Addresses are stored checksummed; ingestion feeds may carry any
	// hex casing.
	event.Event.ToAddress = common.HexToAddress(event.Event.ToAddress).Hex()
	event.Event.L1TokenAddr = common.HexToAddress(event.Event.L1TokenAddr).Hex()

	if err := c.store.CreateEvent(ctx, event.Event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	withdrawalID, err := c.store.RegisterWithdrawal(ctx, event.Event.Key(), event.TxHash)
	if err != nil {
		return fmt.Errorf("failed to register withdrawal: %w", err)
	}

	c.logger.Info("withdrawal registered",
		"withdrawal_id", withdrawalID,
		"l2_block_number", event.Event.L2BlockNumber,
		"tx_number_in_block", event.Event.TxNumberInBlock)

	if event.Event.L2BlockNumber > c.lastIndexed {
		if err := c.store.UpdateLastIndexedBlock(ctx, "l2", event.Event.L2BlockNumber); err != nil {
			return fmt.Errorf("failed to update last indexed block: %w", err)
		}
		c.lastIndexed = event.Event.L2BlockNumber
	}

	return nil
}

func (c *Correlator) handleNotice(ctx context.Context, notice FinalizationNotice) error {
	withdrawal, err := c.resolveWithdrawal(ctx, notice)
	if err != nil {
		return fmt.Errorf("failed to resolve withdrawal for finalization notice: %w", err)
	}

	withdrawalID := withdrawal.ID.Hex()
	sender := common.HexToAddress(notice.Sender).Hex()

	if err := c.store.RecordFinalizationAttempt(ctx, withdrawalID, sender, withdrawal.Key()); err != nil {
		return fmt.Errorf("failed to record finalization attempt: %w", err)
	}

	if notice.FinalizationTx == "" {
		c.logger.Info("finalization attempt recorded",
			"withdrawal_id", withdrawalID,
			"sender", sender)
		return nil
	}

	if err := c.store.ConfirmFinalization(ctx, withdrawalID, notice.FinalizationTx); err != nil {
		return fmt.Errorf("failed to confirm finalization: %w", err)
	}

	c.logger.Info("finalization confirmed",
		"withdrawal_id", withdrawalID,
		"finalization_tx", notice.FinalizationTx)

	return nil
}

func (c *Correlator) resolveWithdrawal(ctx context.Context, notice FinalizationNotice) (models.Withdrawal, error) {
	if notice.WithdrawalID != "" {
		return c.store.WithdrawalByID(ctx, notice.WithdrawalID)
	}
	if notice.EventKey == nil {
		return models.Withdrawal{}, errors.New("finalization notice carries neither withdrawal id nor event key")
	}
	return c.store.WithdrawalByEventKey(ctx, *notice.EventKey)
}
