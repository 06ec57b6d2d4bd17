package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned by Wait for a mined transaction whose execution failed.
var ErrReverted = errors.New("transaction reverted")

// transaction polls for the receipt of a submitted transaction.
type transaction struct {
	hash         common.Hash
	backend      Backend
	clock        clock.Clock
	pollInterval time.Duration
}

func (t *transaction) Hash() string {
	return t.hash.Hex()
}

// Wait polls TransactionReceipt until the transaction is mined or ctx is done.
func (t *transaction) Wait(ctx context.Context) error {
	ticker := t.clock.Ticker(t.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(ctx, t.hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("%w: %s in block %s", ErrReverted, t.hash.Hex(), receipt.BlockNumber)
			}
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("failed to fetch receipt of %s: %w", t.hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
