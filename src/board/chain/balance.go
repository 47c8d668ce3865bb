package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/shopspring/decimal"
)

var ErrNoBalance = errors.New("no balance for address")

// BalanceOracle reads token balances from a Substrate node.
type BalanceOracle struct {
	api      *gsrpc.SubstrateAPI
	decimals int32
	timeout  time.Duration
}

func NewBalanceOracle(url string, decimals int32) (*BalanceOracle, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &BalanceOracle{api: api, decimals: decimals, timeout: 10 * time.Second}, nil
}

type storageResult struct {
	raw *types.StorageDataRaw
	err error
}

// TokenBalance returns the free balance of address in whole tokens.
func (o *BalanceOracle) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	pub, err := DecodeSS58(address)
	if err != nil {
		return decimal.Zero, err
	}
	key := types.NewStorageKey(AccountKey(pub))

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// gsrpc calls block without a context; the buffered channel lets the
	// call finish in the background after a timeout.
	done := make(chan storageResult, 1)
	go func() {
		var res storageResult
		res.raw, res.err = o.api.RPC.State.GetStorageRawLatest(key)
		done <- res
	}()

	var res storageResult
	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		log.Printf("chain: balance lookup for %s: %v", address, res.err)
		return decimal.Zero, res.err
	}
	if res.raw == nil || len(*res.raw) == 0 {
		return decimal.Zero, ErrNoBalance
	}
	free, err := FreeBalance(*res.raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(free, -o.decimals), nil
}
