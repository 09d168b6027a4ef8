package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorhill/cronexpr"

	"github.com/moltlabs/molt-indexer/config"
	"github.com/moltlabs/molt-indexer/internal/chain"
	"github.com/moltlabs/molt-indexer/internal/store"
)

// Indexer polls contract logs on every enabled chain and folds them into
// the Postgres projections. One goroutine per (chain, contract) pair; each
// pair owns a durable cursor, so restarts resume where they left off.
type Indexer struct {
	cfg      config.IndexerConfig
	store    *store.Store
	enricher *MetadataEnricher
	log      *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.IndexerConfig, st *store.Store, enricher *MetadataEnricher) *Indexer {
	return &Indexer{
		cfg:      cfg,
		store:    st,
		enricher: enricher,
		log:      log.New(log.Writer(), "[INDEXER] ", log.LstdFlags),
	}
}

type contractTarget struct {
	kind       ContractKind
	address    common.Address
	startBlock int64
}

// Start dials every enabled chain and launches its poll loops. Chains that
// fail to dial are skipped with a warning so one bad RPC does not take the
// whole process down.
func (ix *Indexer) Start(ctx context.Context, chains []config.ChainConfig) error {
	ctx, ix.cancel = context.WithCancel(ctx)

	started := 0
	for _, cc := range chains {
		if !cc.Enabled {
			continue
		}
		cl, err := chain.Dial(cc.RPCURL, cc.ChainID, ix.cfg.RPCTimeout)
		if err != nil {
			ix.log.Printf("WARN: chain %s: dial %s: %v", cc.Name, cc.RPCURL, err)
			continue
		}

		applier := NewApplier(ix.store, cc.ChainID, cc.Name, cc.IdentityAddress, ix.enricher, ix.log)
		targets := []contractTarget{
			{kind: ContractIdentity, address: common.HexToAddress(cc.IdentityAddress), startBlock: int64(cc.StartBlock)},
			{kind: ContractReputation, address: common.HexToAddress(cc.ReputationAddress), startBlock: int64(cc.StartBlock)},
		}
		if cc.MarketplaceAddress != "" {
			targets = append(targets, contractTarget{
				kind:       ContractMarketplace,
				address:    common.HexToAddress(cc.MarketplaceAddress),
				startBlock: cc.MarketplaceStart(),
			})
		}

		for _, t := range targets {
			ix.wg.Add(1)
			go func(cc config.ChainConfig, t contractTarget) {
				defer ix.wg.Done()
				ix.runContract(ctx, cl, cc, t, applier)
			}(cc, t)
		}
		if cc.MarketplaceAddress != "" && ix.cfg.ConfigSyncCron != "" {
			ix.wg.Add(1)
			go func(cc config.ChainConfig) {
				defer ix.wg.Done()
				ix.runConfigSync(ctx, cl, cc)
			}(cc)
		}
		started++
	}
	if started == 0 {
		return errors.New("no chains started")
	}
	return nil
}

// Stop cancels the poll loops and waits for in-flight batches.
func (ix *Indexer) Stop() {
	if ix.cancel != nil {
		ix.cancel()
	}
	ix.wg.Wait()
}

func (ix *Indexer) runContract(ctx context.Context, cl *chain.Client, cc config.ChainConfig, t contractTarget, applier *Applier) {
	contractAddr := addrHex(t.address)
	cursor, found, err := ix.store.LastBlock(ctx, cc.ChainID, contractAddr)
	for err != nil {
		ix.log.Printf("WARN: chain %s %s: load cursor: %v", cc.Name, t.kind, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(ix.cfg.PollInterval):
		}
		cursor, found, err = ix.store.LastBlock(ctx, cc.ChainID, contractAddr)
	}
	if !found {
		cursor = t.startBlock - 1
	}
	ix.log.Printf("chain %s %s: starting from block %d", cc.Name, t.kind, cursor+1)

	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		advanced, err := ix.pollOnce(ctx, cl, cc, t, applier, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			batchErrors.WithLabelValues(cc.Name, string(t.kind)).Inc()
			ix.log.Printf("WARN: chain %s %s: %v", cc.Name, t.kind, err)
			continue
		}
		cursor = advanced
	}
}

// pollOnce processes at most one batch of confirmed blocks and returns the
// new cursor. Any error leaves the cursor untouched so the batch is retried.
func (ix *Indexer) pollOnce(ctx context.Context, cl *chain.Client, cc config.ChainConfig, t contractTarget, applier *Applier, cursor int64) (int64, error) {
	head, err := cl.HeadBlock(ctx)
	if err != nil {
		return cursor, fmt.Errorf("head block: %w", err)
	}
	headBlock.WithLabelValues(cc.Name).Set(float64(head))

	safe := int64(head) - int64(ix.cfg.Confirmations)
	if safe <= cursor {
		return cursor, nil
	}
	from := cursor + 1
	to := safe
	if to-from+1 > int64(ix.cfg.MaxBatchBlocks) {
		to = from + int64(ix.cfg.MaxBatchBlocks) - 1
	}

	logs, err := cl.FilterLogs(ctx, t.address, uint64(from), uint64(to))
	if err != nil {
		return cursor, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		blockTime, err := cl.BlockTime(ctx, lg.BlockNumber)
		if err != nil {
			ix.log.Printf("WARN: chain %s: block %d timestamp: %v", cc.Name, lg.BlockNumber, err)
			blockTime = time.Time{}
		}

		ev, err := Decode(t.kind, lg, blockTime)
		if errors.Is(err, ErrUnknownTopic) {
			continue
		}
		if err != nil {
			// A log that cannot be decoded today will not decode on retry
			// either. Skip it permanently and keep the batch moving.
			decodeFailures.WithLabelValues(cc.Name, string(t.kind)).Inc()
			ix.log.Printf("WARN: chain %s %s: skipping log tx %s idx %d: %v",
				cc.Name, t.kind, lg.TxHash.Hex(), lg.Index, err)
			continue
		}
		logsDecoded.WithLabelValues(cc.Name, string(t.kind)).Inc()

		if bundle, ok := ev.(BundleListedEvent); ok {
			ev = ix.readBundleItems(ctx, cl, t.address, bundle)
		}
		if err := applier.Apply(ctx, ev); err != nil {
			return cursor, fmt.Errorf("apply %s: %w", ev.Name(), err)
		}
	}

	if err := ix.store.AdvanceCursor(ctx, cc.ChainID, addrHex(t.address), string(t.kind), to); err != nil {
		if errors.Is(err, store.ErrCursorRegression) {
			// Another writer is ahead. Re-resolve and follow it.
			latest, _, lerr := ix.store.LastBlock(ctx, cc.ChainID, addrHex(t.address))
			if lerr != nil {
				return cursor, lerr
			}
			ix.log.Printf("WARN: chain %s %s: cursor already at %d, skipping ahead", cc.Name, t.kind, latest)
			return latest, nil
		}
		return cursor, fmt.Errorf("advance cursor: %w", err)
	}
	cursorBlock.WithLabelValues(cc.Name, string(t.kind)).Set(float64(to))
	return to, nil
}

// readBundleItems resolves the bundle's token list with a getBundleListing
// call. The log only carries the item count; a failed call leaves the lists
// empty rather than failing the batch.
func (ix *Indexer) readBundleItems(ctx context.Context, cl *chain.Client, marketplace common.Address, ev BundleListedEvent) BundleListedEvent {
	data, err := marketplaceABI.Pack("getBundleListing", big.NewInt(ev.BundleID))
	if err != nil {
		ix.log.Printf("WARN: pack getBundleListing(%d): %v", ev.BundleID, err)
		return ev
	}
	out, err := cl.Call(ctx, marketplace, data)
	if err != nil {
		ix.log.Printf("WARN: getBundleListing(%d): %v", ev.BundleID, err)
		return ev
	}
	vals, err := marketplaceABI.Methods["getBundleListing"].Outputs.Unpack(out)
	if err != nil || len(vals) < 2 {
		ix.log.Printf("WARN: decode getBundleListing(%d): %v", ev.BundleID, err)
		return ev
	}
	contracts, ok1 := vals[0].([]common.Address)
	tokenIDs, ok2 := vals[1].([]*big.Int)
	if !ok1 || !ok2 {
		return ev
	}
	for _, c := range contracts {
		ev.TokenContracts = append(ev.TokenContracts, addrHex(c))
	}
	for _, id := range tokenIDs {
		ev.TokenIDs = append(ev.TokenIDs, id.String())
	}
	return ev
}

// runConfigSync periodically reads platformFeeBps and feeRecipient straight
// off the contract, covering config changes made before the indexer's start
// block.
func (ix *Indexer) runConfigSync(ctx context.Context, cl *chain.Client, cc config.ChainConfig) {
	expr, err := cronexpr.Parse(ix.cfg.ConfigSyncCron)
	if err != nil {
		ix.log.Printf("WARN: chain %s: bad config sync cron %q: %v", cc.Name, ix.cfg.ConfigSyncCron, err)
		return
	}
	marketplace := common.HexToAddress(cc.MarketplaceAddress)

	ix.syncConfig(ctx, cl, cc, marketplace)
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		ix.syncConfig(ctx, cl, cc, marketplace)
	}
}

func (ix *Indexer) syncConfig(ctx context.Context, cl *chain.Client, cc config.ChainConfig, marketplace common.Address) {
	if fee, err := ix.callUint(ctx, cl, marketplace, "platformFeeBps"); err != nil {
		ix.log.Printf("WARN: chain %s: platformFeeBps: %v", cc.Name, err)
	} else {
		bps := int32(fee)
		if err := ix.store.UpsertMarketplaceConfig(ctx, cc.ChainID, &bps, nil); err != nil {
			ix.log.Printf("WARN: chain %s: store platform fee: %v", cc.Name, err)
		}
	}

	data, err := marketplaceABI.Pack("feeRecipient")
	if err != nil {
		return
	}
	out, err := cl.Call(ctx, marketplace, data)
	if err != nil {
		ix.log.Printf("WARN: chain %s: feeRecipient: %v", cc.Name, err)
		return
	}
	vals, err := marketplaceABI.Methods["feeRecipient"].Outputs.Unpack(out)
	if err != nil || len(vals) == 0 {
		return
	}
	if addr, ok := vals[0].(common.Address); ok {
		recipient := addrHex(addr)
		if err := ix.store.UpsertMarketplaceConfig(ctx, cc.ChainID, nil, &recipient); err != nil {
			ix.log.Printf("WARN: chain %s: store fee recipient: %v", cc.Name, err)
		}
	}
}

func (ix *Indexer) callUint(ctx context.Context, cl *chain.Client, contract common.Address, method string) (uint64, error) {
	data, err := marketplaceABI.Pack(method)
	if err != nil {
		return 0, err
	}
	out, err := cl.Call(ctx, contract, data)
	if err != nil {
		return 0, err
	}
	vals, err := marketplaceABI.Methods[method].Outputs.Unpack(out)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("decode %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%s returned %T", method, vals[0])
	}
	return v.Uint64(), nil
}
