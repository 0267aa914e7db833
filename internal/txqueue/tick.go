package txqueue

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/gas"
	"github.com/rrelayer/rrelayer/internal/provider"
	"github.com/rrelayer/rrelayer/internal/relayer"
	"github.com/rrelayer/rrelayer/internal/storage"
)

// advanceMined is step 1 of §4.2.1: for every mined transaction, query its
// receipt at the current head; past confirmation_depth, mark confirmed and
// emit a webhook; if the receipt disappeared (re-org), put it back in the
// in-mempool set at its original nonce.
func (q *Queue) advanceMined(ctx context.Context) {
	if len(q.mined) == 0 {
		return
	}
	head, err := q.provider.BlockNumber(ctx)
	if err != nil {
		log.Warn("txqueue: block number query failed", "relayer", q.relayer.ID, "err", err)
		return
	}
	for id, row := range q.mined {
		if row.KnownHash == nil {
			continue
		}
		receipt, err := q.provider.GetReceipt(ctx, *row.KnownHash)
		if err != nil || receipt == nil {
			delete(q.mined, id)
			q.reopenAsInMempool(row)
			continue
		}
		if head < receipt.BlockNumber.Uint64() {
			continue
		}
		depth := head - receipt.BlockNumber.Uint64()
		if depth < q.confirmationDepthOrDefault() {
			continue
		}
		now := time.Now()
		row.Status = chain.StatusConfirmed
		row.ConfirmedAt = &now
		if err := q.store.UpdateTransaction(ctx, row); err != nil {
			log.Error("txqueue: persist confirmed failed", "id", id, "err", err)
			continue
		}
		delete(q.mined, id)
		q.emitWebhook(ctx, "transaction.confirmed", row)
	}
}

func (q *Queue) confirmationDepthOrDefault() uint64 {
	if q.confirmationDepth > 0 {
		return q.confirmationDepth
	}
	return 12
}

func (q *Queue) reopenAsInMempool(row storage.Transaction) {
	row.Status = chain.StatusInMempool
	set := &competitiveSet{id: row.CompetitiveSetID, siblings: []storage.Transaction{row}}
	if row.Nonce != nil {
		set.nonce = *row.Nonce
	}
	q.inMempool = append(q.inMempool, set)
}

// advanceInMempool is step 2 of §4.2.1: for every competitive set, check
// whether any sibling's hash was included; otherwise bump if the bump
// interval has elapsed, subject to the relayer's gas cap.
func (q *Queue) advanceInMempool(ctx context.Context) {
	if len(q.inMempool) == 0 {
		return
	}
	head, err := q.provider.BlockNumber(ctx)
	if err != nil {
		log.Warn("txqueue: block number query failed", "relayer", q.relayer.ID, "err", err)
		return
	}
	remaining := q.inMempool[:0]
	for _, set := range q.inMempool {
		minedSibling := q.findMinedSibling(ctx, set)
		if minedSibling != nil {
			q.resolveCompetitiveSet(ctx, set, *minedSibling)
			continue
		}
		cfg := q.QueueConfig()
		if head >= set.sentBlock+cfg.GasBumpBlocksEvery {
			q.bumpCompetitiveSet(ctx, set, cfg)
		}
		remaining = append(remaining, set)
	}
	q.inMempool = remaining
}

// findMinedSibling returns the index of the first sibling whose hash has a
// receipt, if any.
func (q *Queue) findMinedSibling(ctx context.Context, set *competitiveSet) *int {
	for i, sib := range set.siblings {
		if sib.KnownHash == nil {
			continue
		}
		receipt, err := q.provider.GetReceipt(ctx, *sib.KnownHash)
		if err == nil && receipt != nil {
			idx := i
			return &idx
		}
	}
	return nil
}

// resolveCompetitiveSet moves the mined sibling to the mined map and marks
// every other sibling in the set cancelled (§3 "competitive set": at most
// one ever mines).
func (q *Queue) resolveCompetitiveSet(ctx context.Context, set *competitiveSet, minedIdx int) {
	now := time.Now()
	for i, sib := range set.siblings {
		if i == minedIdx {
			sib.Status = chain.StatusMined
			sib.MinedAt = &now
			if err := q.store.UpdateTransaction(ctx, sib); err != nil {
				log.Error("txqueue: persist mined failed", "id", sib.ID, "err", err)
				continue
			}
			q.mined[sib.ID] = sib
			q.emitWebhook(ctx, "transaction.mined", sib)
			continue
		}
		if sib.Status.Terminal() {
			continue
		}
		sib.Status = chain.StatusCancelled
		if err := q.store.UpdateTransaction(ctx, sib); err != nil {
			log.Error("txqueue: persist cancelled sibling failed", "id", sib.ID, "err", err)
		}
	}
}

// bumpCompetitiveSet implements §4.2.3: compute bumped gas parameters
// against the live sibling, sign a new sibling at the same nonce, and
// broadcast it. If the cap can't be met, the set is left unchanged for
// this tick.
func (q *Queue) bumpCompetitiveSet(ctx context.Context, set *competitiveSet, cfg relayer.QueueConfig) {
	live := set.live()
	estimate, ok := q.gasCache.Main(q.relayer.ChainID)
	if !ok {
		return
	}
	speedParams := estimate.For(live.Speed)
	prevBroadcast := gas.Broadcast{
		MaxFee:         nonZero(live.SentMaxFee),
		MaxPriorityFee: nonZero(live.SentMaxPriority),
	}
	cap := gas.Cap{MaxFee: effectiveCap(cfg)}
	bumped, ok := gas.Bump(speedParams, prevBroadcast, cap)
	if !ok {
		return
	}
	newRow, err := q.signAndBroadcast(ctx, broadcastPlan{
		nonce:            set.nonce,
		relayerID:        q.relayer.ID,
		competitiveSetID: set.id,
		to:               live.To,
		value:            live.Value,
		data:             live.Data,
		speed:            live.Speed,
		externalID:       live.ExternalID,
		isNoop:           live.IsNoop,
		maxFee:           bumped.MaxFee,
		maxPriority:      bumped.MaxPriorityFee,
	})
	if err != nil {
		log.Warn("txqueue: bump broadcast failed, will retry next tick", "relayer", q.relayer.ID, "nonce", set.nonce, "err", err)
		return
	}
	set.siblings = append(set.siblings, newRow)
	if newRow.SentBlock != nil {
		set.sentBlock = *newRow.SentBlock
	}
}

func effectiveCap(cfg relayer.QueueConfig) *uint256.Int {
	if cfg.MaxGasPrice == nil {
		return nil
	}
	mult := cfg.MaxGasPriceMultiplier
	if mult <= 0 {
		mult = 1
	}
	// scale by multiplier*1000 as integer math to avoid float drift in a
	// wei-denominated comparison.
	scaled := new(uint256.Int).Mul(cfg.MaxGasPrice, uint256.NewInt(uint64(mult*1000)))
	return scaled.Div(scaled, uint256.NewInt(1000))
}

func nonZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}

// drainPending is step 3 of §4.2.1: while pending is non-empty and the
// relayer isn't paused, pop the head, assign the next nonce, estimate gas,
// sign, and broadcast.
func (q *Queue) drainPending(ctx context.Context) {
	cfg := q.QueueConfig()
	if cfg.IsPaused {
		return
	}
	for {
		q.pendingMu.Lock()
		if len(q.pending) == 0 {
			q.pendingMu.Unlock()
			return
		}
		entry := q.pending[0]
		q.pending = q.pending[1:]
		q.pendingMu.Unlock()

		if !q.broadcastPendingEntry(ctx, entry, cfg) {
			return
		}
	}
}

// broadcastPendingEntry returns false when the caller should stop draining
// this tick (recoverable failure, nonce exhausted, etc — re-queued for
// next tick) and true to keep draining.
func (q *Queue) broadcastPendingEntry(ctx context.Context, entry pendingEntry, cfg relayer.QueueConfig) bool {
	estimate, ok := q.gasCache.Main(q.relayer.ChainID)
	if !ok {
		q.requeuePending(entry)
		return false
	}
	speedParams := estimate.For(entry.intent.Speed)
	capped := effectiveCap(cfg)
	maxFee := speedParams.MaxFee
	maxPriority := speedParams.MaxPriorityFee
	if capped != nil && maxFee.Cmp(capped) > 0 {
		maxFee = capped
	}

	gasLimit, err := q.provider.EstimateGas(ctx, provider.Call{
		From:  q.relayer.Address,
		To:    &entry.intent.To,
		Value: valueOrZeroBig(entry.intent.Value),
		Data:  entry.intent.Data,
	})
	if err != nil {
		q.failPending(ctx, entry, err)
		return true
	}
	if q.maxGasLimit > 0 && gasLimit > q.maxGasLimit {
		gasLimit = q.maxGasLimit
	}

	nonce := q.nonces.reserve()
	setID := entry.id
	row, err := q.signAndBroadcast(ctx, broadcastPlan{
		nonce:            nonce,
		relayerID:        q.relayer.ID,
		competitiveSetID: setID,
		to:               entry.intent.To,
		value:            valueOrZeroU256(entry.intent.Value),
		data:             entry.intent.Data,
		speed:            entry.intent.Speed,
		externalID:       entry.intent.ExternalID,
		gasLimit:         gasLimit,
		maxFee:           maxFee,
		maxPriority:      maxPriority,
		existingID:       &entry.id,
	})
	if err != nil {
		if isNonceTooLow(err) {
			if rerr := q.nonces.refresh(ctx, q.provider, q.relayer.Address); rerr != nil {
				log.Error("txqueue: nonce refresh failed", "relayer", q.relayer.ID, "err", rerr)
			}
			q.requeuePending(entry)
			return false
		}
		if isDeterministicFailure(err) {
			q.failPending(ctx, entry, err)
			return true
		}
		// recoverable: transport/underpriced — leave in pending, stop
		// draining this tick.
		q.requeuePending(entry)
		return false
	}
	set := &competitiveSet{id: setID, nonce: nonce, siblings: []storage.Transaction{row}}
	if row.SentBlock != nil {
		set.sentBlock = *row.SentBlock
	}
	q.inMempool = append(q.inMempool, set)
	return true
}

func (q *Queue) requeuePending(entry pendingEntry) {
	q.pendingMu.Lock()
	q.pending = append([]pendingEntry{entry}, q.pending...)
	q.pendingMu.Unlock()
}

func (q *Queue) failPending(ctx context.Context, entry pendingEntry, cause error) {
	row, err := q.store.GetTransaction(ctx, entry.id)
	if err != nil {
		log.Error("txqueue: load pending for failure failed", "id", entry.id, "err", err)
		return
	}
	now := time.Now()
	row.Status = chain.StatusFailed
	row.FailedAt = &now
	if err := q.store.UpdateTransaction(ctx, row); err != nil {
		log.Error("txqueue: persist failed status failed", "id", entry.id, "err", err)
		return
	}
	log.Info("txqueue: transaction failed deterministically", "id", entry.id, "cause", cause)
	q.emitWebhook(ctx, "transaction.failed", row)
}

// expirePending is step 4 of §4.2.1: pending transactions past expires_at
// are marked expired without broadcasting. Per §9's open ambiguity, this
// package applies expiry to pending transactions only; in-mempool
// transactions never expire once they've consumed a nonce.
func (q *Queue) expirePending(ctx context.Context) {
	now := time.Now()
	q.pendingMu.Lock()
	var kept []pendingEntry
	var expired []pendingEntry
	for _, p := range q.pending {
		if p.expiresAt != nil && now.After(*p.expiresAt) {
			expired = append(expired, p)
			continue
		}
		kept = append(kept, p)
	}
	q.pending = kept
	q.pendingMu.Unlock()

	for _, p := range expired {
		row, err := q.store.GetTransaction(ctx, p.id)
		if err != nil {
			continue
		}
		row.Status = chain.StatusExpired
		if err := q.store.UpdateTransaction(ctx, row); err != nil {
			log.Error("txqueue: persist expired failed", "id", p.id, "err", err)
			continue
		}
		q.emitWebhook(ctx, "transaction.expired", row)
	}
}

func (q *Queue) emitWebhook(ctx context.Context, eventType string, row storage.Transaction) {
	if q.webhooks == nil || q.webhookURL == "" {
		return
	}
	if err := q.webhooks.Enqueue(ctx, q.webhookURL, webhookEvent(eventType, row)); err != nil {
		log.Error("txqueue: webhook enqueue failed", "id", row.ID, "event", eventType, "err", err)
	}
}

func valueOrZeroBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func isNonceTooLow(err error) bool {
	return err != nil && containsAny(err.Error(), "nonce too low", "nonce is too low")
}

func isDeterministicFailure(err error) bool {
	return err != nil && containsAny(err.Error(), "insufficient funds", "execution reverted", "invalid opcode", "always failing transaction")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
