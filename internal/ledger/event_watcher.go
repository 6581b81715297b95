package ledger

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/util"
	"github.com/ministake/ministake/pkg/types"
)

const (
	eventBackfillBlocks = 100 // blocks to backfill on reconnect
	eventReconnectBase  = 2 * time.Second
	eventReconnectMax   = 60 * time.Second
	eventChannelBuffer  = 64
	eventSeenPruneAt    = 1024 // seen-set size that triggers pruning
)

// logKey identifies a log across subscriptions and backfills
type logKey struct {
	tx    common.Hash
	index uint
}

// EventWatcher delivers WithdrawDebug events for one user. On a live chain
// it keeps a WebSocket subscription open, reconnecting with backoff and
// backfilling the blocks missed while disconnected. Logs are deduplicated by
// transaction hash and log index, so overlapping backfills and live delivery
// hand each event over once. In mock mode it relays the events the in-memory
// contract emits.
type EventWatcher struct {
	client   *Client
	contract *StakingContract
	user     common.Address

	events chan *types.WithdrawDebugEvent

	lastBlock atomic.Uint64
	// startBlock is the head at Start. Logs at or below it are not delivered.
	startBlock uint64
	seenMu     sync.Mutex
	seen       map[logKey]uint64

	running atomic.Bool
	closed  atomic.Bool
	sendMu  sync.RWMutex
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEventWatcher creates a watcher for user's WithdrawDebug events. A zero
// user watches every user.
func NewEventWatcher(l *Ledger, user common.Address) *EventWatcher {
	ew := &EventWatcher{
		user:   user,
		events: make(chan *types.WithdrawDebugEvent, eventChannelBuffer),
		seen:   make(map[logKey]uint64),
	}
	if l != nil {
		ew.client = l.client
		ew.contract = l.staking
	}
	return ew
}

// Events returns the event channel. It is closed by Stop.
func (ew *EventWatcher) Events() <-chan *types.WithdrawDebugEvent {
	return ew.events
}

// Start begins delivering events. Without a WebSocket endpoint the watcher
// stays idle and the read-model relies on polling.
func (ew *EventWatcher) Start(ctx context.Context) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if ew.running.Load() || ew.contract == nil {
		return nil
	}

	if ew.contract.IsMockMode() {
		ew.contract.subscribeMockDebug(ew.relayMock)
		ew.running.Store(true)
		logging.Info("event watcher: relaying mock WithdrawDebug events",
			logging.Component("event-watcher"))
		return nil
	}

	if ew.client == nil || !ew.client.IsConnected() {
		logging.Info("event watcher: no chain connection, skipping",
			logging.Component("event-watcher"))
		return nil
	}
	if !ew.client.HasWSConfig() {
		logging.Info("event watcher: no WebSocket endpoint configured, WithdrawDebug events disabled",
			logging.Component("event-watcher"))
		return nil
	}

	if blockNum, err := ew.client.BlockNumber(ctx); err == nil {
		ew.startBlock = blockNum
		ew.lastBlock.Store(blockNum)
	}

	ctx, ew.cancel = context.WithCancel(ctx)
	ew.running.Store(true)

	util.SafeGoGroup(&ew.wg, "event-watcher-withdraw-debug", func() {
		ew.watchWithdrawDebug(ctx)
	})

	logging.Info("event watcher started",
		logging.Component("event-watcher"),
		"block", ew.lastBlock.Load())
	return nil
}

// Stop stops the watcher, waits for its goroutine and closes the event
// channel. Safe to call more than once.
func (ew *EventWatcher) Stop() {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if ew.cancel != nil {
		ew.cancel()
		ew.cancel = nil
	}
	ew.wg.Wait()
	ew.running.Store(false)

	ew.sendMu.Lock()
	defer ew.sendMu.Unlock()
	if ew.closed.CompareAndSwap(false, true) {
		close(ew.events)
		logging.Info("event watcher stopped", logging.Component("event-watcher"))
	}
}

func (ew *EventWatcher) relayMock(ev types.WithdrawDebugEvent) {
	if !ew.matches(ev.User) {
		return
	}
	ew.deliver(&ev)
}

func (ew *EventWatcher) matches(user string) bool {
	return ew.user == (common.Address{}) || common.HexToAddress(user) == ew.user
}

func (ew *EventWatcher) deliver(ev *types.WithdrawDebugEvent) {
	ew.sendMu.RLock()
	defer ew.sendMu.RUnlock()
	if ew.closed.Load() {
		return
	}
	select {
	case ew.events <- ev:
	default:
		logging.Warn("event watcher: channel full, dropping WithdrawDebug event",
			logging.Component("event-watcher"),
			logging.TxHash(ev.TxHash))
	}
}

func (ew *EventWatcher) query() ethereum.FilterQuery {
	topics := [][]common.Hash{{ew.contract.contractABI.Events["WithdrawDebug"].ID}}
	if ew.user != (common.Address{}) {
		topics = append(topics, []common.Hash{common.BytesToHash(ew.user.Bytes())})
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{ew.contract.contractAddr},
		Topics:    topics,
	}
}

func (ew *EventWatcher) watchWithdrawDebug(ctx context.Context) {
	ew.subscribeWithReconnect(ctx, "withdraw-debug", ew.query(), ew.handleLog)
}

func (ew *EventWatcher) handleLog(log gethtypes.Log) {
	if log.Removed {
		return
	}
	ev, err := ew.contract.parseWithdrawDebug(log)
	if err != nil {
		// Forwarded anyway: the observer drops incomplete events with a diagnostic.
		logging.Warn("event watcher: malformed WithdrawDebug log",
			logging.Component("event-watcher"),
			logging.TxHash(log.TxHash.Hex()),
			logging.Err(err))
	}
	ew.deliver(ev)
}

// subscribeWithReconnect keeps one subscription alive until ctx is done
func (ew *EventWatcher) subscribeWithReconnect(
	ctx context.Context,
	name string,
	query ethereum.FilterQuery,
	handler func(gethtypes.Log),
) {
	delay := eventReconnectBase

	for {
		if ctx.Err() != nil {
			return
		}

		wsClient := ew.client.WSClient()
		if wsClient == nil {
			if err := ew.client.ReconnectWS(ctx); err != nil {
				logging.Warn("event watcher: WS reconnect failed",
					"subscription", name, logging.Err(err))
				if !sleepOrDone(ctx, delay) {
					return
				}
				delay = nextDelay(delay)
				continue
			}
			wsClient = ew.client.WSClient()
		}

		// Subscribe before backfilling so nothing falls between the two;
		// overlap is removed by accept.
		logs := make(chan gethtypes.Log, 16)
		sub, err := wsClient.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			logging.Warn("event watcher: subscribe failed",
				"subscription", name, logging.Err(err))
			if !sleepOrDone(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			_ = ew.client.ReconnectWS(ctx)
			continue
		}

		delay = eventReconnectBase
		logging.Info("event watcher: subscribed", "subscription", name)

		ew.backfillEvents(ctx, query, handler)

		done := ew.processEvents(ctx, name, sub, logs, handler)
		sub.Unsubscribe()
		if done {
			return
		}
		_ = ew.client.ReconnectWS(ctx)
	}
}

// processEvents returns true when ctx is done and false when the
// subscription failed and should be re-established.
func (ew *EventWatcher) processEvents(
	ctx context.Context,
	name string,
	sub ethereum.Subscription,
	logs <-chan gethtypes.Log,
	handler func(gethtypes.Log),
) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case err := <-sub.Err():
			if err != nil {
				logging.Warn("event watcher: subscription error",
					"subscription", name, logging.Err(err))
			}
			return false
		case log := <-logs:
			if ew.accept(log) {
				ew.advance(log.BlockNumber)
				handler(log)
			}
		}
	}
}

// backfillEvents replays recent logs not delivered yet. The window reaches
// back from the last seen block, which is included because a subscription
// can drop partway through it.
func (ew *EventWatcher) backfillEvents(
	ctx context.Context,
	query ethereum.FilterQuery,
	handler func(gethtypes.Log),
) {
	last := ew.lastBlock.Load()
	if last == 0 {
		return
	}
	client := ew.client.Backend()
	if client == nil {
		return
	}

	fromBlock := backfillFrom(last)
	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: query.Addresses,
		Topics:    query.Topics,
	})
	if err != nil {
		logging.Warn("event watcher: backfill failed", logging.Err(err))
		return
	}

	if replayed := ew.replay(logs, handler); replayed > 0 {
		logging.Info("event watcher: backfilled events",
			"count", replayed, "from_block", fromBlock)
	}
}

// replay hands every log not seen before to handler and returns how many
func (ew *EventWatcher) replay(logs []gethtypes.Log, handler func(gethtypes.Log)) int {
	replayed := 0
	for _, log := range logs {
		if !ew.accept(log) {
			continue
		}
		handler(log)
		ew.advance(log.BlockNumber)
		replayed++
	}
	return replayed
}

// accept records log and reports whether it is new. Removed logs are
// forgotten so a re-included log is delivered again.
func (ew *EventWatcher) accept(log gethtypes.Log) bool {
	key := logKey{tx: log.TxHash, index: log.Index}

	ew.seenMu.Lock()
	defer ew.seenMu.Unlock()

	if log.Removed {
		delete(ew.seen, key)
		return false
	}
	if log.BlockNumber <= ew.startBlock {
		return false
	}
	if _, ok := ew.seen[key]; ok {
		return false
	}
	ew.seen[key] = log.BlockNumber

	if len(ew.seen) >= eventSeenPruneAt {
		floor := backfillFrom(ew.lastBlock.Load())
		for k, block := range ew.seen {
			if block < floor {
				delete(ew.seen, k)
			}
		}
	}
	return true
}

func (ew *EventWatcher) advance(block uint64) {
	for {
		cur := ew.lastBlock.Load()
		if block <= cur || ew.lastBlock.CompareAndSwap(cur, block) {
			return
		}
	}
}

func backfillFrom(last uint64) uint64 {
	if last > eventBackfillBlocks {
		return last - eventBackfillBlocks
	}
	return 0
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > eventReconnectMax {
		next = eventReconnectMax
	}
	return next
}
