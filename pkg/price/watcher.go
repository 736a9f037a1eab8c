package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dex-trader/pkg/types"
)

// DefaultPollInterval is how often the watcher refreshes pool state.
const DefaultPollInterval = 30 * time.Second

// Watcher polls a pool's slot0 on a fixed interval. The previous state stays
// visible while a refresh is pending or failing, so readers never observe a
// gap between polls.
type Watcher struct {
	reader   *Reader
	pool     common.Address
	interval time.Duration
	log      *zap.Logger

	mu       sync.RWMutex
	state    *types.PoolState
	running  bool
	stopChan chan struct{}
}

func NewWatcher(reader *Reader, pool common.Address, logger *zap.Logger) *Watcher {
	return &Watcher{
		reader:   reader,
		pool:     pool,
		interval: DefaultPollInterval,
		log:      logger,
	}
}

// Start performs an initial read and begins polling in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.refresh(ctx)
	go w.poll(ctx)
	return nil
}

// Stop halts polling. The last good state remains readable.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopChan)
}

// Current returns the most recent successfully read pool state.
func (w *Watcher) Current() (*types.PoolState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state, w.state != nil
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	state, err := w.reader.ReadPoolState(ctx, w.pool)
	if err != nil {
		// Keep showing the previous state rather than clearing it.
		w.log.Warn("pool state refresh failed",
			zap.String("pool", w.pool.Hex()),
			zap.Error(err))
		return
	}
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}
