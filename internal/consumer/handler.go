package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ResourceAPI/internal/model"
)

// Repo определяет хранилище журнала событий (ClickHouse)
type Repo interface {
	BatchInsertEvents(ctx context.Context, events []model.ResourceEvent) error
}

// Consumer буферизует события изменений ресурсов и пишет их пакетами.
// Буфер сбрасывается при достижении batchSize, по таймеру в Run и при остановке
type Consumer struct {
	repo      Repo
	batchSize int
	log       logrus.FieldLogger

	mu     sync.Mutex
	events []model.ResourceEvent
}

// NewConsumer создаёт Consumer с указанным репозиторием и размером пакета
func NewConsumer(repo Repo, batchSize int, log logrus.FieldLogger) *Consumer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Consumer{repo: repo, batchSize: batchSize, log: log, events: make([]model.ResourceEvent, 0, batchSize)}
}

// HandleMessage разбирает событие из NATS и добавляет его в буфер
func (c *Consumer) HandleMessage(ctx context.Context, data []byte) error {
	var e model.ResourceEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return errors.Wrap(err, "failed to decode resource event")
	}
	c.log.WithFields(logrus.Fields{"action": e.Action, "resource_id": e.Resource.ID}).Debug("resource event received")

	c.mu.Lock()
	c.events = append(c.events, e)
	// пакет ещё не набран
	if len(c.events) < c.batchSize {
		c.mu.Unlock()
		return nil
	}
	batch := c.drainLocked()
	c.mu.Unlock()
	// запись идёт без блокировки буфера
	return c.repo.BatchInsertEvents(ctx, batch)
}

// Flush отправляет все накопленные события, если они есть
func (c *Consumer) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return c.repo.BatchInsertEvents(ctx, batch)
}

// Run периодически сбрасывает буфер, пока не отменён ctx. Последний сброс выполняется
// с отдельным контекстом, чтобы не потерять хвост при остановке
func (c *Consumer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.log.WithError(err).Error("periodic flush failed")
			}
		case <-ctx.Done():
			// ctx уже отменён, для последнего сброса нужен свой
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.Flush(flushCtx); err != nil {
				c.log.WithError(err).Error("final flush failed")
			}
			cancel()
			return
		}
	}
}

// Pending возвращает количество событий в буфере
func (c *Consumer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *Consumer) drainLocked() []model.ResourceEvent {
	if len(c.events) == 0 {
		return nil
	}
	batch := make([]model.ResourceEvent, len(c.events))
	copy(batch, c.events)
	c.events = c.events[:0]
	return batch
}
