package actionlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// Recorder — неблокирующий журнал действий операторов.
// События копятся в буфере и уходят в Postgres пачками по таймеру или
// при достижении лимита. При остановке буфер дописывается полностью
// (drain через закрытие канала + WaitGroup).
type Recorder struct {
	ch     chan Event
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	flushInterval time.Duration
	isClosed      int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewRecorder(repo StorageInterface, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Recorder{
		ch:            make(chan Event, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "actionlog")),
		flushInterval: flushInterval,
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (r *Recorder) Stop() {
	atomic.StoreInt32(&r.isClosed, 1)

	// Даем крошечную паузу, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	r.logger.Info("stopping action log: closing channel and flushing buffer...")
	close(r.ch)
	r.wg.Wait()
	r.logger.Info("action log stopped gracefully")
}

// Record ставит событие в очередь. Никогда не блокирует вызывающего:
// при переполнении буфера событие теряется с записью в обычный лог.
func (r *Recorder) Record(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&r.isClosed) == 1 {
		r.logger.Warn("action event dropped: recorder is stopping", zap.String("action", event.Action))
		return
	}

	select {
	case r.ch <- event:
	default:
		// Load Shedding: буфер переполнен, фиксируем потерю в zap
		r.logger.Error("actionlog_buffer_overflow",
			zap.String("actor_id", event.ActorID),
			zap.String("action", event.Action),
		)
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]Event, 0, 100)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background: основной контекст может быть уже закрыт
			if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
				r.logger.Error("action log flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-r.ch:
			if !ok {
				// Канал закрыт в Stop(): дочитали остатки, финальный сброс, выходим
				flush()
				r.logger.Info("action log worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
