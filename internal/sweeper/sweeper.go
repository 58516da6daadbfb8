package sweeper

import (
	"context"
	"time"

	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sweeper expires payment attempts that never settled. Each stale
// payment is routed through the reconciliation engine with a failed
// outcome — there is no side channel that flips statuses directly, so
// capacity and notification invariants hold for expired attempts too.
type Sweeper struct {
	cron   *cron.Cron
	db     *gorm.DB
	engine *reconcile.Engine
	log    *zap.Logger
	maxAge time.Duration
}

func New(db *gorm.DB, engine *reconcile.Engine, log *zap.Logger, maxAge time.Duration) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		cron:   cron.New(),
		db:     db,
		engine: engine,
		log:    log.Named("sweeper"),
		maxAge: maxAge,
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("@every 10m", func() {
		expired, err := s.ExpireStalePayments(context.Background())
		if err != nil {
			s.log.Warn("sweep failed", zap.Error(err))
			return
		}
		if expired > 0 {
			s.log.Info("expired stale payments", zap.Int("count", expired))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ExpireStalePayments fails every non-terminal payment older than the
// configured age and reports how many moved.
func (s *Sweeper) ExpireStalePayments(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.maxAge)

	var stale []models.Payment
	err := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]models.PaymentStatus{models.PaymentPending, models.PaymentProcessing, models.PaymentRequiresAction},
			cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, payment := range stale {
		result, err := s.engine.ApplySettlement(ctx, reconcile.SettlementEvent{
			IdempotencyKey: payment.ExternalTransactionID,
			Provider:       "sweeper",
			Outcome:        reconcile.OutcomeFailed,
		})
		if err != nil {
			s.log.Warn("failed to expire payment",
				zap.String("payment_id", payment.ID.String()), zap.Error(err))
			continue
		}
		if !result.AlreadyApplied {
			expired++
		}
	}
	return expired, nil
}
