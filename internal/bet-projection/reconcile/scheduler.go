// Package reconcile corrige periodicamente objectives.total_bets a partir da tabela bets.
package reconcile

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Repo interface {
	Reconcile(ctx context.Context) (int64, error)
}

// Scheduler roda a reconciliação segundo uma expressão cron (ex.: "@every 5m")
type Scheduler struct {
	log  *zap.Logger
	repo Repo
	cron *cron.Cron

	OnCorrected func(n int64) // métricas: objetivos corrigidos por execução
}

func NewScheduler(log *zap.Logger, repo Repo) *Scheduler {
	return &Scheduler{log: log, repo: repo, cron: cron.New()}
}

// RunOnce executa uma reconciliação e devolve quantos objetivos foram corrigidos
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.repo.Reconcile(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Warn("total_bets drift corrected", zap.Int64("objectives", n))
	}
	if s.OnCorrected != nil {
		s.OnCorrected(n)
	}
	return n, nil
}

// Start agenda RunOnce; o contexto encerra as execuções em andamento
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("reconcile failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info("reconcile scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop espera a execução corrente terminar
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
