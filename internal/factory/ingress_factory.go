package factory

import (
	"github.com/mikey/meeting-scheduler/internal/adapters/ingress"
	"github.com/mikey/meeting-scheduler/internal/config"
	"github.com/mikey/meeting-scheduler/internal/scheduler"
	"go.uber.org/zap"
)

// IngressFactory creates the inbound mail listener
type IngressFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *scheduler.Service
}

// NewIngressFactory creates a new ingress factory
func NewIngressFactory(cfg *config.Config, logger *zap.Logger, service *scheduler.Service) *IngressFactory {
	return &IngressFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
	}
}

// CreateIngress creates the SMTP ingress from the configuration
func (f *IngressFactory) CreateIngress() *ingress.SMTPIngress {
	ingressCfg := f.cfg.GetIngress()
	return ingress.NewSMTPIngress(
		f.service,
		f.logger,
		ingressCfg.ListenAddress,
		ingressCfg.RelayAddress,
		ingressCfg.RelayPort,
		ingressCfg.RelayEnabled,
	)
}
