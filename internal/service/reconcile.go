package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/domain"
)

const (
	reconcileBatch  = 50
	reconcileMaxAge = 24 * time.Hour
)

// RunStatusReconciler periodically refreshes outbound messages whose status
// callback never arrived. It returns when ctx is done.
func (s *Service) RunStatusReconciler(ctx context.Context) {
	interval := s.config.StatusSweepInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcileStatuses(ctx)
		}
	}
}

func (s *Service) reconcileStatuses(ctx context.Context) int {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	pending, err := s.store.ListPendingOutbound(sweepCtx, now.Add(-reconcileMaxAge), now.Add(-s.config.StatusStaleAfter), reconcileBatch)
	if err != nil {
		log.Warn().Err(err).Msg("status reconcile sweep failed")
		return 0
	}

	senders := make(map[string]*senderContext)
	updated := 0
	for _, m := range pending {
		sc, ok := senders[m.SenderPhoneNumberID]
		if !ok {
			sc, err = s.loadSender(sweepCtx, m.SenderPhoneNumberID)
			if err != nil {
				log.Warn().Err(err).Str("message_id", m.ID).Msg("no sender for pending message")
			}
			senders[m.SenderPhoneNumberID] = sc
		}
		if sc == nil {
			continue
		}

		cctx, cancel := s.remoteCtx(sweepCtx)
		remote, err := sc.provider.FetchMessage(cctx, m.ProviderMessageSID)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("provider_sid", m.ProviderMessageSID).Msg("failed to fetch message status")
			continue
		}
		status := domain.MessageStatus(remote.Status)
		if status == "" || status == m.Status {
			continue
		}

		changed, err := s.applyStatus(sweepCtx, domain.StatusCallback{
			MessageSID:   m.ProviderMessageSID,
			Status:       status,
			ErrorCode:    errorCodeString(remote.ErrorCode),
			ErrorMessage: remote.ErrorMessage,
		})
		if err != nil {
			log.Warn().Err(err).Str("provider_sid", m.ProviderMessageSID).Msg("failed to apply reconciled status")
			continue
		}
		if changed {
			updated++
		}
	}
	return updated
}
