package worker

import (
	"context"

	"claim-service/internal/broker"
	"claim-service/internal/fingerprint"
	"claim-service/internal/models"
	"claim-service/internal/util"

	"go.uber.org/zap"
)

// Index is the part of the in-memory duplicate index the worker maintains
type Index interface {
	Add(ctx context.Context, claimID int64, fp fingerprint.Fingerprint) error
	Remove(claimIDs ...int64)
}

// IndexWorker applies fingerprints accepted on other replicas to the
// local index
type IndexWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	index        Index
	logger       *zap.Logger
}

// NewIndexWorker creates a new index worker. Events published by origin
// are skipped since this replica already applied them.
func NewIndexWorker(consumer *broker.Consumer, index Index, origin string) *IndexWorker {
	w := &IndexWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(origin),
		index:        index,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnClaimSubmitted(w.HandleClaimSubmitted)
	w.eventHandler.OnCampaignDeleted(w.HandleCampaignDeleted)
	return w
}

// Start starts the worker
func (w *IndexWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting index worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *IndexWorker) Stop() error {
	w.logger.Info("Stopping index worker")
	return w.consumer.Close()
}

// HandleClaimSubmitted indexes the fingerprint carried by the event
func (w *IndexWorker) HandleClaimSubmitted(ctx context.Context, event *models.ClaimSubmittedEvent) error {
	fp, err := fingerprint.Parse(event.Fingerprint)
	if err != nil {
		return err
	}
	if fp.IsZero() {
		return nil
	}

	if err := w.index.Add(ctx, event.ClaimID, fp); err != nil {
		w.logger.Warn("Fingerprint from event not indexed",
			zap.Int64("claim_id", event.ClaimID),
			zap.Error(err))
		return err
	}
	return nil
}

// HandleCampaignDeleted drops the fingerprints of the deleted claims
func (w *IndexWorker) HandleCampaignDeleted(_ context.Context, event *models.CampaignDeletedEvent) error {
	w.index.Remove(event.ClaimIDs...)
	w.logger.Info("Dropped fingerprints of deleted campaign",
		zap.Int64("campaign_id", event.CampaignID),
		zap.Int("claims", len(event.ClaimIDs)))
	return nil
}
