// Package worker archives persisted closings to Google Drive.
package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"fechamento/internal/amqp"
	"fechamento/internal/history"
	"fechamento/internal/log"
)

// Archive is the Drive-side contract the worker needs.
type Archive interface {
	UploadArtifact(ctx context.Context, name string, content []byte) (string, error)
}

// HistoryReader is the slice of the history store the worker uses.
type HistoryReader interface {
	Get(ctx context.Context, id int64) (*history.Entry, error)
	ReadArtifact(ctx context.Context, id int64) ([]byte, string, error)
	PendingSync(ctx context.Context, limit int) ([]history.Entry, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker uploads closing artifacts from the local history store to
// the Drive archive.
type SyncWorker struct {
	store     HistoryReader
	archive   Archive
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(store HistoryReader, archive Archive, batchSize int, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		store:     store,
		archive:   archive,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncMessage processes a single closing sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ClosingSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldClosingID, msg.ID,
		log.FieldVersion, msg.Version)

	return w.syncClosing(ctx, msg.ID)
}

// ProcessPendingClosings uploads closings that never got a sync
// message, as a backup in case AMQP deliveries are lost.
func (w *SyncWorker) ProcessPendingClosings(ctx context.Context) error {
	pending, err := w.store.PendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending closings: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "Processing pending closings", log.FieldRowCount, len(pending))

	for _, entry := range pending {
		if err := w.syncClosing(ctx, entry.ID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync closing",
				log.FieldClosingID, entry.ID,
				log.FieldError, err)
		}
	}
	return nil
}

// StartupSyncCheck drains the pending backlog once at worker startup,
// with a larger batch than the periodic sweep.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.PendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending closings for startup check: %w", err)
	}
	if len(pending) == 0 {
		w.logger.InfoContext(ctx, "No pending closings found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Found pending closings on startup",
		log.FieldRowCount, len(pending))

	var successCount, errorCount int
	for _, entry := range pending {
		if err := w.syncClosing(ctx, entry.ID); err != nil {
			w.logger.ErrorContext(ctx, "Startup sync failed for closing",
				log.FieldClosingID, entry.ID,
				log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup sync check completed",
		"success", successCount,
		"errors", errorCount)
	return nil
}

// syncClosing uploads one closing's artifact and records the outcome.
// A failed upload is marked sync_error so the periodic sweep retries
// it.
func (w *SyncWorker) syncClosing(ctx context.Context, id int64) error {
	entry, err := w.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get closing %d: %w", id, err)
	}
	if entry.SyncStatus == history.SyncDone {
		w.logger.InfoContext(ctx, "Closing already archived, skipping",
			log.FieldClosingID, id)
		return nil
	}

	artifact, path, err := w.store.ReadArtifact(ctx, id)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, id); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error",
				log.FieldClosingID, id,
				log.FieldError, markErr)
		}
		return fmt.Errorf("read artifact for closing %d: %w", id, err)
	}

	fileID, err := w.archive.UploadArtifact(ctx, filepath.Base(path), artifact)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, id); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error",
				log.FieldClosingID, id,
				log.FieldError, markErr)
		}
		return fmt.Errorf("upload artifact for closing %d: %w", id, err)
	}

	if err := w.store.MarkSynced(ctx, id); err != nil {
		return fmt.Errorf("mark closing %d synced: %w", id, err)
	}

	w.logger.InfoContext(ctx, "Archived closing",
		log.FieldClosingID, id,
		log.FieldPeriodLabel, entry.PeriodLabel,
		log.FieldVersion, entry.Version,
		log.FieldDriveFileID, fileID)
	return nil
}
