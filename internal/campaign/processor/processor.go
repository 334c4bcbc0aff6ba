// Package processor implements the campaign record operations behind the
// posts API.
package processor

import (
	"context"
	"errors"
	"fmt"

	"postqueue/internal/observability"
	"postqueue/internal/store"
)

var ErrInvalidPlatform = errors.New("invalid platform")

// CampaignStore is the slice of the store the processor needs.
type CampaignStore interface {
	Reload(ctx context.Context) (store.ReloadResult, error)
	Create(ctx context.Context, params store.CreateParams) (string, error)
	Update(ctx context.Context, id string, params store.UpdateParams) error
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Get(id string) (store.Record, bool)
	List(batchID string) []store.Record
}

// Processor validates campaign operations and delegates to the store.
type Processor struct {
	store  CampaignStore
	logger *observability.Logger
}

func NewProcessor(campaignStore CampaignStore, logger *observability.Logger) *Processor {
	return &Processor{store: campaignStore, logger: logger}
}

// ListRecords returns all records, optionally filtered by batch id.
func (p *Processor) ListRecords(_ context.Context, batchID string) []store.Record {
	return p.store.List(batchID)
}

// GetRecord returns one record by id.
func (p *Processor) GetRecord(_ context.Context, id string) (store.Record, error) {
	rec, ok := p.store.Get(id)
	if !ok {
		return store.Record{}, store.ErrRecordNotFound
	}
	return rec, nil
}

// CreateRecord validates and creates a record, returning its id.
func (p *Processor) CreateRecord(ctx context.Context, params store.CreateParams) (string, error) {
	if err := validatePlatforms(params.Platforms); err != nil {
		return "", err
	}

	id, err := p.store.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}

	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "record_id", Value: id},
	), "campaign record created")
	return id, nil
}

// UpdateRecord validates and applies a partial update.
func (p *Processor) UpdateRecord(ctx context.Context, id string, params store.UpdateParams) (store.Record, error) {
	if err := validatePlatforms(params.Platforms); err != nil {
		return store.Record{}, err
	}

	if err := p.store.Update(ctx, id, params); err != nil {
		return store.Record{}, fmt.Errorf("failed to update record: %w", err)
	}

	rec, ok := p.store.Get(id)
	if !ok {
		return store.Record{}, store.ErrRecordNotFound
	}
	return rec, nil
}

// DeleteRecord removes a record.
func (p *Processor) DeleteRecord(ctx context.Context, id string) error {
	if err := p.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "record_id", Value: id},
	), "campaign record deleted")
	return nil
}

// ClearRecords wipes the remote and local tables.
func (p *Processor) ClearRecords(ctx context.Context) error {
	if err := p.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	p.logger.Info(ctx, "all campaign records cleared")
	return nil
}

// ReloadRecords refreshes the table from the remote service.
func (p *Processor) ReloadRecords(ctx context.Context) (store.ReloadResult, error) {
	res, err := p.store.Reload(ctx)
	if err != nil {
		return store.ReloadResult{}, fmt.Errorf("failed to reload records: %w", err)
	}
	p.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "count", Value: res.Count},
		observability.Field{Key: "from_cache", Value: res.FromCache},
	), "campaign records reloaded")
	return res, nil
}

func validatePlatforms(platforms []store.Platform) error {
	for _, pl := range platforms {
		if !store.IsValidPlatform(pl) {
			return fmt.Errorf("%w: %q", ErrInvalidPlatform, pl)
		}
	}
	return nil
}
