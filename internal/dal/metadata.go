// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

/*
metadata.go - Metadata Store

Per-item metadata (sentiment, user annotation flags) lives in a subcollection
nested under the entity's invocation-info record, keyed by item id. Metadata
survives independently of the raw item documents: records for items no longer
returned by the provider are retained (soft-orphaned), never deleted by a
merge.

Merge semantics:
  - Union of existing and incoming ids.
  - Shallow field-level merge per id, incoming values winning per field.
  - id, userId, and provider are always stamped from context; a mismatching
    caller-supplied value is never trusted.
*/
package dal

import (
	"context"
	"sort"

	"github.com/tomtom215/sentigraph/internal/logging"
	"github.com/tomtom215/sentigraph/internal/models"
	"github.com/tomtom215/sentigraph/internal/registry"
	"github.com/tomtom215/sentigraph/internal/sentiment"
	"github.com/tomtom215/sentigraph/internal/store"
)

// GetMetadata returns every metadata record of the user, across all of their
// entities, in a flat array. Records carry their originating provider in the
// stamped provider field. Returns nil on error (logged, never propagated).
func (d *DAL) GetMetadata(ctx context.Context, userID string) []models.Document {
	records, err := d.store.QueryGroup(ctx, userID, models.MetadataSubcollection)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("user", userID).
			Msg("getMetadata failed")
		return nil
	}
	return records
}

// StoreMetadata merges the given records into the entity's metadata set,
// idempotently and field-by-field, and persists the full merged set. Returns
// the merged array, or nil on error (logged, never propagated).
//
// Safe to call concurrently for disjoint id sets; per-field last-writer-wins
// is the accepted resolution for overlapping ids.
func (d *DAL) StoreMetadata(ctx context.Context, userID string, desc *registry.Descriptor, entity string, records []models.Document) []models.Document {
	merged, err := d.storeMetadata(ctx, userID, desc, entity, records)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("user", userID).
			Str("entity", entity).
			Msg("storeMetadata failed")
		return nil
	}
	return merged
}

func (d *DAL) storeMetadata(ctx context.Context, userID string, desc *registry.Descriptor, entity string, records []models.Document) ([]models.Document, error) {
	entityName, err := resolveEntity(desc, entity)
	if err != nil {
		return nil, err
	}

	existing, err := d.loadMetadata(ctx, userID, entityName)
	if err != nil {
		return nil, err
	}

	mergedByID := mergeMetadataRecords(existing, records, userID, desc.Provider)

	merged := flattenMetadata(mergedByID)
	if err := d.store.StoreBatch(ctx, userID, store.MetadataCollection(entityName), merged, models.FieldID); err != nil {
		return nil, err
	}
	return merged, nil
}

// loadMetadata reads the entity's metadata subcollection into a map keyed by
// item id.
func (d *DAL) loadMetadata(ctx context.Context, userID, entityName string) (map[string]models.Document, error) {
	records, err := d.store.Query(ctx, userID, store.MetadataCollection(entityName), nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Document, len(records))
	for _, record := range records {
		if id := stringField(record, models.FieldID); id != "" {
			byID[id] = record
		}
	}
	return byID, nil
}

// mergeMetadataRecords computes the union of existing and incoming records.
// For each id the existing record is shallow-merged first, then the incoming
// record (incoming wins per field), and id/userId/provider are stamped from
// context.
func mergeMetadataRecords(existing map[string]models.Document, incoming []models.Document, userID, provider string) map[string]models.Document {
	merged := make(map[string]models.Document, len(existing)+len(incoming))
	for id, record := range existing {
		merged[id] = stampRecord(cloneShallow(record), id, userID, provider)
	}
	for _, record := range incoming {
		id := stringField(record, models.FieldID)
		if id == "" {
			continue
		}
		out, ok := merged[id]
		if !ok {
			out = models.Document{}
		}
		for k, v := range record {
			out[k] = v
		}
		merged[id] = stampRecord(out, id, userID, provider)
	}
	return merged
}

// stampRecord forces the identity fields from context.
func stampRecord(record models.Document, id, userID, provider string) models.Document {
	record[models.FieldID] = id
	record[models.FieldUserID] = userID
	record[models.FieldProvider] = provider
	return record
}

// flattenMetadata returns the records sorted by id for deterministic
// persistence and return order.
func flattenMetadata(byID map[string]models.Document) []models.Document {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		records = append(records, byID[id])
	}
	return records
}

// enrichSentiment computes sentiment for fetched items that do not yet carry
// a score, merges the new records into the metadata set, and persists them.
// Items whose metadata already has a sentiment score are left untouched:
// sentiment is computed at most once per item, ever, unless the metadata is
// externally cleared. A present score of 0 counts as present.
//
// Returns the updated metadata map; on persistence failure the in-memory
// enrichment is still returned so the response carries fresh scores.
func (d *DAL) enrichSentiment(ctx context.Context, userID string, desc *registry.Descriptor, entityName string, items []models.Document, metadata map[string]models.Document) map[string]models.Document {
	if desc.SentimentTextField == "" && desc.SentimentField == "" {
		return metadata
	}

	newRecords := make([]models.Document, 0)
	for _, item := range items {
		id := stringField(item, desc.ItemKey)
		if id == "" {
			continue
		}
		if record, ok := metadata[id]; ok {
			if _, scored := record[models.FieldSentimentScore]; scored {
				continue
			}
		}

		record, ok := d.scoreItem(ctx, desc, id, item)
		if !ok {
			continue
		}
		newRecords = append(newRecords, record)
	}

	if len(newRecords) == 0 {
		return metadata
	}

	merged := mergeMetadataRecords(metadata, newRecords, userID, desc.Provider)
	if err := d.store.StoreBatch(ctx, userID, store.MetadataCollection(entityName), flattenMetadata(merged), models.FieldID); err != nil {
		logging.Ctx(ctx).Error().
			Err(err).
			Str("user", userID).
			Str("entity", entityName).
			Msg("metadata persistence failed, scores will be recomputed next fetch")
	}
	return merged
}

// scoreItem produces a metadata record for one item, either from a
// provider-supplied classification label or by calling the sentiment scorer.
func (d *DAL) scoreItem(ctx context.Context, desc *registry.Descriptor, id string, item models.Document) (models.Document, bool) {
	var (
		score  float64
		rating sentiment.Rating
		text   string
	)

	if desc.SentimentField != "" {
		// Pre-classified by the provider; no scorer call.
		label := stringField(item, desc.SentimentField)
		score, rating = sentiment.ScoreForLabel(label)
		text = stringField(item, desc.TextField)
	} else {
		text = stringField(item, desc.SentimentTextField)
		if text == "" {
			return nil, false
		}
		result, err := d.scorer.Analyze(ctx, text)
		if err != nil {
			// Skip without writing metadata so the score is retried on the
			// next fetch cycle.
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("provider", desc.Provider).
				Str("item", id).
				Msg("sentiment analysis failed, skipping item")
			return nil, false
		}
		score, rating = result.Score, result.Rating
	}

	return models.Document{
		models.FieldID:             id,
		models.FieldText:           text,
		models.FieldSentiment:      string(rating),
		models.FieldSentimentScore: score,
	}, true
}

// mergeMetadataWithItems left-joins metadata into items by item id for the
// response: metadata fields first, item fields override on key collision, so
// current provider data wins over possibly stale cached annotations.
func mergeMetadataWithItems(desc *registry.Descriptor, items []models.Document, metadata map[string]models.Document) []models.Document {
	enriched := make([]models.Document, 0, len(items))
	for _, item := range items {
		id := stringField(item, desc.ItemKey)
		record := metadata[id]
		if record == nil {
			enriched = append(enriched, item)
			continue
		}
		out := cloneShallow(record)
		for k, v := range item {
			out[k] = v
		}
		enriched = append(enriched, out)
	}
	return enriched
}

// cloneShallow copies a document one level deep.
func cloneShallow(doc models.Document) models.Document {
	out := make(models.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
