package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// StockBatchSortFields contains allowed sort fields for stock batches
var StockBatchSortFields = map[string]bool{
	"id":                 true,
	"created_at":         true,
	"updated_at":         true,
	"batch_code":         true,
	"stock_item_id":      true,
	"site_id":            true,
	"status":             true,
	"quantity_received":  true,
	"quantity_remaining": true,
	"use_by_date":        true,
	"best_before_date":   true,
}

// BatchMovementSortFields contains allowed sort fields for batch movements
var BatchMovementSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"movement_type":  true,
	"quantity_delta": true,
	"balance_after":  true,
	"reference_type": true,
}

// RecallSortFields contains allowed sort fields for recalls
var RecallSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"recall_code":  true,
	"status":       true,
	"severity":     true,
	"recall_type":  true,
	"activated_at": true,
	"closed_at":    true,
}
