package compile

// evidenceStatus accumulates the four buckets of spec.md §6's evidence
// status schema in source-processing order.
type evidenceStatus struct {
	reused    []map[string]any
	refreshed []map[string]any
	skipped   []map[string]any
	failed    []map[string]any
}

func newEvidenceStatus() *evidenceStatus {
	return &evidenceStatus{}
}

func (s *evidenceStatus) addReused(source, reason string, ageHours float64, apifyRunID string, created, updated int) {
	s.reused = append(s.reused, map[string]any{
		"source":             source,
		"reason":             reason,
		"run_age_hours":      ageHours,
		"apify_run_id":       apifyRunID,
		"normalized_created": created,
		"normalized_updated": updated,
	})
}

func (s *evidenceStatus) addRefreshed(source, reason, apifyRunID, apifyRunStatus string, rawItemsCount, created, updated int) {
	s.refreshed = append(s.refreshed, map[string]any{
		"source":             source,
		"reason":             reason,
		"apify_run_id":       apifyRunID,
		"apify_run_status":   apifyRunStatus,
		"raw_items_count":    rawItemsCount,
		"normalized_created": created,
		"normalized_updated": updated,
	})
}

func (s *evidenceStatus) addSkipped(source, reason string) {
	s.skipped = append(s.skipped, map[string]any{"source": source, "reason": reason})
}

func (s *evidenceStatus) addFailed(source, reason, errMsg, apifyRunID, apifyRunStatus string) {
	entry := map[string]any{"source": source, "reason": reason, "error": errMsg}
	if apifyRunID != "" {
		entry["apify_run_id"] = apifyRunID
	}
	if apifyRunStatus != "" {
		entry["apify_run_status"] = apifyRunStatus
	}
	s.failed = append(s.failed, entry)
}

func (s *evidenceStatus) toJSON() map[string]any {
	return map[string]any{
		"reused":    orEmpty(s.reused),
		"refreshed": orEmpty(s.refreshed),
		"skipped":   orEmpty(s.skipped),
		"failed":    orEmpty(s.failed),
	}
}

func orEmpty(entries []map[string]any) []map[string]any {
	if entries == nil {
		return []map[string]any{}
	}
	return entries
}
