package board

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/nugget/vibeplanner/internal/asset"
	"github.com/nugget/vibeplanner/internal/idea"
)

var (
	// ErrInvalidImportFormat is returned when a backup file is not a
	// JSON array. Nothing is written in that case.
	ErrInvalidImportFormat = errors.New("backup file must contain a JSON array of ideas")

	// ErrNothingToExport is returned when neither the view nor the
	// cache holds any idea.
	ErrNothingToExport = errors.New("nothing to export")
)

// BackupFileName returns the conventional file name for a backup taken
// at t.
func BackupFileName(t time.Time) string {
	return "vibe_backup_" + t.Format(time.DateOnly) + ".json"
}

// backupRecord is one idea as written to a backup file. The voice memo
// travels as a data URI under audioBase64.
type backupRecord struct {
	idea.Idea
	AudioBase64 string `json:"audioBase64,omitempty"`
}

// ItemResult reports what happened to one record of a batch.
type ItemResult struct {
	// Index is the record's position in the batch.
	Index int
	ID    int64
	Title string
	Err   error
}

// ExportReport summarizes an export.
type ExportReport struct {
	Written int
	Results []ItemResult
}

// Failed returns the results that carry an error.
func (r *ExportReport) Failed() []ItemResult { return failed(r.Results) }

// ImportReport summarizes an import.
type ImportReport struct {
	Imported int
	Results  []ItemResult
}

// Failed returns the results that carry an error.
func (r *ImportReport) Failed() []ItemResult { return failed(r.Results) }

func failed(results []ItemResult) []ItemResult {
	var out []ItemResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Export writes every known idea to w as an indented JSON array. Known
// ideas are the visible list plus any cache-only records; when both
// hold the same id the visible copy wins and keeps the cached memo.
//
// A memo that fails to encode is reported in its item result and the
// record is written without it; the rest of the batch is unaffected.
func (c *Coordinator) Export(ctx context.Context, w io.Writer) (*ExportReport, error) {
	ideas, err := c.exportSet(ctx)
	if err != nil {
		return nil, err
	}
	if len(ideas) == 0 {
		return nil, ErrNothingToExport
	}

	report := &ExportReport{Results: make([]ItemResult, 0, len(ideas))}
	records := make([]backupRecord, 0, len(ideas))
	for n, i := range ideas {
		res := ItemResult{Index: n, ID: i.ID, Title: i.Title}
		rec := backupRecord{Idea: i}
		if i.AudioAsset != nil {
			token, err := asset.Encode(*i.AudioAsset)
			if err != nil {
				res.Err = fmt.Errorf("encode voice memo: %w", err)
				c.logger.Warn("voice memo skipped in export", "id", i.ID, "error", err)
			} else {
				rec.AudioBase64 = token
			}
		}
		records = append(records, rec)
		report.Results = append(report.Results, res)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	report.Written = len(records)
	c.logger.Info("backup exported", "records", report.Written, "failed", len(report.Failed()))
	return report, nil
}

func (c *Coordinator) exportSet(ctx context.Context) ([]idea.Idea, error) {
	view := c.Ideas()
	if c.cache == nil {
		return view, nil
	}
	cached, err := c.cache.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read local cache: %w", err)
	}

	byID := make(map[int64]idea.Idea, len(cached))
	for _, i := range cached {
		byID[i.ID] = i
	}
	for n := range view {
		if hit, ok := byID[view[n].ID]; ok {
			if view[n].AudioAsset == nil {
				view[n].AudioAsset = hit.AudioAsset
			}
			delete(byID, view[n].ID)
		}
	}

	extra := make([]idea.Idea, 0, len(byID))
	for _, i := range byID {
		extra = append(extra, i)
	}
	slices.SortFunc(extra, func(a, b idea.Idea) int { return cmp.Compare(a.ID, b.ID) })
	return append(view, extra...), nil
}

// Import reads a backup from r and writes its valid records to the
// local cache in one batch. A document that is not a JSON array is
// rejected before anything is written. Records that cannot be decoded
// are reported and skipped; they do not block the others.
func (c *Coordinator) Import(ctx context.Context, r io.Reader) (*ImportReport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportFormat, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: got null", ErrInvalidImportFormat)
	}

	report := &ImportReport{Results: make([]ItemResult, 0, len(raw))}
	valid := make([]idea.Idea, 0, len(raw))
	slots := make([]int, 0, len(raw))
	for n, item := range raw {
		rec, err := decodeRecord(item)
		res := ItemResult{Index: n, ID: rec.ID, Title: rec.Title, Err: err}
		if err != nil {
			c.logger.Warn("backup record skipped", "index", n, "error", err)
		} else {
			valid = append(valid, rec)
			slots = append(slots, n)
		}
		report.Results = append(report.Results, res)
	}

	if len(valid) > 0 {
		ids, err := c.cache.BulkUpsert(ctx, valid)
		if err != nil {
			return report, fmt.Errorf("store imported ideas: %w", err)
		}
		for k, id := range ids {
			report.Results[slots[k]].ID = id
		}
	}
	report.Imported = len(valid)
	c.logger.Info("backup imported", "records", len(raw), "imported", report.Imported)
	return report, nil
}

// decodeRecord turns one backup entry into an idea. An absent, null or
// empty audioBase64 means no memo.
func decodeRecord(item json.RawMessage) (idea.Idea, error) {
	var i idea.Idea
	if err := json.Unmarshal(item, &i); err != nil {
		return idea.Idea{}, fmt.Errorf("decode record: %w", err)
	}
	var extra struct {
		AudioBase64 *string `json:"audioBase64"`
	}
	if err := json.Unmarshal(item, &extra); err != nil {
		return i, fmt.Errorf("decode record: %w", err)
	}
	if err := i.Validate(); err != nil {
		return i, err
	}
	if extra.AudioBase64 != nil && *extra.AudioBase64 != "" {
		a, err := asset.Decode(*extra.AudioBase64)
		if err != nil {
			return i, fmt.Errorf("decode voice memo: %w", err)
		}
		i.AudioAsset = a
	}
	return i, nil
}
