package store

import (
	"context"
	"fmt"
	"os"

	"github.com/AdirGamil/animeedit/internal/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadSeedFile reads a YAML (or JSON, which YAML accepts) file containing a
// list of record payloads. Each entry must carry a numeric recordId field;
// the remaining keys form the record's payload.
func LoadSeedFile(path string) ([]*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var entries []map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	records := make([]*model.Record, 0, len(entries))
	for i, entry := range entries {
		id, ok := seedRecordID(entry)
		if !ok {
			return nil, fmt.Errorf("seed entry %d: missing or non-numeric recordId", i)
		}

		fields := make(model.Fields, len(entry))
		for k, v := range entry {
			fields[k] = v
		}
		records = append(records, &model.Record{ID: id, Fields: model.StripIdentity(fields)})
	}

	return records, nil
}

// Seed inserts the given records into the Available partition if the store
// holds no records in any partition. Returns the number inserted.
func Seed(ctx context.Context, s RecordStore, records []*model.Record, logger *zap.Logger) (int, error) {
	total := 0
	for _, p := range model.Partitions {
		count, err := s.Count(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("failed to count partition %s: %w", p, err)
		}
		total += count
	}
	if total > 0 {
		logger.Info("store already populated, skipping seed", zap.Int("existing", total))
		return 0, nil
	}

	inserted := 0
	for _, record := range records {
		if err := s.Insert(ctx, model.PartitionAvailable, record); err != nil {
			return inserted, fmt.Errorf("failed to seed record %d: %w", record.ID, err)
		}
		inserted++
	}

	logger.Info("seeded record store", zap.Int("records", inserted))
	return inserted, nil
}

// seedRecordID extracts the recordId from a raw seed entry. YAML decodes
// integers as int; JSON sources decode as float64.
func seedRecordID(entry map[string]any) (model.RecordID, bool) {
	raw, ok := entry["recordId"]
	if !ok {
		raw, ok = entry["id"]
	}
	if !ok {
		return 0, false
	}

	switch v := raw.(type) {
	case int:
		return model.RecordID(v), true
	case int64:
		return model.RecordID(v), true
	case float64:
		return model.RecordID(v), true
	default:
		return 0, false
	}
}
