package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format. Stores
// of any other version are rebuilt.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyExtractorHash = []byte("extractor_hash")
)

// SchemaInfo stores schema version and the hash of the extractor that last
// populated the store.
type SchemaInfo struct {
	Version       int    `json:"version"`
	ExtractorHash string `json:"extractor_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		versionData := b.Get(keySchemaVersion)
		if versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = -1
			}
		}

		if hashData := b.Get(keyExtractorHash); hashData != nil {
			info.ExtractorHash = string(hashData)
		}

		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}

		return b.Put(keyExtractorHash, []byte(info.ExtractorHash))
	})
}

// ComputeExtractorHash hashes the extractor identity. A change means every
// stored entry is stale.
func ComputeExtractorHash(version string, dimension int) string {
	relevant := struct {
		Version   string `json:"version"`
		Dimension int    `json:"dimension"`
	}{version, dimension}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration checks if migration or rebuild is needed.
func (s *BoltStore) CheckMigration(extractorVersion string, dimension int) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch info.Version {
	case 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case CurrentSchemaVersion:
	default:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("schema v%d, want v%d", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	newHash := ComputeExtractorHash(extractorVersion, dimension)
	if info.ExtractorHash != "" && info.ExtractorHash != newHash {
		result.NeedsRebuild = true
		result.Reason = "extractor changed"
	}

	return result, nil
}

// Migrate records the schema version and the extractor.
func (s *BoltStore) Migrate(extractorVersion string, dimension int) error {
	return s.SetSchemaInfo(&SchemaInfo{
		Version:       CurrentSchemaVersion,
		ExtractorHash: ComputeExtractorHash(extractorVersion, dimension),
	})
}

// Clear removes all cached embeddings (for rebuild).
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEmbeddings); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEmbeddings)
		return err
	})
}

// Prepare runs the migration check and rebuild-or-migrate sequence used on
// every open. It returns the check result for reporting.
func (s *BoltStore) Prepare(extractorVersion string, dimension int) (*MigrationResult, error) {
	result, err := s.CheckMigration(extractorVersion, dimension)
	if err != nil {
		return nil, err
	}
	if result.NeedsRebuild {
		if err := s.Clear(); err != nil {
			return nil, fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	if err := s.Migrate(extractorVersion, dimension); err != nil {
		return nil, err
	}
	return result, nil
}
