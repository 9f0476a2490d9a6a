package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"docqa/config"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and embedding configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (d *DB) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}
		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (d *DB) SetSchemaInfo(info *SchemaInfo) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the settings that make stored vectors and cached
// query embeddings incompatible when they change.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		Dimension int    `json:"dimension"`
		Prefix    string `json:"query_prefix"`
	}{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Prefix:    cfg.Embedding.QueryPrefix,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	OldVersion   int
	NewVersion   int
	CacheReset   bool
	NeedsReindex bool
	Reason       string
}

// Migrate brings the database to CurrentSchemaVersion. Cached answers are
// dropped whenever the schema or the embedding configuration changed. Stored
// vectors are kept but flagged for reindexing when the embedding changed.
func (d *DB) Migrate(cfg *config.Config) (*MigrationResult, error) {
	info, err := d.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{OldVersion: info.Version, NewVersion: CurrentSchemaVersion}
	newHash := ComputeConfigHash(cfg)

	switch {
	case info.Version > CurrentSchemaVersion:
		return nil, fmt.Errorf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	case info.Version == 0:
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.CacheReset = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	}

	if info.ConfigHash != "" && info.ConfigHash != newHash {
		result.CacheReset = true
		result.NeedsReindex = true
		result.Reason = "embedding configuration changed"
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := d.runMigration(v, v+1); err != nil {
			return nil, fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	if result.CacheReset {
		if err := d.db.Update(func(tx *bbolt.Tx) error {
			return clearBucket(tx, bucketCache)
		}); err != nil {
			return nil, fmt.Errorf("reset cache: %w", err)
		}
	}

	if err := d.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion, ConfigHash: newHash}); err != nil {
		return nil, err
	}
	return result, nil
}

// runMigration runs a specific version migration.
func (d *DB) runMigration(from, to int) error {
	switch {
	case from == 1 && to == 2:
		// v2 added the cache bucket.
		return d.db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketCache)
			return err
		})
	default:
		return nil
	}
}
