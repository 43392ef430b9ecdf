package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "tallybook/internal/core/context"
	"tallybook/internal/core/id"
	"tallybook/internal/domain/document"
)

// CompressionAlgo specifies how the change set of an audit entry is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the change set size above which entries are compressed.
const DefaultCompressThreshold = 10 * 1024

// AuditEntry is a row of sys_audit.
type AuditEntry struct {
	ID                string          `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          string          `db:"entity_id"`
	Action            string          `db:"action"`
	RequestID         string          `db:"request_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// documentChange is the change set stored for a document mutation.
type documentChange struct {
	Before *document.Document `json:"before,omitempty"`
	After  *document.Document `json:"after,omitempty"`
}

// AuditService records document mutations in sys_audit.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var (
	_ document.Auditor     = (*AuditService)(nil)
	_ document.AuditReader = (*AuditService)(nil)
)

// NewAuditService creates an audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}, nil
}

// Record implements document.Auditor.
func (s *AuditService) Record(ctx context.Context, action string, before, after *document.Document) error {
	changes, err := json.Marshal(documentChange{Before: before, After: after})
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	entityID := ""
	switch {
	case after != nil:
		entityID = after.DocumentID
	case before != nil:
		entityID = before.DocumentID
	}

	entry := AuditEntry{
		ID:         id.New(),
		EntityType: "document",
		EntityID:   entityID,
		Action:     action,
		RequestID:  appctx.GetRequestID(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	s.encode(&entry, changes)
	return s.insert(ctx, entry)
}

// encode stores changes as-is or zstd-compressed depending on size.
func (s *AuditService) encode(entry *AuditEntry, changes []byte) {
	if len(changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
		return
	}
	entry.Changes = changes
	entry.ChangesCompressed = nil
	entry.CompressionAlgo = CompressionNone
}

// decode restores Changes of a compressed entry in place.
func (s *AuditService) decode(entry *AuditEntry) error {
	if entry.CompressionAlgo != CompressionZstd || len(entry.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := s.decoder.DecodeAll(entry.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	entry.Changes = raw
	entry.ChangesCompressed = nil
	return nil
}

func (s *AuditService) insert(ctx context.Context, e AuditEntry) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action, request_id,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.EntityType, e.EntityID, e.Action, e.RequestID,
		e.Changes, e.ChangesCompressed, e.CompressionAlgo, e.CreatedAt,
	)
	if err != nil {
		return MapError(fmt.Errorf("insert audit entry: %w", err), "audit entry", e.ID)
	}
	return nil
}

// History implements document.AuditReader.
func (s *AuditService) History(ctx context.Context, documentID string, limit int) ([]document.AuditRecord, error) {
	entries, err := s.entries(ctx, "document", documentID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]document.AuditRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, document.AuditRecord{
			Action:    e.Action,
			RequestID: e.RequestID,
			Changes:   e.Changes,
			CreatedAt: e.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// entries returns the newest audit entries of an entity with changes decompressed.
func (s *AuditService) entries(ctx context.Context, entityType, entityID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []AuditEntry
	err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, `
		SELECT id, entity_type, entity_id, action, request_id,
		       changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, MapError(fmt.Errorf("query audit history: %w", err), entityType, entityID)
	}
	for i := range entries {
		if err := s.decode(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Close releases the zstd encoder and decoder.
func (s *AuditService) Close() {
	_ = s.encoder.Close()
	s.decoder.Close()
}
