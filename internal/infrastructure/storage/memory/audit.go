package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	appctx "tallybook/internal/core/context"
	"tallybook/internal/domain/document"
)

// AuditLog implements document.Auditor and document.AuditReader.
type AuditLog struct {
	mu      sync.RWMutex
	records map[string][]document.AuditRecord
	now     func() time.Time
}

var (
	_ document.Auditor     = (*AuditLog)(nil)
	_ document.AuditReader = (*AuditLog)(nil)
)

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{records: make(map[string][]document.AuditRecord), now: time.Now}
}

func (l *AuditLog) Record(ctx context.Context, action string, before, after *document.Document) error {
	changes, err := json.Marshal(struct {
		Before *document.Document `json:"before,omitempty"`
		After  *document.Document `json:"after,omitempty"`
	}{before, after})
	if err != nil {
		return err
	}

	docID := ""
	switch {
	case after != nil:
		docID = after.DocumentID
	case before != nil:
		docID = before.DocumentID
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[docID] = append(l.records[docID], document.AuditRecord{
		Action:    action,
		RequestID: appctx.GetRequestID(ctx),
		Changes:   changes,
		CreatedAt: l.now().UTC(),
	})
	return nil
}

func (l *AuditLog) History(_ context.Context, documentID string, limit int) ([]document.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recs := l.records[documentID]
	out := make([]document.AuditRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, recs[i])
	}
	return out, nil
}
