package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/rowstore"
)

// createdAtLayout has a fixed width so that text ordering matches time
// ordering on backends that store it as TEXT.
const createdAtLayout = "2006-01-02T15:04:05.000000Z07:00"

// RowTokenStore keeps tokens in the gm_tokens table. Every save deactivates
// the previous rows and inserts a new active one, so the table doubles as a
// history of issued credentials.
//
// The deactivate and insert statements are not transactional. Two
// concurrent saves can both leave an active row; Load then picks the newest.
type RowTokenStore struct {
	client rowstore.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ TokenStore = (*RowTokenStore)(nil)

// NewRowTokenStore returns a token store on top of client.
func NewRowTokenStore(client rowstore.Client, logger *slog.Logger) *RowTokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RowTokenStore{client: client, logger: logger, now: time.Now}
}

func (s *RowTokenStore) String() string {
	return "rowstore:" + rowstore.TableTokens
}

// Load returns the newest active token row, or nil.
func (s *RowTokenStore) Load(ctx context.Context) (*Token, error) {
	rows, err := s.client.Select(ctx, rowstore.TableTokens, rowstore.Query{
		Columns: []string{"id", "token", "created_at"},
		Filters: []rowstore.Filter{rowstore.Eq("is_active", true)},
		Order:   &rowstore.Order{Column: "created_at", Desc: true},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load active token: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var t Token
	ok, err := rowstore.DecodeJSON(rows[0], "token", &t)
	if err != nil || !ok {
		s.logger.Warn("ignoring unparsable token row",
			logging.Store(s.String()),
			slog.String("row_id", rowstore.String(rows[0], "id")),
			logging.Err(err))
		return nil, nil
	}
	return &t, nil
}

// Save deactivates every active row, then inserts t as the active row.
// A nil token only deactivates.
func (s *RowTokenStore) Save(ctx context.Context, t *Token) error {
	if err := s.client.Update(ctx, rowstore.TableTokens,
		rowstore.Row{"is_active": false},
		rowstore.Eq("is_active", true),
	); err != nil {
		return fmt.Errorf("failed to deactivate previous tokens: %w", err)
	}
	if t == nil {
		return nil
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	row := rowstore.Row{
		"id":         uuid.NewString(),
		"token":      string(data),
		"is_active":  true,
		"created_at": s.now().UTC().Format(createdAtLayout),
	}
	if err := s.client.Insert(ctx, rowstore.TableTokens, row); err != nil {
		return fmt.Errorf("failed to insert active token: %w", err)
	}
	return nil
}

// Clear deactivates every token row.
func (s *RowTokenStore) Clear(ctx context.Context) error {
	return s.Save(ctx, nil)
}
