package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/vitals/internal/domain"
)

// OperatorRepo операторы в таблице monitor_operators (пул общий с журналом)
type OperatorRepo struct {
	db *sql.DB
}

func (r *JournalRepo) Operators() *OperatorRepo {
	return &OperatorRepo{db: r.db}
}

// GetOperator (nil, nil), если оператора нет
func (r *OperatorRepo) GetOperator(ctx context.Context, username string) (*domain.Operator, error) {
	query := `SELECT username, password_hash, scopes FROM monitor_operators WHERE username = $1`

	op := &domain.Operator{}
	var scopes []byte
	err := r.db.QueryRowContext(ctx, query, username).Scan(&op.Username, &op.PasswordHash, &scopes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get operator: %w", err)
	}
	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &op.Scopes); err != nil {
			return nil, fmt.Errorf("postgres: operator scopes: %w", err)
		}
	}
	return op, nil
}
