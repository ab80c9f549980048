package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

// Session is a dedicated connection checked out of the pool for one pass.
type Session struct {
	conn *sqlx.Conn
}

// Opener returns a storage.Opener checking out a fresh connection per pass.
func (db *DB) Opener() storage.Opener {
	return func(ctx context.Context) (storage.Store, error) {
		conn, err := db.Connx(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire connection: %w", err)
		}
		return &Session{conn: conn}, nil
	}
}

func (s *Session) Blocks() storage.BlockRepository          { return NewBlockRepo(s.conn) }
func (s *Session) Netspace() storage.NetspaceRepository     { return NewNetspaceRepo(s.conn) }
func (s *Session) ChainState() storage.ChainStateRepository { return NewChainStateRepo(s.conn) }

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}
