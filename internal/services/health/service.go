package health

import (
	"context"
	"database/sql"
	"time"
)

// Status is the health snapshot returned by the health endpoint.
type Status struct {
	OK       bool   `json:"ok"`
	Database string `json:"database,omitempty"`
}

// Service reports process health. A nil DB means memory-backed mode and is
// still healthy.
type Service struct {
	DB *sql.DB
}

func (s *Service) Check(ctx context.Context) Status {
	if s == nil || s.DB == nil {
		return Status{OK: true}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		return Status{OK: false, Database: "unreachable"}
	}
	return Status{OK: true, Database: "ok"}
}
