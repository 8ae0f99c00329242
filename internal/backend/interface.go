package backend

import (
	"context"

	"ledger/internal/amqp"
	"ledger/internal/ledger"
)

// CleanupFunc releases the resources of a Result.
type CleanupFunc func() error

// Result is an opened ledger store plus the optional AMQP client.
type Result struct {
	Store ledger.Store
	// AMQP is nil when no broker is configured or it could not be reached.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Events returns the publisher for ledger events, or nil.
func (r *Result) Events() ledger.EventPublisher {
	if r.AMQP == nil {
		return nil
	}
	return r.AMQP
}

// Factory opens backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath  string
	PostgresURL   string
	DataDirectory string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
