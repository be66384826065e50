package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries identity and timestamps.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *BaseEntity) GetID() uuid.UUID { return e.ID }

// Touch records a modification at t.
func (e *BaseEntity) Touch(t time.Time) {
	e.UpdatedAt = t
}

// BaseAggregateRoot is embedded by aggregates that are written with a
// compare-and-set on Version. Repositories bump the version on every
// successful write and return ErrConcurrencyConflict when the stored version
// no longer matches.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// NewBaseAggregateRoot starts a new aggregate at version 1, created at at.
func NewBaseAggregateRoot(at time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: BaseEntity{ID: uuid.New(), CreatedAt: at, UpdatedAt: at},
		Version:    1,
	}
}

func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }
