package store

import (
	"fmt"

	"github.com/sattvalabs/wisdomd/internal/compose"
	"github.com/sattvalabs/wisdomd/internal/config"
	"github.com/sattvalabs/wisdomd/internal/flow"
	"github.com/sattvalabs/wisdomd/internal/versegraph"
	"github.com/sattvalabs/wisdomd/internal/wisdom"
)

// ContentStore is the full persistence surface the learning engines need.
type ContentStore interface {
	wisdom.AtomStore
	versegraph.EdgeStore
	flow.SessionStore
	compose.TemplateStore

	Close() error
}

// Open creates the content store selected by config.
func Open(cfg config.StoreConfig) (ContentStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
