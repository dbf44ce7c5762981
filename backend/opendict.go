package backend

import (
	"context"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/opendict"
)

// Catalog submits statements to an open dictionary catalog.
type Catalog interface {
	SQL(ctx context.Context, query string) (opendict.Response, error)
}

// OpenDict runs statements against one catalog deployment. Responses are
// discarded; error documents surface as *opendict.ResponseError.
type OpenDict struct {
	system  bench.System
	catalog Catalog
}

// NewOpenDict wraps catalog as the backend for sys.
func NewOpenDict(sys bench.System, catalog Catalog) *OpenDict {
	return &OpenDict{system: sys, catalog: catalog}
}

func (o *OpenDict) System() bench.System { return o.system }

func (o *OpenDict) Exec(ctx context.Context, query string) error {
	_, err := o.catalog.SQL(ctx, query)
	return err
}

func (o *OpenDict) Close() error { return nil }
