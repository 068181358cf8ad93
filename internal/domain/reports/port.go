package reports

import "context"

// Repository port (interface untuk persistence). Append-only: there is no
// update or delete.
type Repository interface {
	Create(ctx context.Context, r NewReport) (*Report, error)
	Get(ctx context.Context, id ReportID) (*Report, error)
	Latest(ctx context.Context, limit int) ([]*Report, error)
	Paginate(ctx context.Context, page, pageSize int) (PaginatedResult, error)
}

// Engine port (interface untuk eksekusi analysis engine). Each call owns one
// freshly spawned process.
type Engine interface {
	Invoke(ctx context.Context, input []byte) (EngineOutput, error)
}

// OutputArchive port (interface untuk penyimpanan raw engine output)
type OutputArchive interface {
	Archive(ctx context.Context, id ReportID, raw []byte) (string, error)
}
