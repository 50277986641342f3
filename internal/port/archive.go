package port

import "context"

type StatementArchive interface {
	// PutStatement stores a rendered statement under key, replacing any previous one
	PutStatement(ctx context.Context, key string, body []byte) error
}
