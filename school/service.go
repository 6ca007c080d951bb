package school

import "context"

// RegistryReader abstracts repository operations for the service.
type RegistryReader interface {
	GetByID(ctx context.Context, id string) (School, error)
	List(ctx context.Context, district string, limit int) ([]School, error)
}

// Service exposes business-level school registry operations.
type Service struct {
	repo RegistryReader
}

// NewService builds a Service using the provided repository.
func NewService(repo RegistryReader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the school for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (School, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit schools, optionally scoped to one district.
func (s *Service) List(ctx context.Context, district string, limit int) ([]School, error) {
	return s.repo.List(ctx, district, limit)
}
