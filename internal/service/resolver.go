package service

import (
	"context"
	"errors"

	"github.com/hunabku/shorturl/internal/repository"
)

// Resolve returns the target URL bound to code, or ErrURLNotFound.
// Codes that could never have been issued are not looked up.
func (s *ShortLinkService) Resolve(ctx context.Context, code string) (string, error) {
	if !s.validator.ValidateShortCode(code) {
		return "", ErrURLNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := s.store.Get(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrURLNotFound
	}
	if err != nil {
		return "", storeErr("get", err)
	}

	return link.TargetURL, nil
}
