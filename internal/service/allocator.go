package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hunabku/shorturl/internal/encoder"
	"github.com/hunabku/shorturl/internal/model"
	"github.com/hunabku/shorturl/internal/repository"
)

// Allocate binds targetURL to a fresh short code. targetURL must already be
// validated.
//
// Each attempt takes the next (bucket, sequence) pair from the shared
// counter, encodes it, and inserts the link if the code is free. A taken
// code costs one attempt; any other failure ends the call. Nothing is
// written unless a code is returned.
func (s *ShortLinkService) Allocate(ctx context.Context, targetURL string) (*model.ShortLink, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.now().Unix()

		tick, err := s.advance(ctx, now)
		if err != nil {
			return nil, err
		}

		link := &model.ShortLink{
			Code:      encoder.EncodePair(uint64(tick.Bucket), uint64(tick.Sequence)),
			TargetURL: targetURL,
			CreatedAt: now,
		}

		err = s.insert(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, err
		}

		s.log.Debug("short code collision, retrying",
			"code", link.Code,
			"bucket", tick.Bucket,
			"sequence", tick.Sequence,
			"attempt", attempt,
		)
	}

	s.log.Warn("short code allocation exhausted", "attempts", s.maxAttempts)
	return nil, fmt.Errorf("%w after %d attempts", ErrAllocationExhausted, s.maxAttempts)
}

func (s *ShortLinkService) advance(ctx context.Context, now int64) (model.Tick, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tick, err := s.store.Advance(ctx, now)
	if err != nil {
		return model.Tick{}, storeErr("advance", err)
	}
	if tick.Bucket < 0 || tick.Sequence < 0 {
		return model.Tick{}, storeErr("advance", fmt.Errorf("counter returned negative pair %+v", tick))
	}
	return tick, nil
}

func (s *ShortLinkService) insert(ctx context.Context, link *model.ShortLink) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return storeErr("insert", s.store.InsertIfAbsent(ctx, link))
}
