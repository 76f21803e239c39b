package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hunabku/shorturl/internal/logger"
	"github.com/hunabku/shorturl/internal/model"
	"github.com/hunabku/shorturl/internal/repository"
	"github.com/hunabku/shorturl/internal/validator"
)

// Custom errors for the service layer
var (
	ErrInvalidURL          = errors.New("invalid URL format")
	ErrEmptyURL            = errors.New("URL cannot be empty")
	ErrURLNotFound         = errors.New("short URL not found")
	ErrAllocationExhausted = errors.New("short code allocation exhausted")

	// ErrStoreUnavailable is returned unchanged from the repository layer.
	ErrStoreUnavailable = repository.ErrStoreUnavailable
)

const (
	DefaultMaxAttempts  = 3
	DefaultStoreTimeout = 2 * time.Second
)

// Store is what the service needs from a backend
type Store interface {
	repository.LinkStore
	repository.Counter
}

// Options configures a ShortLinkService. Zero values select defaults.
type Options struct {
	BaseURL      string
	MaxAttempts  int
	StoreTimeout time.Duration
	Clock        func() time.Time
}

// ShortLinkService allocates and resolves short codes
type ShortLinkService struct {
	store       Store
	validator   *validator.URLValidator
	baseURL     string // e.g., "http://localhost:8080"
	maxAttempts int
	timeout     time.Duration
	now         func() time.Time
	log         *logger.Logger
}

// NewShortLinkService creates a new service instance
func NewShortLinkService(store Store, opts Options, log *logger.Logger) *ShortLinkService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if log == nil {
		log = logger.Discard()
	}

	return &ShortLinkService{
		store:       store,
		validator:   validator.NewURLValidator(),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		maxAttempts: opts.MaxAttempts,
		timeout:     opts.StoreTimeout,
		now:         opts.Clock,
		log:         log,
	}
}

// CreateShortLink allocates a code for req.URL and builds the API response
func (s *ShortLinkService) CreateShortLink(ctx context.Context, req model.CreateShortLinkRequest) (*model.CreateShortLinkResponse, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}

	link, err := s.Allocate(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	return &model.CreateShortLinkResponse{
		URLID:    link.Code,
		ShortURL: s.ShortURL(link.Code),
		URL:      link.TargetURL,
	}, nil
}

// ResolveShortLink returns the target bound to code
func (s *ShortLinkService) ResolveShortLink(ctx context.Context, code string) (*model.ResolveShortLinkResponse, error) {
	target, err := s.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	return &model.ResolveShortLinkResponse{TargetURL: target}, nil
}

// ShortURL returns the public URL that resolves code
func (s *ShortLinkService) ShortURL(code string) string {
	return s.baseURL + "/shorturl/" + code
}

// storeErr keeps the error taxonomy closed: anything a store returns that is
// not one of its sentinels is an I/O failure.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateKey),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrStoreUnavailable):
		return err
	}
	return fmt.Errorf("%w: %s: %w", repository.ErrStoreUnavailable, op, err)
}

// ============ VALIDATION HELPERS ============

func validateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return ErrEmptyURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	// Must have scheme (http/https) and host
	if parsed.Scheme == "" || parsed.Host == "" {
		return ErrInvalidURL
	}

	// Only allow http and https
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidURL
	}

	return nil
}
