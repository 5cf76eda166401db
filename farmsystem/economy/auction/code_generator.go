package auction

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pomfarm/farmsystem/farmsystem/bidderrors"
	"github.com/pomfarm/farmsystem/farmsystem/database/repositories"
)

const (
	codeLength = 4
	maxRetries = 5

	// No 0/O or 1/I, codes get read aloud in league chats.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// CodeGenerator issues short human-readable auction codes, unique across
// the life of the store. Uniqueness is checked against the repository
// with retry rather than pre-reserved.
type CodeGenerator struct {
	repo repositories.AuctionRepository
	mu   sync.Mutex
}

func NewCodeGenerator(repo repositories.AuctionRepository) *CodeGenerator {
	return &CodeGenerator{repo: repo}
}

func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	generateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < maxRetries; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate candidate code: %w", err)
		}

		_, err = g.repo.GetByCode(generateCtx, code)
		if errors.Is(err, bidderrors.ErrAuctionNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check code uniqueness: %w", err)
		}

		// Collision, back off and retry.
		backoff := time.Duration(1<<uint(attempt)) * time.Millisecond
		select {
		case <-generateCtx.Done():
			return "", fmt.Errorf("timeout during code generation: %w", generateCtx.Err())
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("failed to generate unique auction code after %d attempts", maxRetries)
}

func randomCode() (string, error) {
	bytes := make([]byte, codeLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	code := make([]byte, codeLength)
	for i, b := range bytes {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}
