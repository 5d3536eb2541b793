package service

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/dom/shared-calendar/internal/domain"
)

const maxShareCodeAttempts = 5

type shareCodeChecker interface {
	ShareCodeExists(ctx context.Context, code string) (bool, error)
}

// randomShareCode draws length characters uniformly from the share code
// alphabet.
func randomShareCode(length int) (string, error) {
	alphabet := domain.ShareCodeAlphabet
	size := big.NewInt(int64(len(alphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

func uniqueShareCode(ctx context.Context, checker shareCodeChecker, length int, generate func(int) (string, error)) (string, error) {
	for attempt := 0; attempt < maxShareCodeAttempts; attempt++ {
		code, err := generate(length)
		if err != nil {
			return "", domain.Internal("generate share code", err)
		}
		exists, err := checker.ShareCodeExists(ctx, code)
		if err != nil {
			return "", domain.Internal("check share code", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrShareCodeUnavailable
}
