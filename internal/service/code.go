package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/iliyamo/event-seat-booking/internal/metrics"
)

// CodeAlphabet is the set of characters booking codes are drawn from.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeChecker answers whether a code is already carried by a booking.
// LedgerTx satisfies it, which keeps the check inside the insert's
// transaction.
type CodeChecker interface {
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// CodeGenerator draws short human-readable booking codes.
type CodeGenerator struct {
	length      int
	maxAttempts int
	// randIndex returns a uniform index in [0, n).  Swapped in tests.
	randIndex func(n int) (int, error)
}

// NewCodeGenerator returns a generator for codes of the given length that
// gives up after maxAttempts collisions.
func NewCodeGenerator(length, maxAttempts int) *CodeGenerator {
	if length < 1 {
		length = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &CodeGenerator{length: length, maxAttempts: maxAttempts, randIndex: cryptoIndex}
}

// Generate returns a code not carried by any booking visible to checker.
func (g *CodeGenerator) Generate(ctx context.Context, checker CodeChecker) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code, err := g.draw()
		if err != nil {
			return "", persistence("draw code", err)
		}
		used, err := checker.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
		metrics.CodeCollisions.Inc()
	}
	return "", ErrCodeGenerationExhausted
}

func (g *CodeGenerator) draw() (string, error) {
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := g.randIndex(len(CodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(CodeAlphabet[n])
	}
	return b.String(), nil
}

func cryptoIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// NormalizeCode upper-cases and trims a code typed in by a person.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
