package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeSet map[string]bool

func (s codeSet) CodeInUse(_ context.Context, code string) (bool, error) { return s[code], nil }

// sequence returns indexes from seq, cycling.
func sequence(seq ...int) func(int) (int, error) {
	i := 0
	return func(int) (int, error) {
		v := seq[i%len(seq)]
		i++
		return v, nil
	}
}

func TestGenerateDrawsFromAlphabet(t *testing.T) {
	g := NewCodeGenerator(3, 8)

	for i := 0; i < 50; i++ {
		code, err := g.Generate(context.Background(), codeSet{})
		require.NoError(t, err)
		require.Len(t, code, 3)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(CodeAlphabet, r), "unexpected rune %q", r)
		}
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	g := NewCodeGenerator(2, 4)
	// AA collides, then AB is free.
	g.randIndex = sequence(0, 0, 0, 1)

	code, err := g.Generate(context.Background(), codeSet{"AA": true})

	require.NoError(t, err)
	assert.Equal(t, "AB", code)
}

func TestGenerateGivesUp(t *testing.T) {
	g := NewCodeGenerator(2, 3)
	g.randIndex = sequence(0)

	_, err := g.Generate(context.Background(), codeSet{"AA": true})

	assert.ErrorIs(t, err, ErrCodeGenerationExhausted)
}

func TestGenerateReportsRandomnessFailure(t *testing.T) {
	g := NewCodeGenerator(2, 3)
	g.randIndex = func(int) (int, error) { return 0, errors.New("entropy") }

	_, err := g.Generate(context.Background(), codeSet{})

	assert.ErrorIs(t, err, ErrPersistence)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "AB3", NormalizeCode("  ab3 "))
	assert.Equal(t, "", NormalizeCode("   "))
}
