package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordCommand(t *testing.T) {
	cmd := newCommand()
	var out bytes.Buffer
	cmd.Writer = &out

	err := cmd.Run(context.Background(), []string{serviceName, "hash-password", "--cost", "4", "secret1"})
	require.NoError(t, err)

	hash := strings.TrimSpace(out.String())
	require.Len(t, hash, 60)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret1")))
}

func TestHashPasswordRejectsInvalidInput(t *testing.T) {
	_, err := hashPassword("", bcrypt.MinCost)
	assert.Error(t, err)

	_, err = hashPassword("secret1", bcrypt.MaxCost+1)
	assert.Error(t, err)
}

func TestReadPassword(t *testing.T) {
	got, err := readPassword(strings.NewReader("from-stdin\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", got)
}
