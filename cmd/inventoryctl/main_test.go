package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunUsage(t *testing.T) {
	stderr := new(bytes.Buffer)
	require.Equal(t, 2, run(context.Background(), nil, new(bytes.Buffer), stderr))
	require.Contains(t, stderr.String(), "usage: inventoryctl")
}

func TestRunUnknownCommand(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("AUTH_GATEWAY_SECRET", "")
	stderr := new(bytes.Buffer)
	require.Equal(t, 2, run(context.Background(), []string{"frobnicate"}, new(bytes.Buffer), stderr))
	require.Contains(t, stderr.String(), `unknown command "frobnicate"`)
}
