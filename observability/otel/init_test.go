package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.ErrorContains(t, err, "service name")
}

func TestInitRejectsSampleRatio(t *testing.T) {
	_, err := Init(context.Background(), Config{ServiceName: "nftledger", SampleRatio: 1.5})
	require.Error(t, err)
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "nftledger"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret ,broken, =empty,tenant=ledger")
	require.Equal(t, map[string]string{"api-key": "secret", "tenant": "ledger"}, got)
	require.Empty(t, ParseHeaders(""))
}
