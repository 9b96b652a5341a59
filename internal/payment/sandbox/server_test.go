package sandbox

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/storefront/internal/payment/gatewayrpc"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
)

func authorize(t *testing.T, s *Server, nonce, amount string) (gatewayrpc.AuthorizeResponse, error) {
	t.Helper()
	out, err := s.Authorize(context.Background(), gatewayrpc.AuthorizeRequest{Nonce: nonce, Amount: amount}.ToStruct())
	if err != nil {
		return gatewayrpc.AuthorizeResponse{}, err
	}
	return gatewayrpc.AuthorizeResponseFrom(out), nil
}

func TestAuthorize_Success(t *testing.T) {
	s := NewServer(nil, decimal.NewFromInt(500))

	resp, err := authorize(t, s, "fake-valid-nonce", "20.00")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.TransactionID)
	assert.Equal(t, "20.00", resp.Amount)
}

func TestAuthorize_Declines(t *testing.T) {
	s := NewServer(nil, decimal.NewFromInt(500))

	resp, err := authorize(t, s, DeclinedNonce, "10.00")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Processor Declined", resp.Message)

	resp, err = authorize(t, s, "another-nonce", "500.01")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.TransactionID)
}

func TestAuthorize_InvalidInput(t *testing.T) {
	s := NewServer(nil, decimal.NewFromInt(500))

	_, err := authorize(t, s, "", "10.00")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = authorize(t, s, "n", "-1")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAuthorize_SpentNonceInMemory(t *testing.T) {
	s := NewServer(nil, decimal.NewFromInt(500))

	_, err := authorize(t, s, "once", "10.00")
	require.NoError(t, err)

	_, err = authorize(t, s, "once", "10.00")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestAuthorize_SpentNonceInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "payment")
	s := NewServer(c, decimal.NewFromInt(500))

	resp, err := authorize(t, s, "once", "10.00")
	require.NoError(t, err)
	assert.True(t, mr.Exists("payment:nonce:once"))
	stored, _ := mr.Get("payment:nonce:once")
	assert.Equal(t, resp.TransactionID, stored)

	_, err = authorize(t, NewServer(c, decimal.NewFromInt(500)), "once", "10.00")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestAuthorize_CacheDownIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "payment")
	mr.Close()

	_, err := authorize(t, NewServer(c, decimal.NewFromInt(500)), "n", "10.00")
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestClientToken(t *testing.T) {
	out, err := NewServer(nil, decimal.NewFromInt(500)).ClientToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, gatewayrpc.StringField(out, gatewayrpc.FieldClientToken), "sandbox_")
}
