// Package sandbox is a stand-in payment gateway for local runs and tests.
// It follows the shape of a hosted tokenized-payment provider: client
// tokens are opaque, nonces are single use, and declines are answered with
// success=false rather than an RPC error.
package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jcmexdev/storefront/internal/payment/gatewayrpc"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
)

const (
	// DeclinedNonce always yields a processor decline.
	DeclinedNonce = "fake-processor-declined-visa"

	spentNonceTTL = 24 * time.Hour
)

var _ gatewayrpc.Server = (*Server)(nil)

type Server struct {
	cache        cache.Cache
	declineAbove decimal.Decimal

	mu    sync.Mutex
	spent map[string]string // nonce -> transaction id, used when cache is nil
}

// NewServer declines any authorization above declineAbove. A nil cache keeps
// spent nonces in process memory.
func NewServer(c cache.Cache, declineAbove decimal.Decimal) *Server {
	return &Server{
		cache:        c,
		declineAbove: declineAbove,
		spent:        make(map[string]string),
	}
}

func (s *Server) ClientToken(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	token := "sandbox_" + uuid.NewString()
	slog.InfoContext(ctx, "[Payment] issued client token")
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		gatewayrpc.FieldClientToken: structpb.NewStringValue(token),
	}}, nil
}

func (s *Server) Authorize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := gatewayrpc.AuthorizeRequestFrom(in)
	if req.Nonce == "" {
		return nil, status.Error(codes.InvalidArgument, "payment method nonce is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid amount %q", req.Amount)
	}

	txID := uuid.NewString()
	fresh, err := s.spend(ctx, req.Nonce, txID)
	if err != nil {
		slog.ErrorContext(ctx, "[Payment] nonce store unavailable", "error", err)
		return nil, status.Error(codes.Unavailable, "payment processor unavailable")
	}
	if !fresh {
		slog.WarnContext(ctx, "[Payment] nonce reused", "amount", req.Amount)
		return nil, status.Error(codes.FailedPrecondition, "payment method nonce has already been consumed")
	}

	slog.InfoContext(ctx, "[Payment] processing authorization", "amount", amount.StringFixed(2))

	if req.Nonce == DeclinedNonce {
		return gatewayrpc.AuthorizeResponse{
			Amount: amount.StringFixed(2), Status: "processor_declined", Message: "Processor Declined",
		}.ToStruct(), nil
	}
	if amount.GreaterThan(s.declineAbove) {
		slog.InfoContext(ctx, "[Payment] declined: amount exceeds limit", "amount", amount.StringFixed(2), "limit", s.declineAbove.StringFixed(2))
		return gatewayrpc.AuthorizeResponse{
			Amount: amount.StringFixed(2), Status: "processor_declined", Message: "Amount exceeds the card limit",
		}.ToStruct(), nil
	}

	slog.InfoContext(ctx, "[Payment] authorization successful", "transaction_id", txID)
	return gatewayrpc.AuthorizeResponse{
		Success:       true,
		TransactionID: txID,
		Amount:        amount.StringFixed(2),
		Status:        "submitted_for_settlement",
	}.ToStruct(), nil
}

// spend marks the nonce as used and reports whether it was fresh.
func (s *Server) spend(ctx context.Context, nonce, txID string) (bool, error) {
	if s.cache != nil {
		return s.cache.SetNX(ctx, s.cache.GenerateKey("nonce", nonce), txID, spentNonceTTL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.spent[nonce]; used {
		return false, nil
	}
	s.spent[nonce] = txID
	return true, nil
}
