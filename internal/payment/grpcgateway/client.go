// Package grpcgateway adapts the remote payment gateway to ports.PaymentGateway.
//
// Retry policy, per outcome of a single Authorize call (there is never an
// automatic retry):
//
//	success=true with a transaction id   -> receipt returned
//	success=false                        -> *domain.PaymentDeclinedError
//	DeadlineExceeded, Canceled,
//	Unavailable, Unknown, Internal,
//	DataLoss, or success without an id   -> domain.ErrPaymentStatusUnknown
//	any other gRPC status                -> *domain.PaymentDeclinedError
package grpcgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/payment/gatewayrpc"
	"github.com/jcmexdev/storefront/internal/pkg/interceptors"
)

const DefaultTimeout = 10 * time.Second

var _ ports.PaymentGateway = (*Client)(nil)

type Client struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

func New(conn grpc.ClientConnInterface, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{conn: conn, timeout: timeout}
}

// Dial opens an instrumented connection to the gateway. The caller closes
// the returned connection.
func Dial(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(interceptors.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("grpcgateway: connect to %s: %w", addr, err)
	}
	return New(conn, timeout), conn, nil
}

func (c *Client) RequestClientToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, gatewayrpc.ClientTokenMethod, &structpb.Struct{}, out); err != nil {
		return "", fmt.Errorf("grpcgateway: client token: %w", err)
	}
	token := gatewayrpc.StringField(out, gatewayrpc.FieldClientToken)
	if token == "" {
		return "", errors.New("grpcgateway: gateway returned an empty client token")
	}
	return token, nil
}

// Authorize makes exactly one call to the gateway, bounded by the client
// timeout. Amounts travel as two-decimal strings.
func (c *Client) Authorize(ctx context.Context, nonce string, amount decimal.Decimal) (*domain.TransactionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := gatewayrpc.AuthorizeRequest{Nonce: nonce, Amount: amount.StringFixed(2)}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, gatewayrpc.AuthorizeMethod, req.ToStruct(), out); err != nil {
		return nil, classify(ctx, err)
	}

	resp := gatewayrpc.AuthorizeResponseFrom(out)
	if !resp.Success {
		slog.WarnContext(ctx, "payment declined", "status", resp.Status, "message", resp.Message)
		return nil, &domain.PaymentDeclinedError{Reason: resp.Message}
	}
	if resp.TransactionID == "" {
		slog.ErrorContext(ctx, "gateway reported success without a transaction id")
		return nil, fmt.Errorf("%w: success without transaction id", domain.ErrPaymentStatusUnknown)
	}

	settled, err := decimal.NewFromString(resp.Amount)
	if err != nil {
		settled = amount
	}
	raw, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("grpcgateway: encode receipt: %w", err)
	}

	return &domain.TransactionResult{
		Success:       true,
		TransactionID: resp.TransactionID,
		Amount:        settled,
		Message:       resp.Message,
		Raw:           raw,
	}, nil
}

func classify(ctx context.Context, err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.DeadlineExceeded, codes.Canceled, codes.Unavailable, codes.Unknown, codes.Internal, codes.DataLoss:
		slog.ErrorContext(ctx, "payment status unknown", "code", st.Code().String(), "error", st.Message())
		return fmt.Errorf("%w: %s", domain.ErrPaymentStatusUnknown, st.Code())
	default:
		slog.WarnContext(ctx, "payment rejected by gateway", "code", st.Code().String(), "error", st.Message())
		return &domain.PaymentDeclinedError{Reason: st.Message()}
	}
}
