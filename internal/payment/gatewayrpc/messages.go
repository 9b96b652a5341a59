package gatewayrpc

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names shared by client and server.
const (
	FieldNonce         = "nonce"
	FieldAmount        = "amount"
	FieldSuccess       = "success"
	FieldTransactionID = "transaction_id"
	FieldMessage       = "message"
	FieldStatus        = "status"
	FieldClientToken   = "client_token"
)

// AuthorizeRequest carries the amount as a decimal string ("20.00") so no
// precision is lost on the wire.
type AuthorizeRequest struct {
	Nonce  string
	Amount string
}

func (r AuthorizeRequest) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldNonce:  structpb.NewStringValue(r.Nonce),
		FieldAmount: structpb.NewStringValue(r.Amount),
	}}
}

func AuthorizeRequestFrom(s *structpb.Struct) AuthorizeRequest {
	return AuthorizeRequest{
		Nonce:  StringField(s, FieldNonce),
		Amount: StringField(s, FieldAmount),
	}
}

type AuthorizeResponse struct {
	Success       bool
	TransactionID string
	Amount        string
	Status        string
	Message       string
}

func (r AuthorizeResponse) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSuccess:       structpb.NewBoolValue(r.Success),
		FieldTransactionID: structpb.NewStringValue(r.TransactionID),
		FieldAmount:        structpb.NewStringValue(r.Amount),
		FieldStatus:        structpb.NewStringValue(r.Status),
		FieldMessage:       structpb.NewStringValue(r.Message),
	}}
}

func AuthorizeResponseFrom(s *structpb.Struct) AuthorizeResponse {
	return AuthorizeResponse{
		Success:       BoolField(s, FieldSuccess),
		TransactionID: StringField(s, FieldTransactionID),
		Amount:        StringField(s, FieldAmount),
		Status:        StringField(s, FieldStatus),
		Message:       StringField(s, FieldMessage),
	}
}

func StringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func BoolField(s *structpb.Struct, key string) bool {
	if s == nil {
		return false
	}
	return s.GetFields()[key].GetBoolValue()
}
