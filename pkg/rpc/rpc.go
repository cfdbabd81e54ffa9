// Package rpc serves gRPC services whose messages are google.protobuf.Struct,
// so handlers can be registered without generated stubs.
package rpc

import (
	"context"
	"fmt"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type StructHandler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Method builds the descriptor for one unary method. pick resolves the
// handler on the registered server value.
func Method(service, name string, pick func(srv interface{}) StructHandler) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := pick(srv)
			if interceptor == nil {
				return h(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return h(ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ToStruct converts v through its JSON form.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func String(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// Int reads a whole number. An absent or null key yields 0; fractions,
// non-numbers and values outside the int range are errors.
func Int(req *structpb.Struct, key string) (int, error) {
	if !Has(req, key) {
		return 0, nil
	}
	v, ok := req.GetFields()[key].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s: expected a number", key)
	}
	n := v.NumberValue
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return 0, fmt.Errorf("%s: expected a whole number, got %v", key, n)
	}
	if n < math.MinInt || n >= math.MaxInt {
		return 0, fmt.Errorf("%s: %v is out of range", key, n)
	}
	return int(n), nil
}

// Page reads the "page" and "page_size" fields.
func Page(req *structpb.Struct) (page, size int, err error) {
	if page, err = Int(req, "page"); err != nil {
		return 0, 0, err
	}
	if size, err = Int(req, "page_size"); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func Bool(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

// Has reports whether key is present and not null.
func Has(req *structpb.Struct, key string) bool {
	v, ok := req.GetFields()[key]
	if !ok {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

// Time accepts RFC 3339 timestamps and plain dates. An absent key yields the
// zero time.
func Time(req *structpb.Struct, key string) (time.Time, error) {
	raw := String(req, key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected RFC 3339 time or YYYY-MM-DD date", key)
	}
	return t, nil
}

// Date reads a calendar date. Timestamps keep the day of their own offset,
// so 2026-05-02T01:00:00+07:00 is May 2. The result is midnight UTC.
func Date(req *structpb.Struct, key string) (time.Time, error) {
	t, err := Time(req, key)
	if err != nil || t.IsZero() {
		return t, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
