package api

import (
	"context"
	"strings"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	AvailabilityServiceName = "studio.availability.v1.AvailabilityService"
	ListSlotsMethod         = "/" + AvailabilityServiceName + "/ListSlots"
)

// AvailabilityServer answers slot queries. Messages are google.protobuf.Struct:
// request {"date": "YYYY-MM-DD"}, response {"date": ..., "slots": [{"time", "taken"}]}.
type AvailabilityServer interface {
	ListSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: AvailabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSlots", Handler: listSlotsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studio/availability/v1/availability.proto",
}

func listSlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).ListSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListSlotsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).ListSlots(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterAvailabilityServer attaches srv to s.
func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

type AvailabilityService struct {
	store domain.DocumentStore
}

func NewAvailabilityService(store domain.DocumentStore) *AvailabilityService {
	return &AvailabilityService{store: store}
}

func (s *AvailabilityService) ListSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dateStr := strings.TrimSpace(req.GetFields()["date"].GetStringValue())
	if dateStr == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}
	if _, err := time.Parse(models.DateLayout, dateStr); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid date format; expected YYYY-MM-DD")
	}

	slots, err := appointments.Slots(ctx, s.store, dateStr)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to list slots")
	}

	list := make([]any, 0, len(slots))
	for _, slot := range slots {
		list = append(list, map[string]any{"time": slot.Time, "taken": slot.Taken})
	}
	resp, err := structpb.NewStruct(map[string]any{"date": dateStr, "slots": list})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode slots")
	}
	return resp, nil
}
