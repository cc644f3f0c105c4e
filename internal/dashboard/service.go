package dashboard

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/hivewatch/internal/livefeed"
	"github.com/joshp123/hivewatch/internal/telemetry"
)

// ServiceName is the fully qualified gRPC name of the dashboard service.
const ServiceName = "hivewatch.dashboard.v1.Dashboard"

// Full method names, as used by clients.
const (
	MethodListDevices    = "/" + ServiceName + "/ListDevices"
	MethodRefreshDevices = "/" + ServiceName + "/RefreshDevices"
	MethodGetSelection   = "/" + ServiceName + "/GetSelection"
	MethodSelectDevice   = "/" + ServiceName + "/SelectDevice"
	MethodGetSnapshot    = "/" + ServiceName + "/GetSnapshot"
	MethodGetLatest      = "/" + ServiceName + "/GetLatest"
	MethodGetStatus      = "/" + ServiceName + "/GetStatus"
)

// DashboardServer is the presentation surface over a Coordinator.
type DashboardServer interface {
	ListDevices(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	RefreshDevices(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSelection(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SelectDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetLatest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DashboardServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDevices", Handler: unary(MethodListDevices, newEmpty, DashboardServer.ListDevices)},
		{MethodName: "RefreshDevices", Handler: unary(MethodRefreshDevices, newEmpty, DashboardServer.RefreshDevices)},
		{MethodName: "GetSelection", Handler: unary(MethodGetSelection, newEmpty, DashboardServer.GetSelection)},
		{MethodName: "SelectDevice", Handler: unary(MethodSelectDevice, newStruct, DashboardServer.SelectDevice)},
		{MethodName: "GetSnapshot", Handler: unary(MethodGetSnapshot, newEmpty, DashboardServer.GetSnapshot)},
		{MethodName: "GetLatest", Handler: unary(MethodGetLatest, newEmpty, DashboardServer.GetLatest)},
		{MethodName: "GetStatus", Handler: unary(MethodGetStatus, newEmpty, DashboardServer.GetStatus)},
	},
	Streams: []grpc.StreamDesc{},
}

func newEmpty() *emptypb.Empty    { return &emptypb.Empty{} }
func newStruct() *structpb.Struct { return &structpb.Struct{} }

func unary[Req proto.Message](fullMethod string, newReq func() Req, call func(DashboardServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DashboardServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(DashboardServer), ctx, req.(Req))
		})
	}
}

// RegisterDashboardService exposes coord on server.
func RegisterDashboardService(server grpc.ServiceRegistrar, coord *Coordinator) {
	server.RegisterService(&serviceDesc, &service{coord: coord})
}

type service struct {
	coord *Coordinator
}

func (s *service) ListDevices(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]any{"devices": devicesValue(s.coord.Devices())})
}

func (s *service) RefreshDevices(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	devices, err := s.coord.RefreshDevices(ctx)
	if err != nil {
		return nil, toStatus("refresh devices", err)
	}
	return toStruct(map[string]any{"devices": devicesValue(devices)})
}

func (s *service) GetSelection(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	device, ok := s.coord.Selection()
	fields := map[string]any{"selected": ok}
	if ok {
		fields["device"] = deviceFields(device)
	}
	return toStruct(fields)
}

func (s *service) SelectDevice(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID := req.GetFields()["device_id"].GetStringValue()
	if deviceID == "" {
		return nil, status.Error(codes.InvalidArgument, "device_id is required")
	}
	device, err := s.coord.SelectDeviceByID(deviceID)
	if err != nil {
		return nil, toStatus("select device", err)
	}
	return toStruct(map[string]any{"device": deviceFields(device)})
}

func (s *service) GetSnapshot(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	view := s.coord.View()
	values := make([]any, 0, len(view.Readings))
	for _, r := range view.Readings {
		values = append(values, readingFields(r))
	}
	fields := map[string]any{
		"status":   string(view.Status),
		"readings": values,
	}
	if view.Device != nil {
		fields["device_id"] = view.Device.DeviceID
	}
	return toStruct(fields)
}

func (s *service) GetLatest(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	latest, ok := s.coord.Latest()
	if !ok {
		return nil, status.Error(codes.NotFound, "no readings yet")
	}
	return toStruct(map[string]any{"reading": readingFields(latest)})
}

func (s *service) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	view := s.coord.View()
	stats := s.coord.Stats()
	fields := map[string]any{
		"status": string(view.Status),
		"state":  view.State.String(),
		"window": len(view.Readings),
		"stats": map[string]any{
			"readings":          stats.Feed.Readings,
			"pings":             stats.Feed.Pings,
			"malformed":         stats.Feed.Malformed,
			"errors":            stats.Feed.Errors,
			"stale":             stats.Feed.Stale,
			"history_loads":     stats.HistoryLoads,
			"history_failures":  stats.HistoryFailures,
			"history_discarded": stats.HistoryDiscarded,
			"evicted":           stats.Evicted,
		},
	}
	if view.Device != nil {
		fields["device_id"] = view.Device.DeviceID
	}
	return toStruct(fields)
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, ErrClosed):
		return status.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Errorf(codes.Unavailable, "%s: %v", op, err)
	}
}

func devicesValue(devices []telemetry.Device) []any {
	out := make([]any, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceFields(d))
	}
	return out
}

func deviceFields(d telemetry.Device) map[string]any {
	return map[string]any{
		"id":               string(d.ID),
		"device_id":        d.DeviceID,
		"name":             optionalString(d.Name),
		"location":         optionalString(d.Location),
		"display_name":     d.DisplayName(),
		"display_location": d.DisplayLocation(),
	}
}

func readingFields(r telemetry.Reading) map[string]any {
	fields := map[string]any{
		"time":        r.Time.UTC().Format(time.RFC3339Nano),
		"temperature": optionalFloat(r.Temperature),
		"humidity":    optionalFloat(r.Humidity),
		"weight":      optionalFloat(r.Weight),
		"sound_level": optionalFloat(r.SoundLevel),
	}
	if r.DeviceID != "" {
		fields["device_id"] = r.DeviceID
	}
	return fields
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// StatusValue is the feed status carried by GetStatus and GetSnapshot
// responses.
func StatusValue(resp *structpb.Struct) livefeed.Status {
	return livefeed.Status(resp.GetFields()["status"].GetStringValue())
}
