package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/hivewatch/internal/dashboard"
	"github.com/joshp123/hivewatch/internal/server"
	"github.com/joshp123/hivewatch/internal/telemetry"
)

const defaultAddr = "localhost:9000"

func main() {
	flags := pflag.NewFlagSet("hivewatch-cli", pflag.ExitOnError)
	flags.Usage = usage
	addrFlag := flags.String("addr", "", "daemon gRPC address (default $HIVEWATCH_CLI_ADDR or "+defaultAddr+")")
	jsonOutput := flags.Bool("json", false, "print raw JSON responses")
	timeout := flags.Duration("timeout", 10*time.Second, "request timeout")
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	addr := *addrFlag
	if addr == "" {
		addr = envOrDefault("HIVEWATCH_CLI_ADDR", defaultAddr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	out := outputMode{json: *jsonOutput}
	switch args[0] {
	case "devices":
		devicesCmd(ctx, conn, out, dashboard.MethodListDevices)
	case "refresh":
		devicesCmd(ctx, conn, out, dashboard.MethodRefreshDevices)
	case "select":
		selectCmd(ctx, conn, out, args[1:])
	case "selection":
		selectionCmd(ctx, conn, out)
	case "snapshot":
		snapshotCmd(ctx, conn, out)
	case "latest":
		latestCmd(ctx, conn, out)
	case "status":
		statusCmd(ctx, conn, out)
	case "health":
		healthCmd(ctx, conn)
	case "services":
		servicesCmd(ctx, conn)
	default:
		usage()
		os.Exit(2)
	}
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, req *structpb.Struct) *structpb.Struct {
	resp := &structpb.Struct{}
	var err error
	if req == nil {
		err = conn.Invoke(ctx, method, &emptypb.Empty{}, resp)
	} else {
		err = conn.Invoke(ctx, method, req, resp)
	}
	if err != nil {
		fatal(method, err)
	}
	return resp
}

func devicesCmd(ctx context.Context, conn *grpc.ClientConn, out outputMode, method string) {
	resp := invoke(ctx, conn, method, nil)
	if out.json {
		out.printJSON(resp)
		return
	}
	devices := decodeDevices(resp.GetFields()["devices"])
	rows := [][]string{{"DEVICE", "NAME", "LOCATION"}}
	for _, d := range devices {
		rows = append(rows, []string{d.DeviceID, d.DisplayName(), d.DisplayLocation()})
	}
	out.table(rows)
}

func selectCmd(ctx context.Context, conn *grpc.ClientConn, out outputMode, args []string) {
	if len(args) < 1 {
		fatal("select", fmt.Errorf("missing device id or name"))
	}
	devices := decodeDevices(invoke(ctx, conn, dashboard.MethodListDevices, nil).GetFields()["devices"])
	deviceID, err := resolveDevice(args[0], devices)
	if err != nil {
		fatal("select", err)
	}

	req, err := structpb.NewStruct(map[string]any{"device_id": deviceID})
	if err != nil {
		fatal("select", err)
	}
	resp := invoke(ctx, conn, dashboard.MethodSelectDevice, req)
	if out.json {
		out.printJSON(resp)
		return
	}
	var device telemetry.Device
	decodeValue(resp.GetFields()["device"], &device)
	fmt.Printf("selected %s (%s, %s)\n", device.DeviceID, device.DisplayName(), device.DisplayLocation())
}

func selectionCmd(ctx context.Context, conn *grpc.ClientConn, out outputMode) {
	resp := invoke(ctx, conn, dashboard.MethodGetSelection, nil)
	if out.json {
		out.printJSON(resp)
		return
	}
	if !resp.GetFields()["selected"].GetBoolValue() {
		fmt.Println("no hive selected")
		return
	}
	var device telemetry.Device
	decodeValue(resp.GetFields()["device"], &device)
	out.table([][]string{
		{"device", device.DeviceID},
		{"name", device.DisplayName()},
		{"location", device.DisplayLocation()},
	})
}

func snapshotCmd(ctx context.Context, conn *grpc.ClientConn, out outputMode) {
	resp := invoke(ctx, conn, dashboard.MethodGetSnapshot, nil)
	if out.json {
		out.printJSON(resp)
		return
	}
	var readings []telemetry.Reading
	decodeValue(resp.GetFields()["readings"], &readings)

	fmt.Printf("%s: %s, %d readings\n", resp.GetFields()["device_id"].GetStringValue(), dashboard.StatusValue(resp), len(readings))
	header := []string{"TIME"}
	for _, m := range (telemetry.Reading{}).Metrics() {
		header = append(header, m.Label)
	}
	rows := [][]string{header}
	for _, r := range readings {
		row := []string{r.Time.Local().Format(time.DateTime)}
		for _, m := range r.Metrics() {
			row = append(row, telemetry.FormatValue(m.Value, m.Unit))
		}
		rows = append(rows, row)
	}
	out.table(rows)
}

func latestCmd(ctx context.Context, conn *grpc.ClientConn, out outputMode) {
	resp := invoke(ctx, conn, dashboard.MethodGetLatest, nil)
	if out.json {
		out.printJSON(resp)
		return
	}
	var reading telemetry.Reading
	decodeValue(resp.GetFields()["reading"], &reading)
	rows := [][]string{{"Time", reading.Time.Local().Format(time.DateTime)}}
	for _, m := range reading.Metrics() {
		rows = append(rows, []string{m.Label, telemetry.FormatValue(m.Value, m.Unit)})
	}
	out.table(rows)
}

func statusCmd(ctx context.Context, conn *grpc.ClientConn, out outputMode) {
	resp := invoke(ctx, conn, dashboard.MethodGetStatus, nil)
	if out.json {
		out.printJSON(resp)
		return
	}
	fields := resp.GetFields()
	rows := [][]string{
		{"status", string(dashboard.StatusValue(resp))},
		{"state", fields["state"].GetStringValue()},
		{"device", fields["device_id"].GetStringValue()},
		{"window", fmt.Sprintf("%.0f/%d", fields["window"].GetNumberValue(), telemetry.WindowCapacity)},
	}
	stats := fields["stats"].GetStructValue().GetFields()
	for _, key := range []string{"readings", "pings", "malformed", "errors", "stale", "history_loads", "history_failures", "history_discarded", "evicted"} {
		rows = append(rows, []string{key, fmt.Sprintf("%.0f", stats[key].GetNumberValue())})
	}
	out.table(rows)
}

func healthCmd(ctx context.Context, conn *grpc.ClientConn) {
	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: server.FeedHealthService})
	if err != nil {
		fatal("health", err)
	}
	fmt.Printf("%s\t%s\n", server.FeedHealthService, resp.GetStatus())
}

func servicesCmd(ctx context.Context, conn *grpc.ClientConn) {
	client := grpcreflect.NewClientAuto(ctx, conn)
	defer client.Reset()
	services, err := grpcurl.ListServices(grpcurl.DescriptorSourceFromServer(ctx, client))
	if err != nil {
		fatal("list services", err)
	}
	for _, service := range services {
		fmt.Println(service)
	}
}

func decodeDevices(value *structpb.Value) []telemetry.Device {
	var devices []telemetry.Device
	decodeValue(value, &devices)
	return devices
}

// decodeValue converts a struct value into the JSON shape the telemetry types
// already decode.
func decodeValue(value *structpb.Value, dest any) {
	if value == nil {
		return
	}
	data, err := protojson.Marshal(value)
	if err != nil {
		fatal("decode response", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		fatal("decode response", err)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func usage() {
	fmt.Println("hivewatch-cli [--addr host:port] [--json] <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  devices              list known hives")
	fmt.Println("  refresh              reload hives from the backend")
	fmt.Println("  select <id|name>     show a hive")
	fmt.Println("  selection            show the selected hive")
	fmt.Println("  snapshot             readings in the telemetry window")
	fmt.Println("  latest               newest reading")
	fmt.Println("  status               live feed status and counters")
	fmt.Println("  health               feed health check")
	fmt.Println("  services             list gRPC services")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
