package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/zerowaste/constants"
	"github.com/joseph-ayodele/zerowaste/internal/async"
	"github.com/joseph-ayodele/zerowaste/internal/export"
	"github.com/joseph-ayodele/zerowaste/internal/llm"
	"github.com/joseph-ayodele/zerowaste/internal/planner"
	"github.com/joseph-ayodele/zerowaste/internal/repository"
	"github.com/joseph-ayodele/zerowaste/internal/services/household"
)

// taskModel answers each task with a canned reply and records the keys it saw.
type taskModel struct {
	mu      sync.Mutex
	replies map[constants.Task]string
	keys    []string
}

func (m *taskModel) Invoke(_ context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, req.APIKey)
	return m.replies[req.Task], nil
}

func (m *taskModel) seenKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

func startServer(t *testing.T, model *taskModel, defaultKey string) *grpc.ClientConn {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	drv, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "srv.db")}, logger)
	require.NoError(t, err)
	store, err := repository.NewSQLStore(ctx, drv, logger)
	require.NoError(t, err)

	p := planner.NewService(model, planner.Config{Model: "test-model", DefaultKey: defaultKey, CallTimeout: time.Second}, logger)
	hs := household.NewService(p, repository.NewHouseholdRepository(store, logger), logger)
	queue := async.NewScanQueue(hs, logger, async.WithWorkers(1))

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogging(logger)))
	Register(gs, NewPlannerServer(hs, p, queue, export.NewService(hs, logger), logger))
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
		queue.Shutdown(context.Background())
		_ = store.Close()
	})
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func withKey(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), APIKeyHeader, key)
}

func TestSaveFamilyDataOverGRPC(t *testing.T) {
	model := &taskModel{replies: map[constants.Task]string{
		constants.TaskFamilyRecommendations: "```json\n{\"recommendations\":[\"Cook once, eat twice\"]}\n```",
	}}
	conn := startServer(t, model, "")

	out, err := call(t, conn, withKey("sk-caller"), "SaveFamilyData", map[string]any{
		"household":        "home",
		"members":          []any{map[string]any{"type": "adult", "count": 2}},
		"restrictions":     []any{map[string]any{"name": "vegetarian", "active": true}},
		"prohibitedDishes": []any{"liver"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"Cook once, eat twice"}, out["recommendations"])
	assert.Equal(t, false, out["degraded"])
	assert.Equal(t, []string{"sk-caller"}, model.seenKeys())
}

func TestMissingKeyIsFailedPrecondition(t *testing.T) {
	conn := startServer(t, &taskModel{}, "")

	_, err := call(t, conn, context.Background(), "Ask", map[string]any{"question": "What can I cook?"})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestDefaultKeyUsedWithoutHeader(t *testing.T) {
	model := &taskModel{replies: map[constants.Task]string{
		constants.TaskAsk: `Sure! {"response":"Freeze the bread"}`,
	}}
	conn := startServer(t, model, "sk-default")

	out, err := call(t, conn, context.Background(), "Ask", map[string]any{"question": "  Stale bread?  "})
	require.NoError(t, err)
	assert.Equal(t, "Freeze the bread", out["response"])
	assert.Equal(t, []string{"sk-default"}, model.seenKeys())
}

func TestDegradedMenuOverGRPC(t *testing.T) {
	model := &taskModel{replies: map[constants.Task]string{
		constants.TaskWeeklyMenu: "I cannot plan this week.",
	}}
	conn := startServer(t, model, "sk-default")

	out, err := call(t, conn, context.Background(), "GenerateMenu", map[string]any{"household": "home"})
	require.NoError(t, err)
	assert.Equal(t, true, out["degraded"])
	assert.NotEmpty(t, out["reason"])
	assert.Equal(t, []any{}, out["weeklyMenu"])
	assert.Equal(t, false, out["complete"])
}

func TestErrorCodesOverGRPC(t *testing.T) {
	conn := startServer(t, &taskModel{}, "sk-default")
	ctx := context.Background()

	_, err := call(t, conn, ctx, "SaveLeftovers", map[string]any{"household": ""})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, conn, ctx, "GenerateShoppingList", map[string]any{"household": "home"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = call(t, conn, ctx, "GetReceiptJob", map[string]any{"jobId": "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = call(t, conn, ctx, "SubmitReceipt", map[string]any{"household": "home"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, conn, ctx, "SaveProducts", map[string]any{"household": "home", "products": "not a list"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSubmitReceiptJobCompletes(t *testing.T) {
	model := &taskModel{replies: map[constants.Task]string{
		constants.TaskReceipt: `{"merchant":"Market","confidence":0.9,"lineItems":[{"name":"Manzana","qty":3,"total":1.2}]}`,
	}}
	conn := startServer(t, model, "sk-default")
	ctx := context.Background()

	out, err := call(t, conn, ctx, "SubmitReceipt", map[string]any{
		"household": "home",
		"image":     "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAIAAACQd1Pe",
	})
	require.NoError(t, err)
	jobID, _ := out["jobId"].(string)
	require.NotEmpty(t, jobID)

	var job map[string]any
	require.Eventually(t, func() bool {
		job, err = call(t, conn, ctx, "GetReceiptJob", map[string]any{"jobId": jobID})
		return err == nil && (job["state"] == "DONE" || job["state"] == "FAILED")
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, "DONE", job["state"], "job error: %v", job["error"])

	result := job["result"].(map[string]any)
	products := result["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, "Manzana", products[0].(map[string]any)["name"])
}

func TestExportWorkbookOverGRPC(t *testing.T) {
	conn := startServer(t, &taskModel{}, "sk-default")

	out, err := call(t, conn, context.Background(), "ExportWorkbook", map[string]any{"household": "home"})
	require.NoError(t, err)
	assert.Regexp(t, `^zerowaste-\d{4}-\d{2}-\d{2}\.xlsx$`, out["filename"])
	assert.NotEmpty(t, out["workbook"])
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	conn := startServer(t, &taskModel{}, "sk-default")
	in, err := structpb.NewStruct(map[string]any{"household": "home"})
	require.NoError(t, err)

	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDHeader, "req-42")
	var header metadata.MD
	require.NoError(t, conn.Invoke(ctx, "/"+ServiceName+"/ExportWorkbook", in, new(structpb.Struct), grpc.Header(&header)))
	assert.Equal(t, []string{"req-42"}, header.Get(requestIDHeader))
}
