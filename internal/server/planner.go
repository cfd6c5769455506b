package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/zerowaste/internal/async"
	"github.com/joseph-ayodele/zerowaste/internal/common"
	"github.com/joseph-ayodele/zerowaste/internal/entity"
	"github.com/joseph-ayodele/zerowaste/internal/export"
	"github.com/joseph-ayodele/zerowaste/internal/planner"
	"github.com/joseph-ayodele/zerowaste/internal/services/household"
)

const ServiceName = "zerowaste.v1.PlannerService"

// APIKeyHeader carries a caller's own provider key.
const APIKeyHeader = "x-api-key"

// PlannerService is the handler type registered with the gRPC server.
type PlannerService interface {
	plannerService()
}

// PlannerServer serves the household planner over gRPC. Every message is a
// google.protobuf.Struct holding the JSON shape of the request or response.
type PlannerServer struct {
	households *household.Service
	planner    *planner.Service
	queue      *async.ScanQueue
	exporter   *export.Service
	logger     *slog.Logger
}

func NewPlannerServer(h *household.Service, p *planner.Service, q *async.ScanQueue, e *export.Service, logger *slog.Logger) *PlannerServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlannerServer{households: h, planner: p, queue: q, exporter: e, logger: logger}
}

func (s *PlannerServer) plannerService() {}

// Register adds the planner service to a gRPC server.
func Register(gs grpc.ServiceRegistrar, s *PlannerServer) {
	gs.RegisterService(&ServiceDesc, s)
}

func apiKeyFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(APIKeyHeader); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func degradation(r household.Result) Degradation {
	return Degradation{Degraded: r.Degraded, Reason: r.Reason}
}

func (s *PlannerServer) saveFamilyData(ctx context.Context, req FamilyRequest) (any, error) {
	prohibited := make([]entity.ProhibitedDish, 0, len(req.Prohibited))
	for _, p := range req.Prohibited {
		prohibited = append(prohibited, entity.ProhibitedDish{Name: p})
	}
	recs, res, err := s.households.SaveFamilyData(ctx, req.Household, household.FamilyInput{
		Members:      req.Members,
		Restrictions: req.Restrictions,
		Prohibited:   prohibited,
	}, apiKeyFrom(ctx))
	if err != nil {
		return nil, err
	}
	return RecommendationsResponse{Recommendations: nonNil(recs), Degradation: degradation(res)}, nil
}

func (s *PlannerServer) saveLeftovers(ctx context.Context, req LeftoversRequest) (any, error) {
	recs, res, err := s.households.SaveLeftovers(ctx, req.Household, req.Leftovers, apiKeyFrom(ctx))
	if err != nil {
		return nil, err
	}
	return RecommendationsResponse{Recommendations: nonNil(recs), Degradation: degradation(res)}, nil
}

func (s *PlannerServer) saveProducts(ctx context.Context, req ProductsRequest) (any, error) {
	if err := s.households.SaveValidatedProducts(ctx, req.Household, req.Products); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

func receiptResponse(r household.ReceiptResult) *ReceiptResponse {
	return &ReceiptResponse{Receipt: r.Receipt, Products: r.Products, Degradation: degradation(r.Result)}
}

func (s *PlannerServer) processReceipt(ctx context.Context, req ReceiptRequest) (any, error) {
	res, err := s.households.ProcessReceipt(ctx, req.Household, req.Image, apiKeyFrom(ctx))
	if err != nil {
		return nil, err
	}
	return receiptResponse(res), nil
}

func (s *PlannerServer) submitReceipt(ctx context.Context, req ReceiptRequest) (any, error) {
	if strings.TrimSpace(req.Household) == "" || strings.TrimSpace(req.Image) == "" {
		return nil, fmt.Errorf("%w: household and image are required", common.ErrInvalidInput)
	}
	id, err := s.queue.Enqueue(ctx, async.Job{Household: req.Household, Image: req.Image, APIKey: apiKeyFrom(ctx)})
	if err != nil {
		return nil, err
	}
	return SubmitReceiptResponse{JobID: id}, nil
}

func (s *PlannerServer) getReceiptJob(_ context.Context, req JobRequest) (any, error) {
	st, err := s.queue.Status(req.JobID)
	if errors.Is(err, async.ErrJobNotFound) {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, req.JobID)
	}
	if err != nil {
		return nil, err
	}
	out := JobResponse{JobID: st.ID, State: string(st.State), Error: st.Error}
	if st.Result != nil {
		out.Result = receiptResponse(*st.Result)
	}
	return out, nil
}

func (s *PlannerServer) generateMenu(ctx context.Context, req HouseholdRequest) (any, error) {
	plan, res, err := s.households.GenerateMenu(ctx, req.Household, apiKeyFrom(ctx))
	if err != nil {
		return nil, err
	}
	days := plan.WeeklyMenu
	if days == nil {
		days = []entity.DayPlan{}
	}
	return MenuResponse{WeeklyMenu: days, Complete: plan.IsComplete(), Degradation: degradation(res)}, nil
}

func (s *PlannerServer) generateMetrics(ctx context.Context, req HouseholdRequest) (any, error) {
	report, res, err := s.households.GenerateMetrics(ctx, req.Household, apiKeyFrom(ctx))
	if err != nil {
		return nil, err
	}
	return MetricsResponse{Metrics: report.Metrics, Recommendations: nonNil(report.Recommendations), Degradation: degradation(res)}, nil
}

func (s *PlannerServer) generateShoppingList(ctx context.Context, req HouseholdRequest) (any, error) {
	items, err := s.households.GenerateShoppingList(ctx, req.Household)
	if err != nil {
		return nil, err
	}
	return ShoppingResponse{Items: items}, nil
}

func (s *PlannerServer) updateShoppingItem(ctx context.Context, req UpdateItemRequest) (any, error) {
	item, err := s.households.UpdateShoppingItem(ctx, req.Household, req.ItemID, req.Purchased)
	if err != nil {
		return nil, err
	}
	return ItemResponse{Item: item}, nil
}

func (s *PlannerServer) exportWorkbook(ctx context.Context, req HouseholdRequest) (any, error) {
	xlsx, err := s.exporter.ExportHouseholdXLSX(ctx, req.Household)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "household", req.Household, "err", err)
		return nil, err
	}
	return ExportResponse{Filename: "zerowaste-" + time.Now().UTC().Format("2006-01-02") + ".xlsx", Workbook: xlsx}, nil
}

func (s *PlannerServer) ask(ctx context.Context, req AskRequest) (any, error) {
	out, err := s.planner.Ask(ctx, strings.TrimSpace(req.Question), apiKeyFrom(ctx))
	if err != nil {
		return nil, err
	}
	return AskResponse{Response: out.Value.Response, Degradation: Degradation{Degraded: out.Degraded(), Reason: out.Reason}}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// unary adapts a typed method to a grpc.MethodDesc over Struct messages.
func unary[Req any](name string, call func(*PlannerServer, context.Context, Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, msg any) (any, error) {
				req, err := decodeStruct[Req](msg.(*structpb.Struct))
				if err != nil {
					return nil, common.ToStatus(err)
				}
				out, err := call(srv.(*PlannerServer), ctx, req)
				if err != nil {
					return nil, common.ToStatus(err)
				}
				resp, err := encodeStruct(out)
				if err != nil {
					return nil, common.InternalError(err.Error())
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlannerService)(nil),
	Methods: []grpc.MethodDesc{
		unary("SaveFamilyData", (*PlannerServer).saveFamilyData),
		unary("SaveLeftovers", (*PlannerServer).saveLeftovers),
		unary("SaveProducts", (*PlannerServer).saveProducts),
		unary("ProcessReceipt", (*PlannerServer).processReceipt),
		unary("SubmitReceipt", (*PlannerServer).submitReceipt),
		unary("GetReceiptJob", (*PlannerServer).getReceiptJob),
		unary("GenerateMenu", (*PlannerServer).generateMenu),
		unary("GenerateMetrics", (*PlannerServer).generateMetrics),
		unary("GenerateShoppingList", (*PlannerServer).generateShoppingList),
		unary("UpdateShoppingItem", (*PlannerServer).updateShoppingItem),
		unary("ExportWorkbook", (*PlannerServer).exportWorkbook),
		unary("Ask", (*PlannerServer).ask),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zerowaste/v1/planner.proto",
}
