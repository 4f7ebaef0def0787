// Package rpc serves the ledger's state-changing operations and its event
// stream over gRPC.
package rpc

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"synthledger/core/decimalmath"
	"synthledger/core/events"
	"synthledger/core/types"
	"synthledger/native/ledger"
	"synthledger/services/ledgerd/server"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "synthledger.ledger.v1.Ledger"

// Service adapts the ledger engine to gRPC.
type Service struct {
	engine *ledger.Engine
	broker *events.Broker
	logger *slog.Logger
}

// LedgerServer is the handler type registered with grpc.Server.
type LedgerServer interface {
	Engine() *ledger.Engine
}

// New constructs the service. broker may be nil, which disables
// StreamEvents.
func New(engine *ledger.Engine, broker *events.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, broker: broker, logger: logger}
}

// Engine returns the engine behind the service.
func (s *Service) Engine() *ledger.Engine { return s.engine }

// Register installs the ledger service on srv.
func Register(srv *grpc.Server, svc *Service) {
	srv.RegisterService(&ServiceDesc, svc)
}

// FullMethod returns the method path clients invoke, e.g.
// "/synthledger.ledger.v1.Ledger/Deposit".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

var empty = &emptypb.Empty{}

// readOnlyMethods may be called anonymously when the authenticator allows
// anonymous reads.
var readOnlyMethods = map[string]bool{
	FullMethod("GetPosition"):  true,
	FullMethod("StreamEvents"): true,
}

// ServiceDesc describes the ledger service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateAccount", func(s *Service, ctx context.Context, caller common.Address, req *AccountRequest) (any, error) {
			return empty, s.engine.CreateAccount(ctx, caller, req.AccountID)
		}),
		unary("GrantPermission", func(s *Service, ctx context.Context, caller common.Address, req *PermissionRequest) (any, error) {
			return empty, s.engine.GrantPermission(ctx, caller, req.AccountID, permission(req.Permission), req.Target)
		}),
		unary("RevokePermission", func(s *Service, ctx context.Context, caller common.Address, req *PermissionRequest) (any, error) {
			return empty, s.engine.RevokePermission(ctx, caller, req.AccountID, permission(req.Permission), req.Target)
		}),
		unary("Deposit", func(s *Service, ctx context.Context, caller common.Address, req *CollateralRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.Deposit(ctx, caller, req.AccountID, req.CollateralType, amount)
		}),
		unary("Withdraw", func(s *Service, ctx context.Context, caller common.Address, req *CollateralRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.Withdraw(ctx, caller, req.AccountID, req.CollateralType, amount)
		}),
		unary("DelegateCollateral", func(s *Service, ctx context.Context, caller common.Address, req *DelegateRequest) (any, error) {
			amount, leverage, err := delegation(req)
			if err != nil {
				return nil, err
			}
			if err := s.engine.DelegateCollateral(ctx, caller, req.AccountID, req.PoolID, req.CollateralType, amount, leverage); err != nil {
				return nil, err
			}
			return s.position(ctx, req.AccountID, req.PoolID, req.CollateralType)
		}),
		unary("DeclareDelegateIntent", func(s *Service, ctx context.Context, caller common.Address, req *DelegateRequest) (any, error) {
			amount, leverage, err := delegation(req)
			if err != nil {
				return nil, err
			}
			id, err := s.engine.DeclareDelegateIntent(ctx, caller, req.AccountID, req.PoolID, req.CollateralType, amount, leverage)
			if err != nil {
				return nil, err
			}
			return &IntentResponse{IntentID: id}, nil
		}),
		unary("ProcessIntents", func(s *Service, ctx context.Context, caller common.Address, req *IntentsRequest) (any, error) {
			return empty, s.engine.ProcessIntentToDelegateCollateralByIntents(ctx, caller, req.AccountID, req.IntentIDs)
		}),
		unary("DeleteExpiredIntents", func(s *Service, ctx context.Context, caller common.Address, req *IntentsRequest) (any, error) {
			return empty, s.engine.DeleteExpiredIntents(ctx, caller, req.AccountID, req.IntentIDs)
		}),
		unary("MintUsd", func(s *Service, ctx context.Context, caller common.Address, req *PositionRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			if err := s.engine.MintUsd(ctx, caller, req.AccountID, req.PoolID, req.CollateralType, amount); err != nil {
				return nil, err
			}
			return s.position(ctx, req.AccountID, req.PoolID, req.CollateralType)
		}),
		unary("BurnUsd", func(s *Service, ctx context.Context, caller common.Address, req *PositionRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			if err := s.engine.BurnUsd(ctx, caller, req.AccountID, req.PoolID, req.CollateralType, amount); err != nil {
				return nil, err
			}
			return s.position(ctx, req.AccountID, req.PoolID, req.CollateralType)
		}),
		unary("TransferUsd", func(s *Service, ctx context.Context, caller common.Address, req *TransferRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.TransferUsd(ctx, caller, req.To, amount)
		}),
		unary("Liquidate", func(s *Service, ctx context.Context, caller common.Address, req *LiquidateRequest) (any, error) {
			return empty, s.engine.Liquidate(ctx, caller, req.AccountID, req.PoolID, req.CollateralType, req.LiquidatorAccountID)
		}),
		unary("LiquidateVault", func(s *Service, ctx context.Context, caller common.Address, req *LiquidateVaultRequest) (any, error) {
			maxUsd, err := parseAmount("maxUsd", req.MaxUsd)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.LiquidateVault(ctx, caller, req.PoolID, req.CollateralType, req.LiquidatorAccountID, maxUsd)
		}),
		unary("RegisterMarket", func(s *Service, ctx context.Context, caller common.Address, _ *RegisterMarketRequest) (any, error) {
			id, err := s.engine.RegisterMarket(ctx, caller)
			if err != nil {
				return nil, err
			}
			return &MarketResponse{MarketID: id}, nil
		}),
		unary("ReportDebt", func(s *Service, ctx context.Context, caller common.Address, req *ReportDebtRequest) (any, error) {
			debt, err := parseAmount("debt", req.Debt)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.ReportDebt(ctx, caller, req.MarketID, debt)
		}),
		unary("DepositMarketUsd", func(s *Service, ctx context.Context, caller common.Address, req *MarketUsdRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.DepositMarketUsd(ctx, caller, req.MarketID, req.Target, amount)
		}),
		unary("WithdrawMarketUsd", func(s *Service, ctx context.Context, caller common.Address, req *MarketUsdRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.WithdrawMarketUsd(ctx, caller, req.MarketID, req.Target, amount)
		}),
		unary("AssociateDebt", func(s *Service, ctx context.Context, caller common.Address, req *AssociateDebtRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			debt, err := s.engine.AssociateDebt(ctx, caller, req.MarketID, req.PoolID, req.CollateralType, req.AccountID, amount)
			if err != nil {
				return nil, err
			}
			return amountResponse(debt), nil
		}),
		unary("CreatePool", func(s *Service, ctx context.Context, caller common.Address, req *CreatePoolRequest) (any, error) {
			owner := req.Owner
			if owner == (common.Address{}) {
				owner = caller
			}
			return empty, s.engine.CreatePool(ctx, caller, req.PoolID, owner)
		}),
		unary("SetPoolConfiguration", func(s *Service, ctx context.Context, caller common.Address, req *PoolConfigurationRequest) (any, error) {
			markets := make([]ledger.MarketConfiguration, 0, len(req.Markets))
			for _, m := range req.Markets {
				weight, err := parseAmount("weight", m.Weight)
				if err != nil {
					return nil, err
				}
				maxDebt, err := parseAmount("maxDebtShareValue", m.MaxDebtShareValue)
				if err != nil {
					return nil, err
				}
				markets = append(markets, ledger.MarketConfiguration{MarketID: m.MarketID, Weight: weight, MaxDebtShareValue: maxDebt})
			}
			return empty, s.engine.SetPoolConfiguration(ctx, caller, req.PoolID, markets)
		}),
		unary("DistributeRewards", func(s *Service, ctx context.Context, caller common.Address, req *DistributeRewardsRequest) (any, error) {
			amount, err := parseAmount("amount", req.Amount)
			if err != nil {
				return nil, err
			}
			return empty, s.engine.DistributeRewards(ctx, caller, req.PoolID, req.CollateralType, amount, req.Start, req.Duration)
		}),
		unary("ClaimRewards", func(s *Service, ctx context.Context, caller common.Address, req *ClaimRewardsRequest) (any, error) {
			claimed, err := s.engine.ClaimRewards(ctx, caller, req.AccountID, req.PoolID, req.CollateralType, req.Distributor)
			if err != nil {
				return nil, err
			}
			return amountResponse(claimed), nil
		}),
		unary("GetPosition", func(s *Service, ctx context.Context, _ common.Address, req *PositionRequest) (any, error) {
			return s.position(ctx, req.AccountID, req.PoolID, req.CollateralType)
		}),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamEvents", Handler: streamEventsHandler, ServerStreams: true},
	},
}

// unary builds a MethodDesc that decodes Req, runs call with the
// authenticated caller and maps the result through toStatus.
func unary[Req any](name string, call func(*Service, context.Context, common.Address, *Req) (any, error)) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
			}
			handler := func(ctx context.Context, in any) (any, error) {
				resp, err := call(srv.(*Service), ctx, callerFrom(ctx), in.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, req, info, handler)
		},
	}
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(EventsRequest)
	if err := stream.RecvMsg(req); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return srv.(*Service).streamEvents(req, stream)
}

func (s *Service) streamEvents(req *EventsRequest, stream grpc.ServerStream) error {
	if s.broker == nil {
		return status.Error(codes.Unavailable, "event stream disabled")
	}
	wanted := make(map[string]bool, len(req.Types))
	for _, t := range req.Types {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			wanted[trimmed] = true
		}
	}
	updates, cancel := s.broker.Subscribe()
	defer cancel()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if len(wanted) > 0 && !wanted[evt.Type] {
				continue
			}
			if err := stream.SendMsg(evt); err != nil {
				s.logger.Debug("rpc: event stream closed", slog.Any("error", err))
				return err
			}
		}
	}
}

func (s *Service) position(ctx context.Context, accountID, poolID types.ID, ct common.Address) (*PositionResponse, error) {
	pos, err := s.engine.GetPosition(ctx, accountID, poolID, ct)
	if err != nil {
		return nil, err
	}
	return newPositionResponse(pos), nil
}

func delegation(req *DelegateRequest) (amount, leverage *big.Int, err error) {
	if amount, err = parseAmount("amount", req.Amount); err != nil {
		return nil, nil, err
	}
	leverage = decimalmath.UnitD18()
	if req.Leverage != "" {
		if leverage, err = parseAmount("leverage", req.Leverage); err != nil {
			return nil, nil, err
		}
	}
	return amount, leverage, nil
}

func permission(raw string) ledger.Permission {
	return ledger.Permission(strings.ToUpper(strings.TrimSpace(raw)))
}

// callerFrom returns the address bound by the auth interceptor. Anonymous
// reads act as the zero address.
func callerFrom(ctx context.Context) common.Address {
	principal, _ := server.PrincipalFrom(ctx)
	return principal.Address
}
