package http

import (
	"context"
	"errors"
	"net/http"
	"reflect"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/app"
	"github.com/neomorfeo/procura/internal/domain"
)

const basePath = "/api/v1"

// ActorHeaders identify the acting user. Values are trusted as given.
type ActorHeaders struct {
	ActorID     string `header:"X-Actor-ID" required:"true" doc:"Acting user ID"`
	ActorName   string `header:"X-Actor-Name" doc:"Acting user display name"`
	Permissions string `header:"X-Actor-Permissions" doc:"Permission bitmask, as a number or names separated by |"`
}

func (h ActorHeaders) actor() (domain.Actor, error) {
	perms, err := domain.ParsePermissions(h.Permissions)
	if err != nil {
		return domain.Actor{}, huma.Error400BadRequest("invalid X-Actor-Permissions header", err)
	}
	return domain.Actor{ID: h.ActorID, Name: h.ActorName, Permissions: perms}, nil
}

// Output wraps a response body.
type Output[T any] struct {
	Body T
}

// EntityInput addresses one entity without acting on it.
type EntityInput struct {
	ID string `path:"id" doc:"Entity ID"`
}

// ActionInput addresses one entity on behalf of an actor.
type ActionInput struct {
	ActorHeaders
	ID string `path:"id" doc:"Entity ID"`
}

// Handler serves the workflow API.
type Handler struct {
	svc    *app.Services
	logger *zap.Logger
}

// RouterConfig names the service in API docs and traces.
type RouterConfig struct {
	ServiceName string
	Version     string
}

// NewRouter builds the chi router with request IDs, access logging, panic
// recovery and tracing, and mounts the API on it.
func NewRouter(svc *app.Services, logger *zap.Logger, cfg RouterConfig) *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(cfg.ServiceName, otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig(cfg.ServiceName, cfg.Version))
	Register(api, svc, logger)
	return router
}

// Register adds all workflow API routes to the Huma API.
func Register(api huma.API, svc *app.Services, logger *zap.Logger) {
	// Amounts travel as decimal strings.
	api.OpenAPI().Components.Schemas.RegisterTypeAlias(reflect.TypeOf(decimal.Decimal{}), reflect.TypeOf(""))

	h := &Handler{svc: svc, logger: logger}
	h.registerPurchaseOrders(api)
	h.registerRFQs(api)
	h.registerOffers(api)
	h.registerGoodsReceipts(api)
	h.registerProposals(api)
	h.registerMatches(api)
	h.registerTasks(api)
}

// get registers a read of one entity.
func get[T any](h *Handler, api huma.API, op huma.Operation, fn func(context.Context, string) (T, error)) {
	op.Method = http.MethodGet
	huma.Register(api, op, func(ctx context.Context, in *EntityInput) (*Output[T], error) {
		v, err := fn(ctx, in.ID)
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[T]{Body: v}, nil
	})
}

// transition registers a bodiless status change of one entity.
func transition[T any](h *Handler, api huma.API, op huma.Operation, fn func(context.Context, domain.Actor, string) (T, error)) {
	op.Method = http.MethodPost
	huma.Register(api, op, func(ctx context.Context, in *ActionInput) (*Output[T], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		v, err := fn(ctx, actor, in.ID)
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[T]{Body: v}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors. The response
// detail always carries the domain reason.
func (h *Handler) toHumaError(err error) error {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return huma.Error404NotFound(notFound.Error())
	}

	var authz *domain.AuthorizationError
	if errors.As(err, &authz) {
		return huma.Error403Forbidden(authz.Error())
	}

	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		return huma.Error422UnprocessableEntity(invalid.Error())
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return huma.Error400BadRequest(validation.Error(), &huma.ErrorDetail{
			Location: validation.Field,
			Message:  validation.Reason,
		})
	}

	var duplicate *domain.DuplicateOperationError
	if errors.As(err, &duplicate) {
		return huma.Error409Conflict(duplicate.Error())
	}

	var external *domain.ExternalServiceError
	if errors.As(err, &external) {
		h.logger.Error("backend failure", zap.String("op", external.Op), zap.Error(external.Err))
		return huma.Error502BadGateway(external.Error())
	}

	h.logger.Error("unhandled error", zap.Error(err))
	return huma.Error500InternalServerError("internal server error")
}
