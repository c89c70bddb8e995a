package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/procura/internal/domain"
)

type ListTasksInput struct {
	ActorHeaders
	User     string `query:"user" required:"false" doc:"Whose inbox to read, the actor's when empty"`
	OpenOnly bool   `query:"open" required:"false" doc:"Only tasks not yet completed"`
}

func (h *Handler) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        basePath + "/tasks",
		Summary:     "List a user's tasks, newest first",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, in *ListTasksInput) (*Output[[]domain.Task], error) {
		actor, err := in.actor()
		if err != nil {
			return nil, err
		}
		tasks, err := h.svc.Tasks.ListForUser(ctx, actor, in.User, in.OpenOnly)
		if err != nil {
			return nil, h.toHumaError(err)
		}
		return &Output[[]domain.Task]{Body: tasks}, nil
	})

	transition(h, api, huma.Operation{
		OperationID: "complete-task",
		Path:        basePath + "/tasks/{id}/complete",
		Summary:     "Complete a task",
		Tags:        []string{"Tasks"},
	}, h.svc.Tasks.Complete)
}
