package actual

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/repositories/actualanswer"
	"github.com/Ramsey-B/sage/internal/repositories/actualquestion"
	"github.com/Ramsey-B/sage/internal/repositories/tag"
	"github.com/Ramsey-B/sage/pkg/appcontext"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Register registers actual data routes
func Register(g *echo.Group) {
	g.GET("/questions", ListQuestions)
}

// ListQuestions returns the synced questions with their answers and tags
// embedded, optionally filtered by run_id.
func ListQuestions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "actual_handler.ListQuestions")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, questionRepo, err := ectoinject.GetContext[*actualquestion.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	ctx, answerRepo, err := ectoinject.GetContext[*actualanswer.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	ctx, tagRepo, err := ectoinject.GetContext[*tag.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	var questions []models.ActualQuestion
	if runID := c.QueryParam("run_id"); runID != "" {
		questions, err = questionRepo.ListByRun(ctx, tenantID, runID)
	} else {
		questions, err = questionRepo.List(ctx, tenantID)
	}
	if err != nil {
		return err
	}

	views := make([]models.ActualQuestionView, 0, len(questions))
	for _, q := range questions {
		view := models.ActualQuestionView{ActualQuestion: q}

		view.Tags, err = tagRepo.ListByActualQuestion(ctx, tenantID, q.ID)
		if err != nil {
			return err
		}
		view.Answer, err = answerRepo.GetByQuestionID(ctx, tenantID, q.ID)
		if err != nil {
			return err
		}

		views = append(views, view)
	}

	return c.JSON(http.StatusOK, models.ActualQuestionListResponse{
		Items:      views,
		TotalCount: len(views),
	})
}
