package run

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/internal/repositories/run"
	"github.com/Ramsey-B/sage/internal/repositories/staginganswer"
	"github.com/Ramsey-B/sage/internal/repositories/stagingquestion"
	"github.com/Ramsey-B/sage/pkg/appcontext"
	"github.com/Ramsey-B/sage/pkg/generation"
	"github.com/Ramsey-B/sage/pkg/llm"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/syncing"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var validate = validator.New()

// Register registers run routes
func Register(g *echo.Group) {
	g.POST("", Create)
	g.GET("", List)
	g.GET("/:id", Get)
	g.POST("/:id/questions/generate", GenerateQuestions)
	g.GET("/:id/questions", ListQuestions)
	g.POST("/:id/answers/generate", GenerateAnswers)
	g.GET("/:id/answers", ListAnswers)
	g.POST("/:id/sync", Sync)
}

// Create creates a new run from a summary
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.Create")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Create(ctx, tenantID, req.Summary)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// List returns all of the tenant's runs, newest first
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.List(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RunListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// Get returns a single run by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.Get")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GenerateQuestions generates and stages questions for the run. The count
// comes from the count query param or the request body, defaulting otherwise.
func GenerateQuestions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.GenerateQuestions")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	count := 0
	if v := c.QueryParam("count"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "count must be a positive integer")
		}
		count = parsed
	} else if c.Request().ContentLength > 0 {
		var req models.GenerateQuestionsRequest
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		count = req.Count
	}

	ctx, engine, err := ectoinject.GetContext[*generation.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get generation engine")
	}

	questions, err := engine.GenerateQuestions(ctx, tenantID, c.Param("id"), count)
	if err != nil {
		var genErr *llm.GenerationError
		if errors.As(err, &genErr) {
			return genErr.ToHTTPError()
		}
		return err
	}

	return c.JSON(http.StatusCreated, models.QuestionStagingListResponse{
		Items:      questions,
		TotalCount: len(questions),
	})
}

// ListQuestions returns the run's staging questions
func ListQuestions(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.ListQuestions")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	runID := c.Param("id")

	ctx, runRepo, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if _, err := runRepo.Get(ctx, tenantID, runID); err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*stagingquestion.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.ListByRun(ctx, tenantID, runID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.QuestionStagingListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// GenerateAnswers generates and stages answers for the run's approved,
// never-answered questions. An empty result means nothing was eligible.
func GenerateAnswers(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.GenerateAnswers")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, engine, err := ectoinject.GetContext[*generation.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get generation engine")
	}

	answers, err := engine.GenerateAnswers(ctx, tenantID, c.Param("id"))
	if err != nil {
		var genErr *llm.GenerationError
		if errors.As(err, &genErr) {
			return genErr.ToHTTPError()
		}
		return err
	}

	status := http.StatusCreated
	if len(answers) == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, models.AnswerStagingListResponse{
		Items:      answers,
		TotalCount: len(answers),
	})
}

// ListAnswers returns the run's staging answers
func ListAnswers(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.ListAnswers")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	runID := c.Param("id")

	ctx, runRepo, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	if _, err := runRepo.Get(ctx, tenantID, runID); err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*staginganswer.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, err := repo.ListByRun(ctx, tenantID, runID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.AnswerStagingListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}

// Sync promotes the run's approved staging data to the actual tables
func Sync(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "run_handler.Sync")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, engine, err := ectoinject.GetContext[*syncing.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync engine")
	}

	result, err := engine.SyncToActual(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
