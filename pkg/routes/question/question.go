package question

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/pkg/appcontext"
	"github.com/Ramsey-B/sage/pkg/approval"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tags"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var validate = validator.New()

// Register registers staging question routes
func Register(g *echo.Group) {
	g.PATCH("/:id/approval", UpdateApproval)
	g.PUT("/:id/tags", ReplaceTags)
	g.GET("/:id/tags", ListTags)
}

// UpdateApproval approves or rejects a staging question. Rejection resets the
// question's approved answer to pending.
func UpdateApproval(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "question_handler.UpdateApproval")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.UpdateApprovalRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*approval.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval engine")
	}

	decision, err := engine.SetQuestionApproval(ctx, tenantID, c.Param("id"), *req.Approved)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, decision.Question)
}

// ReplaceTags makes the question's tag set exactly the submitted names
func ReplaceTags(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "question_handler.ReplaceTags")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.ReplaceTagsRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, manager, err := ectoinject.GetContext[*tags.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tag manager")
	}

	result, err := manager.ReplaceQuestionTags(ctx, tenantID, c.Param("id"), req.TagNames)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.TagListResponse{
		Items:      result,
		TotalCount: len(result),
	})
}

// ListTags returns the question's current tags
func ListTags(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "question_handler.ListTags")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, manager, err := ectoinject.GetContext[*tags.Manager](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get tag manager")
	}

	result, err := manager.ListQuestionTags(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.TagListResponse{
		Items:      result,
		TotalCount: len(result),
	})
}
