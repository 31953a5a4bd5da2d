package answer

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/sage/pkg/appcontext"
	"github.com/Ramsey-B/sage/pkg/approval"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var validate = validator.New()

// Register registers staging answer routes
func Register(g *echo.Group) {
	g.PATCH("/:id/approval", UpdateApproval)
}

// UpdateApproval approves or rejects a staging answer
func UpdateApproval(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "answer_handler.UpdateApproval")
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

	result, err := engine.SetAnswerApproval(ctx, tenantID, c.Param("id"), *req.Approved)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
