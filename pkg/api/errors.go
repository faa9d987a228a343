package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/brandbrain/compiler/pkg/compile"
)

// mapServiceError maps a compile.Error (or any other service-layer error)
// to an HTTP error response (spec.md §7: 400 validation, 404 not-found,
// 422 gating/compile-failure, 500 unknown).
func mapServiceError(err error) *echo.HTTPError {
	var cerr *compile.Error
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case compile.KindValidation:
			return echo.NewHTTPError(http.StatusBadRequest, cerr.Message)
		case compile.KindNotFound:
			return echo.NewHTTPError(http.StatusNotFound, cerr.Message)
		case compile.KindGatingFailed:
			return echo.NewHTTPError(http.StatusUnprocessableEntity, &ErrorsResponse{Errors: gatingErrorItems(cerr.Gating)})
		case compile.KindConflict:
			return echo.NewHTTPError(http.StatusConflict, cerr.Message)
		default:
			slog.Error("unexpected compile error", "kind", cerr.Kind, "error", cerr)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

func gatingErrorItems(gating []compile.GatingError) []ErrorItem {
	items := make([]ErrorItem, 0, len(gating))
	for _, g := range gating {
		items = append(items, ErrorItem{Code: g.Code, Message: g.Message})
	}
	return items
}
