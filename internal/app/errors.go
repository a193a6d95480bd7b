package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"availability-scheduler/internal/logger"
	"availability-scheduler/internal/schedule"
)

var statusByKind = map[string]int{
	schedule.KindValidationError:  http.StatusBadRequest,
	schedule.KindInvalidTimeRange: http.StatusUnprocessableEntity,
	schedule.KindPastDateTime:     http.StatusUnprocessableEntity,
	schedule.KindSlotUnavailable:  http.StatusConflict,
	schedule.KindNotFound:         http.StatusNotFound,
	schedule.KindConflict:         http.StatusServiceUnavailable,
	schedule.KindStoreError:       http.StatusInternalServerError,
}

// writeError renders err as {"error", "kind"} with the status of its kind.
func writeError(c *gin.Context, err error) {
	kind := schedule.ErrorKind(err)
	status, ok := statusByKind[kind]
	if !ok {
		kind = schedule.KindStoreError
		status = http.StatusInternalServerError
	}

	log := logger.FromContext(c.Request.Context())
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("Request failed", "path", c.FullPath(), "kind", kind, "error", err)
	default:
		log.Debug("Request rejected", "path", c.FullPath(), "kind", kind, "error", err)
	}

	if kind == schedule.KindConflict {
		c.Header("Retry-After", "1")
	}
	body := gin.H{"error": err.Error(), "kind": kind}
	if status >= http.StatusInternalServerError && kind == schedule.KindStoreError {
		body["error"] = "could not reach the schedule store"
	}
	c.AbortWithStatusJSON(status, body)
}

// bindError turns a gin binding failure into a validation error with one
// readable reason per field.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		reasons := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			reasons = append(reasons, fieldReason(fe))
		}
		return fmt.Errorf("%s: %w", strings.Join(reasons, "; "), schedule.ErrValidation)
	}
	return fmt.Errorf("invalid request body: %s: %w", err.Error(), schedule.ErrValidation)
}

func fieldReason(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_with":
		return field + " is required with " + fe.Param()
	case "required_without":
		return field + " is required without " + fe.Param()
	case "required_if":
		return field + " is required when " + fe.Param()
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "timeofday":
		return field + " must be HH:MM or HH:MM:SS"
	case "isodate":
		return field + " must be a YYYY-MM-DD date"
	case "weekday":
		return field + " must be a weekday name"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
