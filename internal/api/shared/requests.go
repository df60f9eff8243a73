package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/medscry/internal/domain"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// DecodeJSON decodes the request body into v. Unknown fields, trailing data
// and oversized bodies are rejected as validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "is required", nil)
		}
		return domain.NewValidationError("body", "is not valid JSON", err)
	}
	if dec.More() {
		return domain.NewValidationError("body", "must contain a single JSON object", nil)
	}
	return nil
}

// ValidateRequest validates v's struct tags and reports the first failing
// field as a *domain.ValidationError.
func ValidateRequest(v interface{}) error {
	if custom, ok := v.(interface{ Validate() error }); ok {
		return custom.Validate()
	}

	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Namespace(), fmt.Sprintf("failed %q validation", fe.Tag()), err)
	}
	return domain.NewValidationError("body", "is invalid", err)
}
