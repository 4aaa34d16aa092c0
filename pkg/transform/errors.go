package transform

import "errors"

// Transformation error definitions. Kept from the teacher's rule-engine
// error set, trimmed to what the generalized schema/flatten/vector
// pipeline actually raises.
var (
	ErrInvalidInput            = errors.New("invalid input data")
	ErrMissingRequiredField    = errors.New("required field missing from payload")
	ErrTypeCoercionFailed      = errors.New("field value could not be coerced to declared type")
	ErrVectorDimensionMismatch = errors.New("vector field dimension does not match mapping")
	ErrVectorFieldMissing      = errors.New("vector field path not found in payload")
	ErrUnknownLogicalType      = errors.New("schema field declares an unknown logical type")
)
