package llm

import "errors"

// ErrQuotaExhausted marks upstream rate or quota exhaustion. Callers surface
// it as an explicit retry-after-delay condition, distinct from generic
// collaborator failure.
var ErrQuotaExhausted = errors.New("quota exhausted")
