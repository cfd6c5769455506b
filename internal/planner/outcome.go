package planner

// Status tells whether an Outcome holds genuine model output.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Outcome is the result of a planner task. A degraded outcome holds the
// task's fallback value; Reason says why, and Cause holds the invocation
// error when the model could not be reached.
type Outcome[T any] struct {
	Value  T
	Status Status
	Reason string
	Cause  error
}

func ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusOK}
}

func degraded[T any](v T, reason string, cause error) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusDegraded, Reason: reason, Cause: cause}
}

// Degraded reports whether Value is a fallback.
func (o Outcome[T]) Degraded() bool {
	return o.Status == StatusDegraded
}
