package chapter

// CompareOp is the comparison operator of a Condition.
type CompareOp string

const (
	CompareEq  CompareOp = "eq"
	CompareNeq CompareOp = "neq"
	CompareGt  CompareOp = "gt"
	CompareGte CompareOp = "gte"
	CompareLt  CompareOp = "lt"
	CompareLte CompareOp = "lte"
)

// Condition compares a named variable's current value against a literal.
// A condition list guards an effect or selects a branch arm; every
// condition in the list must hold.
type Condition struct {
	Var   string    `json:"var"`
	Op    CompareOp `json:"op"`
	Value any       `json:"value"`
}
