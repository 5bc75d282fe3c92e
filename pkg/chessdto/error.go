package chessdto

// DomainError is the wire form of a failed operation.
type DomainError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return e.Kind
	}
	return "chess service error"
}
