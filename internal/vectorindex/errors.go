package vectorindex

import "fmt"

// ProvisioningError reports that an index could not be listed, deleted,
// created or brought to a ready state.
type ProvisioningError struct {
	Index string
	Op    string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning index %q: %s: %v", e.Index, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// EmbeddingError reports that a text could not be turned into a vector of
// the configured dimension.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
