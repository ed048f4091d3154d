package memheap

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method
type Validatable interface {
	Validate() error
}

const (
	// CreatedFillPattern is the byte written across a new allocation's payload
	// in debug builds
	CreatedFillPattern uint8 = 0xDC
	// DestroyedFillPattern is the byte written across an allocation's payload
	// as it is freed in debug builds
	DestroyedFillPattern uint8 = 0xEF
)
