package apply

// Options configures one Apply run.
type Options struct {
	// DryRun resolves references and walks the whole plan without
	// issuing any store mutation. Creates receive synthetic negative
	// ids so later operations in the same dry run still resolve.
	DryRun bool

	// StopOnError stops scheduling after the first failed operation.
	// Remaining operations are omitted from the result entirely. Nil
	// means true.
	StopOnError *bool

	// Validate runs static reference validation before executing
	// anything; a plan with validation errors is rejected up front.
	// Nil means true.
	Validate *bool

	// EnableBatching merges adjacent update operations on the same
	// model with identical, reference-free values into a single store
	// write. Order is never changed.
	EnableBatching bool

	// Context is attached to every store call for implementations that
	// carry per-call execution context.
	Context map[string]any

	// MaxOperations rejects oversized plans before anything runs.
	// Zero means no cap.
	MaxOperations int

	// OnProgress is invoked before each operation with its 1-based
	// position, the total count and the operation id.
	OnProgress func(current, total int, id string)

	// OnOperationComplete is invoked after each operation finishes,
	// synchronously and in plan order.
	OnOperationComplete func(OperationResult)
}

func (o Options) stopOnError() bool {
	return o.StopOnError == nil || *o.StopOnError
}

func (o Options) validate() bool {
	return o.Validate == nil || *o.Validate
}
