package port

type Metrics interface {
	BatchesReaped(n int)
	AllocationFinished(satisfied bool)
	InvoiceWritten(kind string)
}
