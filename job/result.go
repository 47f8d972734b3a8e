// Package job holds the uniform outcome reported for every print request.
package job

// ErrorKind classifies a failed print request.
type ErrorKind string

const (
	MissingPrinterConfig ErrorKind = "MissingPrinterConfig"
	DeviceUnavailable    ErrorKind = "DeviceUnavailable"
	SendTimeout          ErrorKind = "SendTimeout"
	TransportError       ErrorKind = "TransportError"
	SpoolerError         ErrorKind = "SpoolerError"
	UnknownRequestKind   ErrorKind = "UnknownRequestKind"
	// InvalidPayload is reported when a request body cannot be decoded.
	InvalidPayload ErrorKind = "InvalidPayload"
)

// Result is returned to the caller of a print request. It is never retried.
type Result struct {
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// OK returns a successful result.
func OK() Result {
	return Result{Success: true}
}

// Failed returns a failed result of the given kind.
func Failed(kind ErrorKind, detail string) Result {
	return Result{ErrorKind: kind, Detail: detail}
}
