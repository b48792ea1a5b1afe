// internal/autofill/errors.go
package autofill

import "errors"

// Per-field failures. The filler absorbs these into a false return and a log entry.
var (
	ErrElementNotFound   = errors.New("element not found")
	ErrDropdownOpen      = errors.New("dropdown could not be opened")
	ErrUploadFileMissing = errors.New("upload file does not exist")
)

// Page-level failures. Any of these ends the run early.
var (
	ErrNoFormFound           = errors.New("no form fields found on page")
	ErrMappingParse          = errors.New("field mapping response could not be parsed")
	ErrSubmitControlNotFound = errors.New("could not find or click submit button")
	ErrSubmissionRejected    = errors.New("submission rejected by page")
	ErrResumeMissing         = errors.New("resume file not found")
	ErrRelativePath          = errors.New("document path must be absolute")
)
