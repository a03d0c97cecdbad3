package exitcodes

const (
	// ================================
	// Platform-universal exit codes
	// ================================

	// ExitCodeSuccess indicates no errors or failures had occurred.
	ExitCodeSuccess = 0

	// ExitCodeGeneralError indicates some type of general error occurred.
	ExitCodeGeneralError = 1

	// ================================
	// Application-specific exit codes
	// ================================
	// Note: Despite not being standardized, exit codes 2-5 are often used for common use cases, so we avoid them.

	// ExitCodeHandledError indicates that an error occurred and was already reported to the user, so it should not
	// be printed again.
	ExitCodeHandledError = 6

	// ExitCodeConfigError indicates that the project configuration could not be read or failed validation.
	ExitCodeConfigError = 7

	// ExitCodeSessionError indicates that the runtime could not be started or a smock session could not be attached
	// to it. Note that an error with error code ExitCodeGeneralError and ExitCodeSessionError are mutually exclusive
	// errors.
	ExitCodeSessionError = 8

	// ExitCodeSelfTestFailed indicates a self-test of the fake and mock machinery had failed.
	ExitCodeSelfTestFailed = 9
)
