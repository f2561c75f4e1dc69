package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *PagePubError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *PagePubError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *PagePubError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Generation errors

func GenerateFailed(stage string, cause error) *PagePubError {
	return Wrap(cause, CategoryGenerate, SeverityError, "site generation failed").
		WithContext("stage", stage)
}

func WorkspaceError(operation string, cause error) *PagePubError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

// Git errors

func GitPushError(remote string, cause error) *PagePubError {
	return Wrap(cause, CategoryGit, SeverityError, "repository push failed").
		WithContext("remote", remote)
}

func GitNetworkError(remote string, cause error) *PagePubError {
	return WrapRetryable(cause, CategoryGit, SeverityWarning, "git network error").
		WithContext("remote", remote)
}

// Remote host errors

func RemoteAPIError(endpoint string, status int, cause error) *PagePubError {
	return Wrap(cause, CategoryRemote, SeverityError, "remote host API request failed").
		WithContext("endpoint", endpoint).
		WithContext("status", status)
}

func RemoteTimeout(endpoint string, cause error) *PagePubError {
	return WrapRetryable(cause, CategoryNetwork, SeverityWarning, "remote host timeout").
		WithContext("endpoint", endpoint)
}
