package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, CategoryGit, SeverityError, "push failed").WithContext("remote", "origin")

	require.ErrorIs(t, err, cause)
	require.True(t, IsCategory(err, CategoryGit))
	require.False(t, IsCategory(err, CategoryNetwork))
	require.Equal(t, CategoryGit, GetCategory(err))
	require.False(t, IsRetryable(err))
	require.Contains(t, err.Error(), "push failed")
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, "origin", err.Context["remote"])
}

func TestRetryableClassification(t *testing.T) {
	err := WrapRetryable(stderrors.New("timeout"), CategoryNetwork, SeverityWarning, "remote timeout")
	require.True(t, IsRetryable(err))

	require.False(t, IsRetryable(stderrors.New("plain")))
	require.Equal(t, CategoryInternal, GetCategory(stderrors.New("plain")), "non-structured errors default to internal")
}

func TestConstructorCategories(t *testing.T) {
	cause := stderrors.New("x")

	require.True(t, IsCategory(ConfigNotFound("config.yaml"), CategoryConfig))
	require.True(t, IsCategory(ConfigRequired("remote repository name"), CategoryConfig))
	require.True(t, IsCategory(ValidationFailed("remote.host", "unsupported"), CategoryValidation))
	require.True(t, IsCategory(GenerateFailed("walk", cause), CategoryGenerate))
	require.True(t, IsCategory(WorkspaceError("mkdir", cause), CategoryFileSystem))
	require.True(t, IsCategory(GitPushError("origin", cause), CategoryGit))
	require.True(t, IsCategory(RemoteAPIError("/user/repos", 422, cause), CategoryRemote))

	require.True(t, IsRetryable(GitNetworkError("origin", cause)))
	require.True(t, IsRetryable(RemoteTimeout("/repos/a/b", cause)))
}
