package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

type mapGetter map[string]string

func (m mapGetter) GetParameter(_ context.Context, name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", errors.New("not found: " + name)
	}
	return v, nil
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/growth/signals-token"), Value: strPtr(`{"token":"abc"}`), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /growth/signals-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, v)
	require.Equal(t, "/growth/signals-token", *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameter_Errors(t *testing.T) {
	client, err := New(&fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")

	client, err = New(&fakeAPI{getErr: errors.New("boom")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")

	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	_, err = (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestToken(t *testing.T) {
	g := mapGetter{
		"/p/ok":    `{"token":"sk-1"}`,
		"/p/empty": `{"token":""}`,
		"/p/bad":   `not-json`,
	}

	tok, err := Token(context.Background(), g, "/p/ok")
	require.NoError(t, err)
	require.Equal(t, "sk-1", tok)

	_, err = Token(context.Background(), g, "/p/empty")
	require.ErrorContains(t, err, "empty")

	_, err = Token(context.Background(), g, "/p/bad")
	require.ErrorContains(t, err, "decode token")

	_, err = Token(context.Background(), g, "/p/missing")
	require.ErrorContains(t, err, "not found")

	_, err = Token(context.Background(), nil, "/p/ok")
	require.Error(t, err)
}
