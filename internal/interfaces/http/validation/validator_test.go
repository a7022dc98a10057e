package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/interfaces/http/dto"
)

func TestRDFURIRule(t *testing.T) {
	type target struct {
		URI string `json:"uri" validate:"rdfuri"`
	}
	v := NewValidator()

	tests := []struct {
		value string
		valid bool
	}{
		{"http://example.org/a", true},
		{"ex:Device", true},
		{"<http://example.org/a>", true},
		{"  ex:padded  ", true},
		{"", false},
		{"<>", false},
		{"relative/path", false},
		{"ex:has space", false},
		{"ex:{brace}", false},
		{`ex:"quoted"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := v.Validate(target{URI: tt.value})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	err := GetValidator().Validate(dto.ResolveRequest{
		URIs:     []string{"ex:a", "bad uri"},
		Strategy: "fuzzy",
	})
	require.Error(t, err)

	var ue *apperrors.UnifiedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, apperrors.CodeValidationFailed, ue.Code)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, ue.Details, "uris[1]: must be an absolute IRI or a prefixed name")
	assert.Contains(t, ue.Details, "strategy: must be one of: any, graphs, classes")
}

func TestValidateGraphMapKeysAndValues(t *testing.T) {
	v := GetValidator()

	assert.NoError(t, v.Validate(dto.ResolveRequest{
		URIs:     []string{"ex:a"},
		Strategy: "graphs",
		Graphs:   map[string]string{"ex:Device": "ex:g1"},
	}))
	assert.Error(t, v.Validate(dto.ResolveRequest{
		URIs:   []string{"ex:a"},
		Graphs: map[string]string{"not a class": "ex:g1"},
	}))
	assert.Error(t, v.Validate(dto.ResolveRequest{
		URIs:   []string{"ex:a"},
		Graphs: map[string]string{"ex:Device": "no graph"},
	}))
}

func TestValidateRegisterRequest(t *testing.T) {
	err := GetValidator().Validate(dto.RegisterResourceRequest{URI: "ex:r1"})
	require.Error(t, err)

	var ue *apperrors.UnifiedError
	require.True(t, errors.As(err, &ue))
	assert.Contains(t, ue.Details, "type: is required")
	assert.Contains(t, ue.Details, "graph: is required")
	assert.NotContains(t, ue.Details, "uri:")
}

func TestGetValidatorIsShared(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}
